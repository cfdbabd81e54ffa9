package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

// Locker is a best-effort distributed lock, e.g. *cache.RedisClient.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

type equipmentUseCase struct {
	tx       postgres.Transactor
	repo     equipment.Repository
	locker   Locker
	validate *validator.Validate
	logger   logger.ZapLogger
	now      func() time.Time
}

// NewEquipmentUseCase builds the admin usecase. locker may be nil, in which
// case only the database row lock serializes adjustments.
func NewEquipmentUseCase(tx postgres.Transactor, repo equipment.Repository, locker Locker, log logger.ZapLogger) equipment.UseCase {
	return &equipmentUseCase{
		tx:       tx,
		repo:     repo,
		locker:   locker,
		validate: validator.New(),
		logger:   log,
		now:      time.Now,
	}
}

func (uc *equipmentUseCase) RegisterEquipment(ctx context.Context, input *dto.RegisterEquipmentInput) (*model.Equipment, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}
	if input.ItemValue.IsNegative() {
		return nil, apperr.Validation("item value must not be negative", "ItemValue")
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := uc.now()

	e := &model.Equipment{
		BaseModel: model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
		Name:      input.Name,
		Stock:     input.Stock,
		Status:    model.StatusFor(input.Stock, model.EquipmentAvailable),
		ItemValue: input.ItemValue,
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := uc.repo.Create(ctx, e); err != nil {
			return err
		}
		return uc.repo.LogMovement(ctx, uc.movement(e.ID, model.MovementAdjustment, 0, e.Stock, nil, "initial stock", input.UserID))
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	uc.logger.Info("equipment registered", zap.String("equipment_id", e.ID), zap.Int("stock", e.Stock))
	return e, nil
}

func (uc *equipmentUseCase) GetEquipment(ctx context.Context, id string) (*model.Equipment, error) {
	e, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.ErrEquipmentNotFound
	}
	return e, nil
}

// AdjustStock applies an admin restock or write-off. Stock never goes below
// zero, but it may drop below the quantity already reserved by approved
// loans; that shortfall surfaces at confirm-take.
func (uc *equipmentUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.Equipment, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}

	release, err := uc.lock(ctx, input.EquipmentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *model.Equipment
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := uc.repo.LockByID(ctx, input.EquipmentID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrEquipmentNotFound
		}

		before := e.Stock
		after := before + input.QuantityChange
		if after < 0 {
			return apperr.InsufficientStock(before)
		}

		reserved, err := uc.repo.ReservedQuantity(ctx, e.ID)
		if err != nil {
			return err
		}
		if after < reserved {
			uc.logger.Warn("stock adjusted below reserved quantity",
				zap.String("equipment_id", e.ID),
				zap.Int("stock", after),
				zap.Int("reserved", reserved),
				zap.Int("shortfall", reserved-after),
			)
		}

		e.Stock = after
		e.Status = model.StatusFor(after, e.Status)
		e.UpdatedAt = uc.now()
		if err := uc.repo.UpdateStock(ctx, e); err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}
		if err := uc.repo.LogMovement(ctx, uc.movement(e.ID, model.MovementAdjustment, before, after, nil, input.Reason, input.UserID)); err != nil {
			return fmt.Errorf("failed to log movement: %w", err)
		}

		result = e
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}
	return result, nil
}

func (uc *equipmentUseCase) SetMaintenance(ctx context.Context, input *dto.SetMaintenanceInput) (*model.Equipment, error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}

	var result *model.Equipment
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := uc.repo.LockByID(ctx, input.EquipmentID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrEquipmentNotFound
		}

		if input.Maintenance {
			e.Status = model.EquipmentMaintenance
		} else {
			e.Status = model.StatusFor(e.Stock, model.EquipmentAvailable)
		}
		e.UpdatedAt = uc.now()
		if err := uc.repo.UpdateStock(ctx, e); err != nil {
			return err
		}
		if err := uc.repo.LogMovement(ctx, uc.movement(e.ID, model.MovementMaintenance, e.Stock, e.Stock, nil, input.Reason, input.UserID)); err != nil {
			return err
		}

		result = e
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	uc.logger.Info("equipment maintenance toggled",
		zap.String("equipment_id", result.ID),
		zap.String("status", string(result.Status)))
	return result, nil
}

func (uc *equipmentUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.EquipmentMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}

func (uc *equipmentUseCase) lock(ctx context.Context, equipmentID string) (func(), error) {
	if uc.locker == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("lock:equipment:%s", equipmentID)
	lockValue := uuid.New().String()

	for i := 0; i < 3; i++ {
		ok, err := uc.locker.AcquireLock(ctx, lockKey, lockValue, 5*time.Second)
		if err != nil {
			uc.logger.Error("failed to acquire lock redis error", zap.Error(err))
		}
		if ok {
			return func() {
				if err := uc.locker.ReleaseLock(context.Background(), lockKey, lockValue); err != nil {
					uc.logger.Warn("failed to release lock", zap.String("key", lockKey), zap.Error(err))
				}
			}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return nil, errors.New("system busy, please try again later (lock)")
}

func (uc *equipmentUseCase) movement(equipmentID, movementType string, before, after int, refID *string, notes, userID string) *model.EquipmentMovement {
	var createdBy *string
	if userID != "" {
		createdBy = &userID
	}
	return &model.EquipmentMovement{
		ID:             uuid.New().String(),
		EquipmentID:    equipmentID,
		MovementType:   movementType,
		QuantityChange: after - before,
		QuantityBefore: before,
		QuantityAfter:  after,
		ReferenceID:    refID,
		Notes:          notes,
		CreatedBy:      createdBy,
		CreatedAt:      uc.now(),
	}
}
