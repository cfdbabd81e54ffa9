package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/audit"
	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/loan"
	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/loan/listcache"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

const (
	ReasonExhaustedByApproval = "stock exhausted by another approval"
	ReasonExhaustedByTake     = "stock exhausted"

	minRejectionReasonLen = 3
)

type loanUseCase struct {
	tx       postgres.Transactor
	loans    loan.Repository
	ledger   equipment.Repository
	emitter  audit.Emitter
	cache    *listcache.Cache
	validate *validator.Validate
	tracer   trace.Tracer
	logger   logger.ZapLogger
	now      func() time.Time
}

type Option func(*loanUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *loanUseCase) { uc.now = now }
}

func WithListCache(c *listcache.Cache) Option {
	return func(uc *loanUseCase) { uc.cache = c }
}

func NewLoanUseCase(tx postgres.Transactor, loans loan.Repository, ledger equipment.Repository, emitter audit.Emitter, log logger.ZapLogger, opts ...Option) loan.UseCase {
	uc := &loanUseCase{
		tx:       tx,
		loans:    loans,
		ledger:   ledger,
		emitter:  emitter,
		validate: validator.New(),
		tracer:   otel.Tracer("omnipos-lending-service/loan"),
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RequestLoan creates a PENDING loan after a soft availability check. Nothing
// is reserved yet.
func (uc *loanUseCase) RequestLoan(ctx context.Context, input *dto.RequestLoanInput) (result *model.Loan, err error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}
	now := uc.now()
	if !model.CalendarDate(input.Deadline).After(model.DateOf(now)) {
		return nil, apperr.Validation("deadline must be after the request date", "Deadline")
	}

	ctx, span := uc.tracer.Start(ctx, "loan.request", trace.WithAttributes(
		attribute.String("equipment.id", input.EquipmentID),
		attribute.Int("loan.quantity", input.Quantity),
	))
	defer func() { finishSpan(span, err) }()

	e, err := uc.ledger.FindByID(ctx, input.EquipmentID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.ErrEquipmentNotFound
	}
	if e.Status != model.EquipmentAvailable {
		return nil, apperr.ErrEquipmentUnavailable
	}
	if e.Stock < input.Quantity {
		return nil, apperr.InsufficientStock(e.Stock)
	}

	l := &model.Loan{
		BaseModel:   model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		EquipmentID: e.ID,
		BorrowerID:  input.Actor.ID,
		Quantity:    input.Quantity,
		Deadline:    model.CalendarDate(input.Deadline),
		Purpose:     input.Purpose,
		Status:      model.LoanPending,
	}
	if err := uc.loans.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create loan: %w", err)
	}

	uc.afterCommit(ctx, e.ID, audit.NewEvent(input.Actor, audit.ActionRequest, audit.EntityLoan, l.ID, "", string(l.Status), now))
	uc.logger.Info("loan requested",
		zap.String("loan_id", l.ID),
		zap.String("equipment_id", e.ID),
		zap.String("actor_id", input.Actor.ID),
		zap.Int("quantity", l.Quantity))
	return l, nil
}

// ApproveLoan reserves stock for a PENDING loan. The reservation check, the
// status change and the cascade rejection run in one transaction holding the
// equipment row lock.
func (uc *loanUseCase) ApproveLoan(ctx context.Context, input *dto.ApproveLoanInput) (result *model.Loan, err error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}

	ctx, span := uc.tracer.Start(ctx, "loan.approve", trace.WithAttributes(attribute.String("loan.id", input.LoanID)))
	defer func() { finishSpan(span, err) }()

	equipmentID, err := uc.equipmentOf(ctx, input.LoanID)
	if err != nil {
		return nil, err
	}

	var events []model.AuditEvent
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		events = nil

		e, l, err := uc.lockPair(ctx, equipmentID, input.LoanID)
		if err != nil {
			return err
		}
		if l.Status != model.LoanPending {
			return apperr.ErrNotPending
		}

		already, err := uc.ledger.ReservedQuantity(ctx, e.ID)
		if err != nil {
			return err
		}
		available := e.Stock - already
		if available < l.Quantity {
			return apperr.InsufficientStock(available)
		}

		now := uc.now()
		actorID := input.Actor.ID
		l.Status = model.LoanApproved
		l.ApprovedBy = &actorID
		l.ApprovedAt = &now
		l.RejectedBy = nil
		l.RejectedAt = nil
		l.RejectionReason = nil
		l.UpdatedAt = now
		if err := uc.loans.Update(ctx, l); err != nil {
			return fmt.Errorf("failed to approve loan: %w", err)
		}
		events = append(events, audit.NewEvent(input.Actor, audit.ActionApprove, audit.EntityLoan, l.ID,
			string(model.LoanPending), string(model.LoanApproved), now))

		if already+l.Quantity >= e.Stock {
			cascaded, err := uc.cascadeReject(ctx, input.Actor, e.ID, l.ID, ReasonExhaustedByApproval, now)
			if err != nil {
				return err
			}
			events = append(events, cascaded...)
		}

		result = l
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	uc.afterCommit(ctx, equipmentID, events...)
	uc.logger.Info("loan approved",
		zap.String("loan_id", result.ID),
		zap.String("equipment_id", equipmentID),
		zap.String("actor_id", input.Actor.ID),
		zap.Int("cascade_rejected", len(events)-1))
	return result, nil
}

func (uc *loanUseCase) RejectLoan(ctx context.Context, input *dto.RejectLoanInput) (result *model.Loan, err error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}
	reason := strings.TrimSpace(input.Reason)
	if len([]rune(reason)) < minRejectionReasonLen {
		return nil, apperr.ErrInvalidReason
	}

	ctx, span := uc.tracer.Start(ctx, "loan.reject", trace.WithAttributes(attribute.String("loan.id", input.LoanID)))
	defer func() { finishSpan(span, err) }()

	var event model.AuditEvent
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		l, err := uc.loans.LockByID(ctx, input.LoanID)
		if err != nil {
			return err
		}
		if l == nil {
			return apperr.ErrLoanNotFound
		}
		if l.Status != model.LoanPending {
			return apperr.ErrNotPending
		}

		now := uc.now()
		actorID := input.Actor.ID
		l.Status = model.LoanRejected
		l.RejectedBy = &actorID
		l.RejectedAt = &now
		l.RejectionReason = &reason
		l.UpdatedAt = now
		if err := uc.loans.Update(ctx, l); err != nil {
			return fmt.Errorf("failed to reject loan: %w", err)
		}

		event = audit.NewEvent(input.Actor, audit.ActionReject, audit.EntityLoan, l.ID,
			string(model.LoanPending), string(model.LoanRejected), now)
		event.Reason = reason
		result = l
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	uc.afterCommit(ctx, result.EquipmentID, event)
	uc.logger.Info("loan rejected", zap.String("loan_id", result.ID), zap.String("actor_id", input.Actor.ID))
	return result, nil
}

// ConfirmTake is the hard commit: stock is checked again and decremented
// exactly once as the loan moves to BORROWED.
func (uc *loanUseCase) ConfirmTake(ctx context.Context, input *dto.ConfirmTakeInput) (result *model.Loan, err error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}

	ctx, span := uc.tracer.Start(ctx, "loan.confirm_take", trace.WithAttributes(attribute.String("loan.id", input.LoanID)))
	defer func() { finishSpan(span, err) }()

	equipmentID, err := uc.equipmentOf(ctx, input.LoanID)
	if err != nil {
		return nil, err
	}

	var events []model.AuditEvent
	var stockAfter int
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		events = nil

		e, l, err := uc.lockPair(ctx, equipmentID, input.LoanID)
		if err != nil {
			return err
		}
		if l.Status != model.LoanApproved {
			return apperr.ErrNotApproved
		}
		if e.Stock < l.Quantity {
			return apperr.InsufficientStock(e.Stock)
		}

		updated, err := uc.ledger.DecrementStock(ctx, e.ID, l.Quantity)
		if err != nil {
			return err
		}
		stockAfter = updated.Stock

		now := uc.now()
		actorID := input.Actor.ID
		loanID := l.ID
		if err := uc.ledger.LogMovement(ctx, &model.EquipmentMovement{
			ID:             uuid.New().String(),
			EquipmentID:    e.ID,
			MovementType:   model.MovementLoanTake,
			QuantityChange: -l.Quantity,
			QuantityBefore: e.Stock,
			QuantityAfter:  updated.Stock,
			ReferenceID:    &loanID,
			Notes:          "loan taken",
			CreatedBy:      &actorID,
			CreatedAt:      now,
		}); err != nil {
			return fmt.Errorf("failed to log movement: %w", err)
		}

		l.Status = model.LoanBorrowed
		l.TakenBy = &actorID
		l.TakenAt = &now
		l.UpdatedAt = now
		if err := uc.loans.Update(ctx, l); err != nil {
			return fmt.Errorf("failed to confirm take: %w", err)
		}
		events = append(events, audit.NewEvent(input.Actor, audit.ActionConfirmTake, audit.EntityLoan, l.ID,
			string(model.LoanApproved), string(model.LoanBorrowed), now))

		if updated.Stock <= 0 {
			cascaded, err := uc.cascadeReject(ctx, input.Actor, e.ID, l.ID, ReasonExhaustedByTake, now)
			if err != nil {
				return err
			}
			events = append(events, cascaded...)
		}

		result = l
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	uc.afterCommit(ctx, equipmentID, events...)
	uc.logger.Info("loan taken",
		zap.String("loan_id", result.ID),
		zap.String("equipment_id", equipmentID),
		zap.String("actor_id", input.Actor.ID),
		zap.Int("stock_after", stockAfter),
		zap.Int("cascade_rejected", len(events)-1))
	return result, nil
}

func (uc *loanUseCase) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	l, err := uc.loans.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperr.ErrLoanNotFound
	}
	derived := l.WithDerivedStatus(uc.now())
	return &derived, nil
}

func (uc *loanUseCase) ListLoansForEquipment(ctx context.Context, filters *dto.LoanFilters) ([]model.Loan, int, error) {
	if filters.EquipmentID == "" {
		return nil, 0, apperr.Validation("equipment id is required", "EquipmentID")
	}
	if filters.Now.IsZero() {
		filters.Now = uc.now()
	}

	items, count, gen, hit := uc.cache.Get(ctx, filters)
	if !hit {
		var err error
		items, count, err = uc.loans.FindAll(ctx, filters)
		if err != nil {
			return nil, 0, err
		}
		uc.cache.Set(ctx, filters, gen, items, count)
	}

	out := make([]model.Loan, len(items))
	for i, l := range items {
		out[i] = l.WithDerivedStatus(filters.Now)
	}
	return out, count, nil
}

// equipmentOf resolves the equipment a loan points at so the equipment row
// can be locked before the loan row.
func (uc *loanUseCase) equipmentOf(ctx context.Context, loanID string) (string, error) {
	l, err := uc.loans.FindByID(ctx, loanID)
	if err != nil {
		return "", err
	}
	if l == nil {
		return "", apperr.ErrLoanNotFound
	}
	return l.EquipmentID, nil
}

// lockPair locks the equipment row, then the loan row.
func (uc *loanUseCase) lockPair(ctx context.Context, equipmentID, loanID string) (*model.Equipment, *model.Loan, error) {
	e, err := uc.ledger.LockByID(ctx, equipmentID)
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		return nil, nil, apperr.ErrEquipmentNotFound
	}
	l, err := uc.loans.LockByID(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	if l == nil {
		return nil, nil, apperr.ErrLoanNotFound
	}
	return e, l, nil
}

func (uc *loanUseCase) cascadeReject(ctx context.Context, actor auth.Actor, equipmentID, exceptID, reason string, at time.Time) ([]model.AuditEvent, error) {
	rejected, err := uc.loans.RejectPending(ctx, equipmentID, exceptID, actor.ID, reason, at)
	if err != nil {
		return nil, fmt.Errorf("failed to cascade rejection: %w", err)
	}
	events := make([]model.AuditEvent, 0, len(rejected))
	for _, r := range rejected {
		ev := audit.NewEvent(actor, audit.ActionCascadeReject, audit.EntityLoan, r.ID,
			string(model.LoanPending), string(model.LoanRejected), at)
		ev.Reason = reason
		events = append(events, ev)
	}
	return events, nil
}

// afterCommit publishes audit events and drops cached lists for the
// equipment. Failures are logged; the transition has already committed.
func (uc *loanUseCase) afterCommit(ctx context.Context, equipmentID string, events ...model.AuditEvent) {
	if err := uc.emitter.Emit(ctx, events...); err != nil {
		uc.logger.Error("failed to emit audit events", zap.Int("count", len(events)), zap.Error(err))
	}
	uc.cache.Invalidate(ctx, equipmentID)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
