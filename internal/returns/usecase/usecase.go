package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/audit"
	"github.com/fekuna/omnipos-lending-service/internal/equipment"
	"github.com/fekuna/omnipos-lending-service/internal/loan"
	"github.com/fekuna/omnipos-lending-service/internal/loan/listcache"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/internal/returns"
	"github.com/fekuna/omnipos-lending-service/internal/returns/dto"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

type returnUseCase struct {
	tx         postgres.Transactor
	repo       returns.Repository
	loans      loan.Repository
	ledger     equipment.Repository
	calculator returns.Calculator
	emitter    audit.Emitter
	cache      *listcache.Cache
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     logger.ZapLogger
	now        func() time.Time
}

type Option func(*returnUseCase)

func WithClock(now func() time.Time) Option {
	return func(uc *returnUseCase) { uc.now = now }
}

// WithListCache lets a return drop the cached loan lists of its equipment.
func WithListCache(c *listcache.Cache) Option {
	return func(uc *returnUseCase) { uc.cache = c }
}

func NewReturnUseCase(
	tx postgres.Transactor,
	repo returns.Repository,
	loans loan.Repository,
	ledger equipment.Repository,
	calculator returns.Calculator,
	emitter audit.Emitter,
	log logger.ZapLogger,
	opts ...Option,
) returns.UseCase {
	uc := &returnUseCase{
		tx:         tx,
		repo:       repo,
		loans:      loans,
		ledger:     ledger,
		calculator: calculator,
		emitter:    emitter,
		validate:   validator.New(),
		tracer:     otel.Tracer("omnipos-lending-service/returns"),
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// SubmitReturn records the hand-back of a BORROWED loan with server-computed
// fees and closes the loan. Stock is not touched: it left the shelf at take.
func (uc *returnUseCase) SubmitReturn(ctx context.Context, input *dto.SubmitReturnInput) (result *model.Return, err error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}

	ctx, span := uc.tracer.Start(ctx, "return.submit", trace.WithAttributes(
		attribute.String("loan.id", input.LoanID),
		attribute.String("return.condition", string(input.Condition)),
	))
	defer func() { finishSpan(span, err) }()

	var (
		events      []model.AuditEvent
		equipmentID string
	)
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		events = nil

		l, err := uc.loans.LockByID(ctx, input.LoanID)
		if err != nil {
			return err
		}
		if l == nil {
			return apperr.ErrLoanNotFound
		}

		existing, err := uc.repo.FindByLoanID(ctx, l.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.ErrAlreadyReturned
		}
		if l.Status != model.LoanBorrowed {
			return apperr.ErrNotBorrowed
		}

		e, err := uc.ledger.FindByID(ctx, l.EquipmentID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrEquipmentNotFound
		}

		now := uc.now()
		fine := uc.calculator.ComputeFine(*e, *l, input.Condition, now)
		if input.ClientFeeHint != nil && !input.ClientFeeHint.Equal(fine.TotalFee) {
			uc.logger.Warn("client fee hint differs from computed fee",
				zap.String("loan_id", l.ID),
				zap.String("client_fee", input.ClientFeeHint.String()),
				zap.String("total_fee", fine.TotalFee.String()))
		}

		ret := &model.Return{
			BaseModel:  model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
			LoanID:     l.ID,
			Status:     model.ReturnAwaitingConfirmation,
			Condition:  input.Condition,
			Notes:      input.Notes,
			ReturnedAt: now,
			LateDays:   fine.LateDays,
			LateFee:    fine.LateFee,
			DamageFee:  fine.DamageFee,
			TotalFee:   fine.TotalFee,
			AmountPaid: decimal.Zero,
		}
		if input.ProofPhoto != "" {
			photo := input.ProofPhoto
			ret.ProofPhoto = &photo
		}
		if err := uc.repo.Create(ctx, ret); err != nil {
			return fmt.Errorf("failed to create return: %w", err)
		}

		l.Status = model.LoanReturned
		l.UpdatedAt = now
		if err := uc.loans.Update(ctx, l); err != nil {
			return fmt.Errorf("failed to close loan: %w", err)
		}

		events = append(events,
			audit.NewEvent(input.Actor, audit.ActionSubmitReturn, audit.EntityLoan, l.ID,
				string(model.LoanBorrowed), string(model.LoanReturned), now),
			audit.NewEvent(input.Actor, audit.ActionSubmitReturn, audit.EntityReturn, ret.ID,
				"", string(model.ReturnAwaitingConfirmation), now),
		)
		equipmentID = l.EquipmentID
		result = ret
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	uc.afterCommit(ctx, equipmentID, events...)
	uc.logger.Info("return submitted",
		zap.String("return_id", result.ID),
		zap.String("loan_id", result.LoanID),
		zap.String("actor_id", input.Actor.ID),
		zap.String("condition", string(result.Condition)),
		zap.String("total_fee", result.TotalFee.String()))
	return result, nil
}

// ConfirmReturn finalizes a return. Once CONFIRMED the return is history.
func (uc *returnUseCase) ConfirmReturn(ctx context.Context, input *dto.ConfirmReturnInput) (result *model.Return, err error) {
	if err := uc.validate.Struct(input); err != nil {
		return nil, apperr.FromValidator(err)
	}

	ctx, span := uc.tracer.Start(ctx, "return.confirm", trace.WithAttributes(attribute.String("return.id", input.ReturnID)))
	defer func() { finishSpan(span, err) }()

	var event model.AuditEvent
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		ret, err := uc.repo.LockByID(ctx, input.ReturnID)
		if err != nil {
			return err
		}
		if ret == nil {
			return apperr.ErrReturnNotFound
		}
		if ret.Status != model.ReturnAwaitingConfirmation {
			return apperr.ErrNotAwaitingConfirmation
		}
		if ret.TotalFee.IsPositive() && !input.PaymentConfirmed {
			return apperr.ErrPaymentNotConfirmed
		}

		now := uc.now()
		actorID := input.Actor.ID
		ret.Status = model.ReturnConfirmed
		ret.ConfirmedBy = &actorID
		ret.ConfirmedAt = &now
		ret.UpdatedAt = now
		if input.PaymentConfirmed {
			ret.AmountPaid = ret.TotalFee
		}
		if err := uc.repo.Update(ctx, ret); err != nil {
			return fmt.Errorf("failed to confirm return: %w", err)
		}

		event = audit.NewEvent(input.Actor, audit.ActionConfirmReturn, audit.EntityReturn, ret.ID,
			string(model.ReturnAwaitingConfirmation), string(model.ReturnConfirmed), now)
		result = ret
		return nil
	})
	if err != nil {
		return nil, apperr.FromTx(err)
	}

	if err := uc.emitter.Emit(ctx, event); err != nil {
		uc.logger.Error("failed to emit audit events", zap.Error(err))
	}
	uc.logger.Info("return confirmed",
		zap.String("return_id", result.ID),
		zap.String("actor_id", input.Actor.ID),
		zap.String("amount_paid", result.AmountPaid.String()))
	return result, nil
}

func (uc *returnUseCase) GetReturn(ctx context.Context, id string) (*model.Return, error) {
	ret, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, apperr.ErrReturnNotFound
	}
	return ret, nil
}

func (uc *returnUseCase) GetReturnByLoan(ctx context.Context, loanID string) (*model.Return, error) {
	ret, err := uc.repo.FindByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, apperr.ErrReturnNotFound
	}
	return ret, nil
}

func (uc *returnUseCase) afterCommit(ctx context.Context, equipmentID string, events ...model.AuditEvent) {
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
