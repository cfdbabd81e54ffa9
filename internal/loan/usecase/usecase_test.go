package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/audit"
	"github.com/fekuna/omnipos-lending-service/internal/auth"
	eqdto "github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/internal/loan"
	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/loan/listcache"
	"github.com/fekuna/omnipos-lending-service/internal/loan/usecase"
	"github.com/fekuna/omnipos-lending-service/internal/memstore"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/cache"
	"github.com/fekuna/omnipos-lending-service/pkg/logger"
)

var (
	borrower = auth.Actor{ID: "borrower-1", Role: auth.RoleBorrower}
	staff    = auth.Actor{ID: "staff-1", Role: auth.RoleStaff}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memstore.Store
	recorder *audit.Recorder
	clock    *clock
	uc       loan.UseCase
}

func newFixture(t *testing.T, opts ...usecase.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		recorder: &audit.Recorder{},
		clock:    &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	opts = append([]usecase.Option{usecase.WithClock(f.clock.Now)}, opts...)
	f.uc = usecase.NewLoanUseCase(f.store, f.store.Loans(), f.store.Equipment(), f.recorder, logger.NewNop(), opts...)
	return f
}

func (f *fixture) seedEquipment(t *testing.T, id string, stock int, status model.EquipmentStatus) {
	t.Helper()
	require.NoError(t, f.store.Equipment().Create(context.Background(), &model.Equipment{
		BaseModel: model.BaseModel{ID: id},
		Name:      "Projector " + id,
		Stock:     stock,
		Status:    status,
		ItemValue: decimal.NewFromInt(1000000),
	}))
}

func (f *fixture) request(t *testing.T, equipmentID string, qty int) *model.Loan {
	t.Helper()
	l, err := f.uc.RequestLoan(context.Background(), &dto.RequestLoanInput{
		Actor:       borrower,
		EquipmentID: equipmentID,
		Quantity:    qty,
		Deadline:    f.clock.Now().AddDate(0, 0, 7),
		Purpose:     "field trip",
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) approve(id string) (*model.Loan, error) {
	return f.uc.ApproveLoan(context.Background(), &dto.ApproveLoanInput{Actor: staff, LoanID: id})
}

func (f *fixture) take(id string) (*model.Loan, error) {
	return f.uc.ConfirmTake(context.Background(), &dto.ConfirmTakeInput{Actor: staff, LoanID: id})
}

func (f *fixture) stored(t *testing.T, id string) model.Loan {
	t.Helper()
	l, err := f.store.Loans().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return *l
}

func (f *fixture) equipment(t *testing.T, id string) model.Equipment {
	t.Helper()
	e, err := f.store.Equipment().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, e)
	return *e
}

func Test_RequestLoan_CreatesPendingLoan(t *testing.T) {
	// arrange
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 3, model.EquipmentAvailable)

	// act
	l := f.request(t, "eq-1", 2)

	// assert
	assert.Equal(t, model.LoanPending, l.Status)
	assert.Equal(t, borrower.ID, l.BorrowerID)
	assert.Equal(t, model.DateOf(f.clock.Now().AddDate(0, 0, 7)), l.Deadline)
	assert.Equal(t, 3, f.equipment(t, "eq-1").Stock, "request reserves nothing")
	assert.Equal(t, []string{audit.ActionRequest}, f.recorder.Actions(l.ID))
}

func Test_RequestLoan_Rejections(t *testing.T) {
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 2, model.EquipmentAvailable)
	f.seedEquipment(t, "eq-maint", 5, model.EquipmentMaintenance)
	now := f.clock.Now()

	tests := []struct {
		name  string
		input dto.RequestLoanInput
		want  error
	}{
		{"zero quantity", dto.RequestLoanInput{EquipmentID: "eq-1", Quantity: 0, Deadline: now.AddDate(0, 0, 1)}, apperr.ErrValidation},
		{"deadline today", dto.RequestLoanInput{EquipmentID: "eq-1", Quantity: 1, Deadline: now.Add(time.Hour)}, apperr.ErrValidation},
		{"deadline in the past", dto.RequestLoanInput{EquipmentID: "eq-1", Quantity: 1, Deadline: now.AddDate(0, 0, -1)}, apperr.ErrValidation},
		{"unknown equipment", dto.RequestLoanInput{EquipmentID: "missing", Quantity: 1, Deadline: now.AddDate(0, 0, 1)}, apperr.ErrEquipmentNotFound},
		{"under maintenance", dto.RequestLoanInput{EquipmentID: "eq-maint", Quantity: 1, Deadline: now.AddDate(0, 0, 1)}, apperr.ErrEquipmentUnavailable},
		{"more than stock", dto.RequestLoanInput{EquipmentID: "eq-1", Quantity: 3, Deadline: now.AddDate(0, 0, 1)}, apperr.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			input.Actor = borrower

			_, err := f.uc.RequestLoan(context.Background(), &input)

			require.ErrorIs(t, err, tt.want)
		})
	}
}

func Test_ApproveLoan_ExhaustingStockCascadesAndTakeDecrements(t *testing.T) {
	// arrange
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 2, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)
	b := f.request(t, "eq-1", 1)
	c := f.request(t, "eq-1", 1)

	// act + assert: approving A leaves B approvable
	approvedA, err := f.approve(a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanApproved, approvedA.Status)
	require.NotNil(t, approvedA.ApprovedBy)
	assert.Equal(t, staff.ID, *approvedA.ApprovedBy)
	assert.Equal(t, model.LoanPending, f.stored(t, c.ID).Status)

	// approving B exhausts the stock and rejects C
	_, err = f.approve(b.ID)
	require.NoError(t, err)

	rejectedC := f.stored(t, c.ID)
	assert.Equal(t, model.LoanRejected, rejectedC.Status)
	require.NotNil(t, rejectedC.RejectionReason)
	assert.Equal(t, usecase.ReasonExhaustedByApproval, *rejectedC.RejectionReason)
	assert.Contains(t, *rejectedC.RejectionReason, "stock")
	assert.Equal(t, staff.ID, *rejectedC.RejectedBy)

	_, err = f.approve(c.ID)
	require.ErrorIs(t, err, apperr.ErrNotPending)

	// take A then B
	_, err = f.take(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.equipment(t, "eq-1").Stock)

	takenB, err := f.take(b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanBorrowed, takenB.Status)
	assert.NotNil(t, takenB.TakenAt)

	e := f.equipment(t, "eq-1")
	assert.Equal(t, 0, e.Stock)
	assert.Equal(t, model.EquipmentUnavailable, e.Status)

	assert.Equal(t, []string{audit.ActionRequest, audit.ActionCascadeReject}, f.recorder.Actions(c.ID))
	assert.Equal(t, []string{audit.ActionRequest, audit.ActionApprove, audit.ActionConfirmTake}, f.recorder.Actions(a.ID))

	movements, total, err := f.store.Equipment().ListMovements(context.Background(), &eqdto.MovementFilters{EquipmentID: "eq-1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, m := range movements {
		assert.Equal(t, model.MovementLoanTake, m.MovementType)
		assert.Equal(t, -1, m.QuantityChange)
		require.NotNil(t, m.ReferenceID)
	}
}

func Test_ApproveLoan_InsufficientStockReportsRemaining(t *testing.T) {
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 3, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 2)
	b := f.request(t, "eq-1", 2)
	_, err := f.approve(a.ID)
	require.NoError(t, err)

	_, err = f.approve(b.ID)

	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	require.NotNil(t, appErr.Remaining)
	assert.Equal(t, 1, *appErr.Remaining)
	assert.Equal(t, model.LoanPending, f.stored(t, b.ID).Status)
}

func Test_ApproveLoan_ConcurrentApprovalsNeverOvercommit(t *testing.T) {
	// arrange
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 5, model.EquipmentAvailable)
	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		ids = append(ids, f.request(t, "eq-1", 2).ID)
	}

	// act
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.approve(id)
		}(i, id)
	}
	wg.Wait()

	// assert
	succeeded, reserved := 0, 0
	for i, id := range ids {
		if errs[i] == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(errs[i], apperr.ErrInsufficientStock) || errors.Is(errs[i], apperr.ErrNotPending), errs[i].Error())
		}
		l := f.stored(t, id)
		if l.Status == model.LoanApproved || l.Status == model.LoanBorrowed {
			reserved += l.Quantity
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.LessOrEqual(t, reserved, 5)
}

func Test_ConfirmTake_FailsAfterStockReductionAndLeavesLoanApproved(t *testing.T) {
	// arrange
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 2, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 2)
	_, err := f.approve(a.ID)
	require.NoError(t, err)

	e := f.equipment(t, "eq-1")
	e.Stock = 1
	require.NoError(t, f.store.Equipment().UpdateStock(context.Background(), &e))

	// act
	_, err = f.take(a.ID)

	// assert
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, model.LoanApproved, f.stored(t, a.ID).Status)
	assert.Equal(t, 1, f.equipment(t, "eq-1").Stock)
	assert.Equal(t, []string{audit.ActionRequest, audit.ActionApprove}, f.recorder.Actions(a.ID))
}

func Test_ConfirmTake_ExhaustingStockRejectsPending(t *testing.T) {
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 3, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)
	_, err := f.approve(a.ID)
	require.NoError(t, err)

	// An admin write-off after approval leaves one unit; a new request
	// still fits the soft check.
	e := f.equipment(t, "eq-1")
	e.Stock = 1
	require.NoError(t, f.store.Equipment().UpdateStock(context.Background(), &e))
	b := f.request(t, "eq-1", 1)

	_, err = f.take(a.ID)
	require.NoError(t, err)

	rejected := f.stored(t, b.ID)
	assert.Equal(t, model.LoanRejected, rejected.Status)
	assert.Equal(t, usecase.ReasonExhaustedByTake, *rejected.RejectionReason)
}

func Test_ConfirmTake_RequiresApproved(t *testing.T) {
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 2, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)

	_, err := f.take(a.ID)

	require.ErrorIs(t, err, apperr.ErrNotApproved)
	assert.Equal(t, 2, f.equipment(t, "eq-1").Stock)
}

func Test_RejectLoan(t *testing.T) {
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 2, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)

	t.Run("short reason", func(t *testing.T) {
		_, err := f.uc.RejectLoan(context.Background(), &dto.RejectLoanInput{Actor: staff, LoanID: a.ID, Reason: "  no  "})
		require.ErrorIs(t, err, apperr.ErrInvalidReason)
		assert.Equal(t, model.LoanPending, f.stored(t, a.ID).Status)
	})

	t.Run("rejects pending", func(t *testing.T) {
		l, err := f.uc.RejectLoan(context.Background(), &dto.RejectLoanInput{Actor: staff, LoanID: a.ID, Reason: " not this week "})
		require.NoError(t, err)
		assert.Equal(t, model.LoanRejected, l.Status)
		assert.Equal(t, "not this week", *l.RejectionReason)
	})

	t.Run("not pending anymore", func(t *testing.T) {
		_, err := f.uc.RejectLoan(context.Background(), &dto.RejectLoanInput{Actor: staff, LoanID: a.ID, Reason: "again"})
		require.ErrorIs(t, err, apperr.ErrNotPending)
	})

	t.Run("unknown loan", func(t *testing.T) {
		_, err := f.uc.RejectLoan(context.Background(), &dto.RejectLoanInput{Actor: staff, LoanID: "missing", Reason: "whatever"})
		require.ErrorIs(t, err, apperr.ErrLoanNotFound)
	})
}

func Test_ReadAccessors_DeriveOverdue(t *testing.T) {
	// arrange
	f := newFixture(t)
	f.seedEquipment(t, "eq-1", 2, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)
	_, err := f.approve(a.ID)
	require.NoError(t, err)
	_, err = f.take(a.ID)
	require.NoError(t, err)

	// act
	onTime, err := f.uc.GetLoan(context.Background(), a.ID)
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	late, err := f.uc.GetLoan(context.Background(), a.ID)
	require.NoError(t, err)
	overdue, total, err := f.uc.ListLoansForEquipment(context.Background(), &dto.LoanFilters{EquipmentID: "eq-1", Status: model.LoanOverdue, Page: 1, PageSize: 10})
	require.NoError(t, err)

	// assert
	assert.Equal(t, model.LoanBorrowed, onTime.Status)
	assert.Equal(t, model.LoanOverdue, late.Status)
	assert.Equal(t, model.LoanBorrowed, f.stored(t, a.ID).Status, "overdue is never persisted")
	assert.Equal(t, 1, total)
	require.Len(t, overdue, 1)
	assert.Equal(t, model.LoanOverdue, overdue[0].Status)
}

func Test_ListLoansForEquipment_CacheIsInvalidatedByTransitions(t *testing.T) {
	// arrange
	srv := miniredis.RunT(t)
	client, err := cache.NewRedisClient(&cache.Config{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, usecase.WithListCache(listcache.New(client, time.Minute, logger.NewNop())))
	f.seedEquipment(t, "eq-1", 5, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)
	filters := func() *dto.LoanFilters {
		return &dto.LoanFilters{EquipmentID: "eq-1", Status: model.LoanPending, Page: 1, PageSize: 10}
	}

	// act
	first, _, err := f.uc.ListLoansForEquipment(context.Background(), filters())
	require.NoError(t, err)
	f.request(t, "eq-1", 1)
	_, err = f.approve(a.ID)
	require.NoError(t, err)
	second, total, err := f.uc.ListLoansForEquipment(context.Background(), filters())
	require.NoError(t, err)

	// assert
	assert.Len(t, first, 1)
	assert.Equal(t, 1, total)
	require.Len(t, second, 1)
	assert.NotEqual(t, a.ID, second[0].ID)
}

// interleavingLoans runs afterRead once, between reading a list page and
// returning it.
type interleavingLoans struct {
	loan.Repository
	afterRead func()
}

func (r *interleavingLoans) FindAll(ctx context.Context, filters *dto.LoanFilters) ([]model.Loan, int, error) {
	items, count, err := r.Repository.FindAll(ctx, filters)
	if hook := r.afterRead; hook != nil {
		r.afterRead = nil
		hook()
	}
	return items, count, err
}

func Test_ListLoansForEquipment_TransitionDuringReadIsNotCached(t *testing.T) {
	// arrange
	srv := miniredis.RunT(t)
	client, err := cache.NewRedisClient(&cache.Config{Addr: srv.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	loans := &interleavingLoans{Repository: f.store.Loans()}
	f.uc = usecase.NewLoanUseCase(f.store, loans, f.store.Equipment(), f.recorder, logger.NewNop(),
		usecase.WithClock(f.clock.Now),
		usecase.WithListCache(listcache.New(client, time.Minute, logger.NewNop())))
	f.seedEquipment(t, "eq-1", 5, model.EquipmentAvailable)
	a := f.request(t, "eq-1", 1)
	loans.afterRead = func() {
		_, err := f.approve(a.ID)
		require.NoError(t, err)
	}
	filters := func() *dto.LoanFilters {
		return &dto.LoanFilters{EquipmentID: "eq-1", Page: 1, PageSize: 10}
	}

	// act
	racing, _, err := f.uc.ListLoansForEquipment(context.Background(), filters())
	require.NoError(t, err)
	after, _, err := f.uc.ListLoansForEquipment(context.Background(), filters())
	require.NoError(t, err)

	// assert
	require.Len(t, racing, 1)
	assert.Equal(t, model.LoanPending, racing[0].Status)
	require.Len(t, after, 1)
	assert.Equal(t, model.LoanApproved, after[0].Status)
	assert.Equal(t, model.LoanApproved, f.stored(t, a.ID).Status)
}

func Test_ListLoansForEquipment_RequiresEquipment(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.uc.ListLoansForEquipment(context.Background(), &dto.LoanFilters{})

	require.ErrorIs(t, err, apperr.ErrValidation)
}

func Test_ApproveLoan_UnknownLoan(t *testing.T) {
	f := newFixture(t)

	_, err := f.approve(fmt.Sprintf("missing-%d", 1))

	require.ErrorIs(t, err, apperr.ErrLoanNotFound)
}
