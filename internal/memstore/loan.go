package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type LoanRepository struct {
	s *Store
}

func (r *LoanRepository) Create(ctx context.Context, l *model.Loan) error {
	defer r.s.acquire(ctx)()
	if _, ok := r.s.loans[l.ID]; ok {
		return fmt.Errorf("loan %s already exists", l.ID)
	}
	r.s.loans[l.ID] = *l
	return nil
}

func (r *LoanRepository) FindByID(ctx context.Context, id string) (*model.Loan, error) {
	defer r.s.acquire(ctx)()
	l, ok := r.s.loans[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (r *LoanRepository) LockByID(ctx context.Context, id string) (*model.Loan, error) {
	return r.FindByID(ctx, id)
}

func (r *LoanRepository) Update(ctx context.Context, l *model.Loan) error {
	defer r.s.acquire(ctx)()
	if _, ok := r.s.loans[l.ID]; !ok {
		return apperr.ErrLoanNotFound
	}
	r.s.loans[l.ID] = *l
	return nil
}

func (r *LoanRepository) RejectPending(ctx context.Context, equipmentID, exceptID, actorID, reason string, at time.Time) ([]model.Loan, error) {
	defer r.s.acquire(ctx)()
	var rejected []model.Loan
	for id, l := range r.s.loans {
		if l.EquipmentID != equipmentID || l.ID == exceptID || l.Status != model.LoanPending {
			continue
		}
		by, when, why := actorID, at, reason
		l.Status = model.LoanRejected
		l.RejectedBy = &by
		l.RejectedAt = &when
		l.RejectionReason = &why
		l.UpdatedAt = at
		r.s.loans[id] = l
		rejected = append(rejected, l)
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].ID < rejected[j].ID })
	return rejected, nil
}

func (r *LoanRepository) FindAll(ctx context.Context, f *dto.LoanFilters) ([]model.Loan, int, error) {
	defer r.s.acquire(ctx)()
	items := []model.Loan{}
	for _, l := range r.s.loans {
		if f.EquipmentID != "" && l.EquipmentID != f.EquipmentID {
			continue
		}
		if f.BorrowerID != "" && l.BorrowerID != f.BorrowerID {
			continue
		}
		switch f.Status {
		case "":
		case model.LoanOverdue:
			if !l.IsOverdue(f.Now) {
				continue
			}
		case model.LoanBorrowed:
			if l.Status != model.LoanBorrowed || l.IsOverdue(f.Now) {
				continue
			}
		default:
			if l.Status != f.Status {
				continue
			}
		}
		items = append(items, l)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	start, end := page(len(items), f.Page, f.PageSize)
	return items[start:end], len(items), nil
}
