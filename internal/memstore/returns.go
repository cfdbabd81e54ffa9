package memstore

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type ReturnRepository struct {
	s *Store
}

func (r *ReturnRepository) Create(ctx context.Context, ret *model.Return) error {
	defer r.s.acquire(ctx)()
	for _, existing := range r.s.returns {
		if existing.LoanID == ret.LoanID {
			return fmt.Errorf("return for loan %s already exists", ret.LoanID)
		}
	}
	r.s.returns[ret.ID] = *ret
	return nil
}

func (r *ReturnRepository) FindByID(ctx context.Context, id string) (*model.Return, error) {
	defer r.s.acquire(ctx)()
	ret, ok := r.s.returns[id]
	if !ok {
		return nil, nil
	}
	return &ret, nil
}

func (r *ReturnRepository) LockByID(ctx context.Context, id string) (*model.Return, error) {
	return r.FindByID(ctx, id)
}

func (r *ReturnRepository) FindByLoanID(ctx context.Context, loanID string) (*model.Return, error) {
	defer r.s.acquire(ctx)()
	for _, ret := range r.s.returns {
		if ret.LoanID == loanID {
			return &ret, nil
		}
	}
	return nil, nil
}

func (r *ReturnRepository) Update(ctx context.Context, ret *model.Return) error {
	defer r.s.acquire(ctx)()
	if _, ok := r.s.returns[ret.ID]; !ok {
		return apperr.ErrReturnNotFound
	}
	r.s.returns[ret.ID] = *ret
	return nil
}
