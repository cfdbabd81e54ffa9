package returns

import (
	"context"

	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, ret *model.Return) error
	FindByID(ctx context.Context, id string) (*model.Return, error)
	LockByID(ctx context.Context, id string) (*model.Return, error)
	FindByLoanID(ctx context.Context, loanID string) (*model.Return, error)
	Update(ctx context.Context, ret *model.Return) error
}
