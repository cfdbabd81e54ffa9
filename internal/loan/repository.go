package loan

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, loan *model.Loan) error
	FindByID(ctx context.Context, id string) (*model.Loan, error)
	// LockByID reads the loan and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id string) (*model.Loan, error)
	FindAll(ctx context.Context, filters *dto.LoanFilters) ([]model.Loan, int, error)
	Update(ctx context.Context, loan *model.Loan) error

	// RejectPending moves every PENDING loan of the equipment other than
	// exceptID to REJECTED and returns the rows it changed.
	RejectPending(ctx context.Context, equipmentID, exceptID, actorID, reason string, at time.Time) ([]model.Loan, error)
}
