package loan

import (
	"context"

	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

// UseCase is the loan state machine.
type UseCase interface {
	RequestLoan(ctx context.Context, input *dto.RequestLoanInput) (*model.Loan, error)
	ApproveLoan(ctx context.Context, input *dto.ApproveLoanInput) (*model.Loan, error)
	RejectLoan(ctx context.Context, input *dto.RejectLoanInput) (*model.Loan, error)
	ConfirmTake(ctx context.Context, input *dto.ConfirmTakeInput) (*model.Loan, error)

	GetLoan(ctx context.Context, id string) (*model.Loan, error)
	ListLoansForEquipment(ctx context.Context, filters *dto.LoanFilters) ([]model.Loan, int, error)
}
