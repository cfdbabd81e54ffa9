package returns

import (
	"context"

	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/internal/returns/dto"
)

type UseCase interface {
	SubmitReturn(ctx context.Context, input *dto.SubmitReturnInput) (*model.Return, error)
	ConfirmReturn(ctx context.Context, input *dto.ConfirmReturnInput) (*model.Return, error)
	GetReturn(ctx context.Context, id string) (*model.Return, error)
	GetReturnByLoan(ctx context.Context, loanID string) (*model.Return, error)
}
