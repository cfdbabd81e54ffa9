package dto

import (
	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-lending-service/internal/auth"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type SubmitReturnInput struct {
	Actor      auth.Actor
	LoanID     string                `validate:"required"`
	Condition  model.ReturnCondition `validate:"required,oneof=GOOD MINOR_DAMAGE MODERATE_DAMAGE SEVERE_DAMAGE LOST"`
	Notes      string                `validate:"max=1000"`
	ProofPhoto string
	// ClientFeeHint is what the borrower's screen showed. It is never used
	// for the stored fee.
	ClientFeeHint *decimal.Decimal
}

type ConfirmReturnInput struct {
	Actor            auth.Actor
	ReturnID         string `validate:"required"`
	PaymentConfirmed bool
}
