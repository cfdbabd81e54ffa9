package dto

import (
	"time"

	"github.com/fekuna/omnipos-lending-service/internal/auth"
)

type RequestLoanInput struct {
	Actor       auth.Actor
	EquipmentID string    `validate:"required"`
	Quantity    int       `validate:"gt=0"`
	Deadline    time.Time `validate:"required"`
	Purpose     string    `validate:"max=500"`
}

type ApproveLoanInput struct {
	Actor  auth.Actor
	LoanID string `validate:"required"`
}

type RejectLoanInput struct {
	Actor  auth.Actor
	LoanID string `validate:"required"`
	Reason string
}

type ConfirmTakeInput struct {
	Actor  auth.Actor
	LoanID string `validate:"required"`
}
