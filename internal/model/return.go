package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReturnStatus string

const (
	ReturnAwaitingConfirmation ReturnStatus = "AWAITING_CONFIRMATION"
	ReturnConfirmed            ReturnStatus = "CONFIRMED"
)

type ReturnCondition string

const (
	ConditionGood           ReturnCondition = "GOOD"
	ConditionMinorDamage    ReturnCondition = "MINOR_DAMAGE"
	ConditionModerateDamage ReturnCondition = "MODERATE_DAMAGE"
	ConditionSevereDamage   ReturnCondition = "SEVERE_DAMAGE"
	ConditionLost           ReturnCondition = "LOST"
)

type Return struct {
	BaseModel
	LoanID      string          `db:"loan_id" json:"loan_id"`
	Status      ReturnStatus    `db:"status" json:"status"`
	Condition   ReturnCondition `db:"condition" json:"condition"`
	Notes       string          `db:"notes" json:"notes"`
	ProofPhoto  *string         `db:"proof_photo" json:"proof_photo"`
	ReturnedAt  time.Time       `db:"returned_at" json:"returned_at"`
	LateDays    int             `db:"late_days" json:"late_days"`
	LateFee     decimal.Decimal `db:"late_fee" json:"late_fee"`
	DamageFee   decimal.Decimal `db:"damage_fee" json:"damage_fee"`
	TotalFee    decimal.Decimal `db:"total_fee" json:"total_fee"`
	AmountPaid  decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	ConfirmedBy *string         `db:"confirmed_by" json:"confirmed_by"`
	ConfirmedAt *time.Time      `db:"confirmed_at" json:"confirmed_at"`
}
