package dto

import (
	"time"

	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type LoanFilters struct {
	EquipmentID string
	BorrowerID  string
	// Status may be OVERDUE, which selects BORROWED loans past their
	// deadline date at Now.
	Status   model.LoanStatus
	Now      time.Time
	Page     int
	PageSize int
}
