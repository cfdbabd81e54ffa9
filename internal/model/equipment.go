package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type EquipmentStatus string

const (
	EquipmentAvailable   EquipmentStatus = "AVAILABLE"
	EquipmentUnavailable EquipmentStatus = "UNAVAILABLE"
	EquipmentMaintenance EquipmentStatus = "MAINTENANCE"
)

type Equipment struct {
	BaseModel
	Name      string          `db:"name" json:"name"`
	Stock     int             `db:"stock" json:"stock"` // units on the shelf, not yet taken
	Status    EquipmentStatus `db:"status" json:"status"`
	ItemValue decimal.Decimal `db:"item_value" json:"item_value"`
}

// StatusFor derives the status an item should have after its stock changed.
// Maintenance is sticky and only cleared by an explicit toggle.
func StatusFor(stock int, current EquipmentStatus) EquipmentStatus {
	if current == EquipmentMaintenance {
		return EquipmentMaintenance
	}
	if stock <= 0 {
		return EquipmentUnavailable
	}
	return EquipmentAvailable
}

const (
	MovementLoanTake    = "loan_take"
	MovementAdjustment  = "adjustment"
	MovementMaintenance = "maintenance"
)

// EquipmentMovement is one row of the stock ledger.
type EquipmentMovement struct {
	ID             string    `db:"id" json:"id"`
	EquipmentID    string    `db:"equipment_id" json:"equipment_id"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	ReferenceID    *string   `db:"reference_id" json:"reference_id"` // loan id for takes
	Notes          string    `db:"notes" json:"notes"`
	CreatedBy      *string   `db:"created_by" json:"created_by"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
