package dto

import "github.com/shopspring/decimal"

type RegisterEquipmentInput struct {
	ID        string // optional, generated when empty
	Name      string `validate:"required"`
	Stock     int    `validate:"gte=0"`
	ItemValue decimal.Decimal
	UserID    string
}

type AdjustStockInput struct {
	EquipmentID    string `validate:"required"`
	QuantityChange int    `validate:"ne=0"`
	Reason         string
	UserID         string
}

type SetMaintenanceInput struct {
	EquipmentID string `validate:"required"`
	Maintenance bool
	Reason      string
	UserID      string
}
