package dto

type MovementFilters struct {
	EquipmentID  string
	MovementType string
	Page         int
	PageSize     int
}
