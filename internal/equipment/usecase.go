package equipment

import (
	"context"

	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

// UseCase is the inventory-admin surface: registration, restocking and
// maintenance toggles.
type UseCase interface {
	RegisterEquipment(ctx context.Context, input *dto.RegisterEquipmentInput) (*model.Equipment, error)
	GetEquipment(ctx context.Context, id string) (*model.Equipment, error)
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.Equipment, error)
	SetMaintenance(ctx context.Context, input *dto.SetMaintenanceInput) (*model.Equipment, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.EquipmentMovement, int, error)
}
