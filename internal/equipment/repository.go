package equipment

import (
	"context"

	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

// Repository is the inventory ledger. Methods that read-then-decide must be
// called with a ctx obtained from postgres.Transactor.WithinTx.
type Repository interface {
	Create(ctx context.Context, e *model.Equipment) error
	FindByID(ctx context.Context, id string) (*model.Equipment, error)

	// LockByID reads the row and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id string) (*model.Equipment, error)

	// ReservedQuantity sums quantity over APPROVED loans of the item.
	ReservedQuantity(ctx context.Context, equipmentID string) (int, error)

	// DecrementStock subtracts amount and recomputes status. It fails with
	// apperr.ErrInsufficientStock instead of going below zero.
	DecrementStock(ctx context.Context, equipmentID string, amount int) (*model.Equipment, error)

	UpdateStock(ctx context.Context, e *model.Equipment) error

	// Movements / Audit
	LogMovement(ctx context.Context, movement *model.EquipmentMovement) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.EquipmentMovement, int, error)
}
