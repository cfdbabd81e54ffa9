package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
)

type EquipmentRepository struct {
	s *Store
}

func (r *EquipmentRepository) Create(ctx context.Context, e *model.Equipment) error {
	defer r.s.acquire(ctx)()
	if _, ok := r.s.equipment[e.ID]; ok {
		return fmt.Errorf("equipment %s already exists", e.ID)
	}
	r.s.equipment[e.ID] = *e
	return nil
}

func (r *EquipmentRepository) FindByID(ctx context.Context, id string) (*model.Equipment, error) {
	defer r.s.acquire(ctx)()
	e, ok := r.s.equipment[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// LockByID is FindByID: a transaction already holds the whole store.
func (r *EquipmentRepository) LockByID(ctx context.Context, id string) (*model.Equipment, error) {
	return r.FindByID(ctx, id)
}

func (r *EquipmentRepository) ReservedQuantity(ctx context.Context, equipmentID string) (int, error) {
	defer r.s.acquire(ctx)()
	reserved := 0
	for _, l := range r.s.loans {
		if l.EquipmentID == equipmentID && l.Status == model.LoanApproved {
			reserved += l.Quantity
		}
	}
	return reserved, nil
}

func (r *EquipmentRepository) DecrementStock(ctx context.Context, equipmentID string, amount int) (*model.Equipment, error) {
	defer r.s.acquire(ctx)()
	e, ok := r.s.equipment[equipmentID]
	if !ok {
		return nil, apperr.ErrEquipmentNotFound
	}
	if amount > e.Stock {
		return nil, apperr.InsufficientStock(e.Stock)
	}
	e.Stock -= amount
	e.Status = model.StatusFor(e.Stock, e.Status)
	e.UpdatedAt = time.Now()
	r.s.equipment[equipmentID] = e
	return &e, nil
}

func (r *EquipmentRepository) UpdateStock(ctx context.Context, e *model.Equipment) error {
	defer r.s.acquire(ctx)()
	cur, ok := r.s.equipment[e.ID]
	if !ok {
		return apperr.ErrEquipmentNotFound
	}
	cur.Stock = e.Stock
	cur.Status = e.Status
	cur.UpdatedAt = e.UpdatedAt
	r.s.equipment[e.ID] = cur
	return nil
}

func (r *EquipmentRepository) LogMovement(ctx context.Context, m *model.EquipmentMovement) error {
	defer r.s.acquire(ctx)()
	r.s.movements = append(r.s.movements, *m)
	return nil
}

func (r *EquipmentRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.EquipmentMovement, int, error) {
	defer r.s.acquire(ctx)()
	items := []model.EquipmentMovement{}
	for _, m := range r.s.movements {
		if f.EquipmentID != "" && m.EquipmentID != f.EquipmentID {
			continue
		}
		if f.MovementType != "" && m.MovementType != f.MovementType {
			continue
		}
		items = append(items, m)
	}
	// newest first, matching ORDER BY created_at DESC
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	start, end := page(len(items), f.Page, f.PageSize)
	return items[start:end], len(items), nil
}
