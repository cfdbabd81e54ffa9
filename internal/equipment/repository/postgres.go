package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-lending-service/internal/apperr"
	"github.com/fekuna/omnipos-lending-service/internal/equipment/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const equipmentColumns = `id, name, stock, status, item_value, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, e *model.Equipment) error {
	query := `
        INSERT INTO equipment (id, name, stock, status, item_value, created_at, updated_at)
        VALUES (:id, :name, :stock, :status, :item_value, :created_at, :updated_at)
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, e)
	return err
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Equipment, error) {
	return r.get(ctx, `SELECT `+equipmentColumns+` FROM equipment WHERE id = $1`, id)
}

func (r *PGRepository) LockByID(ctx context.Context, id string) (*model.Equipment, error) {
	return r.get(ctx, `SELECT `+equipmentColumns+` FROM equipment WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, query string, args ...interface{}) (*model.Equipment, error) {
	var e model.Equipment
	err := postgres.ExecutorFrom(ctx, r.DB).GetContext(ctx, &e, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *PGRepository) ReservedQuantity(ctx context.Context, equipmentID string) (int, error) {
	var reserved int
	query := `SELECT COALESCE(SUM(quantity), 0) FROM loans WHERE equipment_id = $1 AND status = $2`
	err := postgres.ExecutorFrom(ctx, r.DB).GetContext(ctx, &reserved, query, equipmentID, string(model.LoanApproved))
	return reserved, err
}

func (r *PGRepository) DecrementStock(ctx context.Context, equipmentID string, amount int) (*model.Equipment, error) {
	exec := postgres.ExecutorFrom(ctx, r.DB)

	// The stock >= $1 guard re-validates the caller's pre-check.
	query := `
        UPDATE equipment
        SET stock = stock - $1,
            status = CASE
                WHEN status = 'MAINTENANCE' THEN status
                WHEN stock - $1 <= 0 THEN 'UNAVAILABLE'
                ELSE 'AVAILABLE'
            END,
            updated_at = NOW()
        WHERE id = $2 AND stock >= $1
        RETURNING ` + equipmentColumns

	var e model.Equipment
	err := exec.GetContext(ctx, &e, query, amount, equipmentID)
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	current, err := r.FindByID(ctx, equipmentID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.ErrEquipmentNotFound
	}
	return nil, apperr.InsufficientStock(current.Stock)
}

func (r *PGRepository) UpdateStock(ctx context.Context, e *model.Equipment) error {
	query := `
        UPDATE equipment
        SET stock = :stock, status = :status, updated_at = :updated_at
        WHERE id = :id
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, e)
	return err
}

func (r *PGRepository) LogMovement(ctx context.Context, m *model.EquipmentMovement) error {
	query := `
        INSERT INTO equipment_movements (
            id, equipment_id, movement_type, quantity_change, quantity_before,
            quantity_after, reference_id, notes, created_by, created_at
        )
        VALUES (
            :id, :equipment_id, :movement_type, :quantity_change, :quantity_before,
            :quantity_after, :reference_id, :notes, :created_by, :created_at
        )
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, m)
	return err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.EquipmentMovement, int, error) {
	exec := postgres.ExecutorFrom(ctx, r.DB)

	conditions := []string{}
	args := map[string]interface{}{}

	if f.EquipmentID != "" {
		conditions = append(conditions, "equipment_id = :equipment_id")
		args["equipment_id"] = f.EquipmentID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM equipment_movements"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := exec.GetContext(ctx, &count, exec.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM equipment_movements" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	listQuery, listArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, err
	}
	items := []model.EquipmentMovement{}
	err = exec.SelectContext(ctx, &items, exec.Rebind(listQuery), listArgs...)
	return items, count, err
}
