package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const returnColumns = `id, loan_id, status, condition, notes, proof_photo, returned_at,
        late_days, late_fee, damage_fee, total_fee, amount_paid,
        confirmed_by, confirmed_at, created_at, updated_at`

// Create relies on the unique loan_id index to refuse a second return.
func (r *PGRepository) Create(ctx context.Context, ret *model.Return) error {
	query := `
        INSERT INTO returns (
            id, loan_id, status, condition, notes, proof_photo, returned_at,
            late_days, late_fee, damage_fee, total_fee, amount_paid,
            confirmed_by, confirmed_at, created_at, updated_at
        )
        VALUES (
            :id, :loan_id, :status, :condition, :notes, :proof_photo, :returned_at,
            :late_days, :late_fee, :damage_fee, :total_fee, :amount_paid,
            :confirmed_by, :confirmed_at, :created_at, :updated_at
        )
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, ret)
	return err
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Return, error) {
	return r.get(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`, id)
}

func (r *PGRepository) LockByID(ctx context.Context, id string) (*model.Return, error) {
	return r.get(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) FindByLoanID(ctx context.Context, loanID string) (*model.Return, error) {
	return r.get(ctx, `SELECT `+returnColumns+` FROM returns WHERE loan_id = $1`, loanID)
}

func (r *PGRepository) get(ctx context.Context, query string, args ...interface{}) (*model.Return, error) {
	var ret model.Return
	err := postgres.ExecutorFrom(ctx, r.DB).GetContext(ctx, &ret, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ret, nil
}

func (r *PGRepository) Update(ctx context.Context, ret *model.Return) error {
	query := `
        UPDATE returns
        SET status = :status, amount_paid = :amount_paid,
            confirmed_by = :confirmed_by, confirmed_at = :confirmed_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, ret)
	return err
}
