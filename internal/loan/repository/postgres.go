package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/fekuna/omnipos-lending-service/internal/loan/dto"
	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

const (
	dialectPostgres = "postgres"
	tableLoans      = "loans"

	loanColumns = `id, equipment_id, borrower_id, quantity, deadline, purpose, status,
        approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
        taken_by, taken_at, created_at, updated_at`
)

var listColumns = []interface{}{
	"id", "equipment_id", "borrower_id", "quantity", "deadline", "purpose", "status",
	"approved_by", "approved_at", "rejected_by", "rejected_at", "rejection_reason",
	"taken_by", "taken_at", "created_at", "updated_at",
}

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, l *model.Loan) error {
	query := `
        INSERT INTO loans (
            id, equipment_id, borrower_id, quantity, deadline, purpose, status,
            approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
            taken_by, taken_at, created_at, updated_at
        )
        VALUES (
            :id, :equipment_id, :borrower_id, :quantity, :deadline, :purpose, :status,
            :approved_by, :approved_at, :rejected_by, :rejected_at, :rejection_reason,
            :taken_by, :taken_at, :created_at, :updated_at
        )
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, l)
	return err
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Loan, error) {
	return r.get(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

func (r *PGRepository) LockByID(ctx context.Context, id string) (*model.Loan, error) {
	return r.get(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, query string, args ...interface{}) (*model.Loan, error) {
	var l model.Loan
	err := postgres.ExecutorFrom(ctx, r.DB).GetContext(ctx, &l, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepository) Update(ctx context.Context, l *model.Loan) error {
	query := `
        UPDATE loans
        SET status = :status,
            approved_by = :approved_by, approved_at = :approved_at,
            rejected_by = :rejected_by, rejected_at = :rejected_at,
            rejection_reason = :rejection_reason,
            taken_by = :taken_by, taken_at = :taken_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := postgres.ExecutorFrom(ctx, r.DB).NamedExecContext(ctx, query, l)
	return err
}

func (r *PGRepository) RejectPending(ctx context.Context, equipmentID, exceptID, actorID, reason string, at time.Time) ([]model.Loan, error) {
	query := `
        UPDATE loans
        SET status = $1, rejected_by = $2, rejected_at = $3, rejection_reason = $4, updated_at = $3
        WHERE equipment_id = $5 AND id <> $6 AND status = $7
        RETURNING ` + loanColumns

	rejected := []model.Loan{}
	err := postgres.ExecutorFrom(ctx, r.DB).SelectContext(ctx, &rejected, query,
		string(model.LoanRejected), actorID, at, reason, equipmentID, exceptID, string(model.LoanPending))
	if err != nil {
		return nil, fmt.Errorf("reject pending loans: %w", err)
	}
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].ID < rejected[j].ID })
	return rejected, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.LoanFilters) ([]model.Loan, int, error) {
	exec := postgres.ExecutorFrom(ctx, r.DB)

	ds := goqu.Dialect(dialectPostgres).From(tableLoans).Prepared(true)
	for _, cond := range conditions(f) {
		ds = ds.Where(cond)
	}

	countQuery, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := exec.GetContext(ctx, &count, countQuery, countArgs...); err != nil {
		return nil, 0, err
	}

	list := ds.Select(listColumns...).Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		list = list.Limit(uint(f.PageSize)).Offset(uint((page - 1) * f.PageSize))
	}
	listQuery, listArgs, err := list.ToSQL()
	if err != nil {
		return nil, 0, err
	}

	items := []model.Loan{}
	err = exec.SelectContext(ctx, &items, listQuery, listArgs...)
	return items, count, err
}

// conditions translates the filters into WHERE expressions. OVERDUE is not a
// stored status: it selects BORROWED rows whose deadline date is before the
// day of f.Now, and BORROWED then excludes those rows.
func conditions(f *dto.LoanFilters) []exp.Expression {
	var out []exp.Expression
	if f.EquipmentID != "" {
		out = append(out, goqu.C("equipment_id").Eq(f.EquipmentID))
	}
	if f.BorrowerID != "" {
		out = append(out, goqu.C("borrower_id").Eq(f.BorrowerID))
	}

	today := model.DateOf(f.Now)
	switch f.Status {
	case "":
	case model.LoanOverdue:
		out = append(out,
			goqu.C("status").Eq(string(model.LoanBorrowed)),
			goqu.C("deadline").Lt(today))
	case model.LoanBorrowed:
		out = append(out,
			goqu.C("status").Eq(string(model.LoanBorrowed)),
			goqu.C("deadline").Gte(today))
	default:
		out = append(out, goqu.C("status").Eq(string(f.Status)))
	}
	return out
}
