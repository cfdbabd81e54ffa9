package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// Transactor runs fn inside a single database transaction. Repositories
// called with the ctx handed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Executor is the query surface shared by *sqlx.DB and *sqlx.Tx.
type Executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type txKey struct{}

type TxManager struct {
	db        *sqlx.DB
	isolation sql.IsolationLevel
}

func NewTxManager(db *sqlx.DB, isolation sql.IsolationLevel) *TxManager {
	return &TxManager{db: db, isolation: isolation}
}

// WithinTx commits when fn returns nil and rolls back otherwise. Nested calls
// reuse the outer transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: m.isolation})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ExecutorFrom returns the transaction bound to ctx, or db when there is none.
func ExecutorFrom(ctx context.Context, db *sqlx.DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// ParseIsolation maps a config value to a sql isolation level. Unknown values
// fall back to serializable.
func ParseIsolation(level string) sql.IsolationLevel {
	switch strings.ToLower(strings.ReplaceAll(level, "_", " ")) {
	case "read committed":
		return sql.LevelReadCommitted
	case "repeatable read":
		return sql.LevelRepeatableRead
	default:
		return sql.LevelSerializable
	}
}

// IsSerializationFailure reports whether err is a Postgres serialization or
// deadlock failure (SQLSTATE 40001 / 40P01). The caller decides whether to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
