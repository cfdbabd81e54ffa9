package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/omnipos-lending-service/internal/model"
	"github.com/fekuna/omnipos-lending-service/internal/returns/repository"
)

var returnCols = []string{
	"id", "loan_id", "status", "condition", "notes", "proof_photo", "returned_at",
	"late_days", "late_fee", "damage_fee", "total_fee", "amount_paid",
	"confirmed_by", "confirmed_at", "created_at", "updated_at",
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "pgx"), mock
}

func Test_FindByLoanID_ScansMoney(t *testing.T) {
	// arrange
	db, mock := newMock(t)
	repo := repository.NewPGRepository(db)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM returns WHERE loan_id = $1")).
		WithArgs("l-1").
		WillReturnRows(sqlmock.NewRows(returnCols).AddRow(
			"r-1", "l-1", "AWAITING_CONFIRMATION", "MODERATE_DAMAGE", "", nil, now,
			3, "150000", "400000", "550000", "0",
			nil, nil, now, now))

	// act
	ret, err := repo.FindByLoanID(context.Background(), "l-1")

	// assert
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, model.ConditionModerateDamage, ret.Condition)
	assert.Equal(t, "550000", ret.TotalFee.String())
	assert.Nil(t, ret.ConfirmedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_FindByLoanID_NoReturnYet(t *testing.T) {
	db, mock := newMock(t)
	repo := repository.NewPGRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM returns WHERE loan_id = $1")).
		WithArgs("l-2").
		WillReturnRows(sqlmock.NewRows(returnCols))

	ret, err := repo.FindByLoanID(context.Background(), "l-2")

	require.NoError(t, err)
	assert.Nil(t, ret)
	assert.NoError(t, mock.ExpectationsWereMet())
}
