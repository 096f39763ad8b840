package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewRepository(NewDB(sqlx.NewDb(mockDB, "postgres"))), mock
}

func TestRebindForPostgres(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(`UPDATE loans SET status = \$1\s+WHERE loan_id = \$2 AND status = \$3`).
		WithArgs(int64(4), int64(7), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.CancelLoan(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockCreditScoreUsesForUpdate(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"agent_address", "score", "tier", "total_loans", "repaid_loans", "defaulted_loans", "max_loan_amount", "updated_at"}).
		AddRow(addrA, 300, "No Credit", 0, 0, 0, 25_000_000, testEpoch)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM credit_scores WHERE agent_address = \$1 FOR UPDATE`).
		WithArgs(addrA).
		WillReturnRows(rows)
	mock.ExpectCommit()

	err := repo.InTx(context.Background(), func(tx *Repository) error {
		cs, err := tx.LockCreditScore(context.Background(), addrA)
		if err != nil {
			return err
		}
		assert.Equal(t, 300, cs.Score)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO agents`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	err := repo.InTx(context.Background(), func(tx *Repository) error {
		return tx.CreateAgent(context.Background(), &models.Agent{Address: addrA})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOneMapsNoRows(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`FROM loans WHERE loan_id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"loan_id"}))

	_, err := repo.GetLoan(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
