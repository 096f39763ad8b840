package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// newTestRepository opens a migrated SQLite database in a temp dir
func newTestRepository(t *testing.T) (*Repository, *testClock) {
	t.Helper()

	db, err := Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "acn.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))

	clock := &testClock{t: testEpoch}
	repo := NewRepository(db)
	repo.SetClock(clock.now)
	return repo, clock
}

func seedAgent(t *testing.T, repo *Repository, address, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateAgent(ctx, &models.Agent{Address: address, Name: name}))
	require.NoError(t, repo.CreateCreditScore(ctx, &models.CreditScore{
		AgentAddress:  address,
		Score:         300,
		Tier:          "No Credit",
		MaxLoanAmount: 25_000_000,
	}))
}

func seedLoan(t *testing.T, repo *Repository, borrower string, amount int64) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		BorrowerAddress: borrower,
		Amount:          amount,
		InterestRate:    1000,
		Duration:        30,
		Purpose:         "compute",
	}
	require.NoError(t, repo.CreateLoan(context.Background(), loan))
	return loan
}

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)
