package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dan9191/credit-network/internal/config"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/notify"
	"github.com/Dan9191/credit-network/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"

	testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc    *Service
	db     *repository.DB
	repo   *repository.Repository
	clock  *testClock
	events *notify.Recorder
	cfg    *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		DBDriver:           "sqlite3",
		PublicURL:          "http://acn.test",
		JWTSecret:          "test-secret",
		EncryptionKey:      testKey,
		RegistrationLimit:  3,
		RegistrationWindow: time.Hour,
		RateLimitBackend:   "memory",
		WebhookWorkers:     1,
		WebhookTimeout:     time.Second,
		DefaultGraceDays:   7,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newFixture wires a service to a fresh SQLite database
func newFixture(t *testing.T, mutate func(*config.Config), opts ...Option) *fixture {
	t.Helper()

	db, err := repository.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "acn.db")+"?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := repository.NewRepository(db)
	repo.SetClock(clock.now)

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	events := notify.NewRecorder(64)
	svc, err := NewService(repo, quietLogger(), cfg, append([]Option{WithNotifier(events)}, opts...)...)
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, repo: repo, clock: clock, events: events, cfg: cfg}
}

func (f *fixture) register(t *testing.T, address, name string) *Registration {
	t.Helper()
	reg, err := f.svc.RegisterAgent(context.Background(), RegisterInput{Address: address, Name: name, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	return reg
}

func (f *fixture) request(t *testing.T, borrower string, amount int64) *models.Loan {
	t.Helper()
	loan, err := f.svc.RequestLoan(context.Background(), LoanRequest{
		Borrower:     borrower,
		Amount:       amount,
		InterestRate: 1000,
		Duration:     30,
		Purpose:      "inference credits",
	})
	require.NoError(t, err)
	return loan
}

func (f *fixture) funded(t *testing.T, borrower, lender string, amount int64) *models.Loan {
	t.Helper()
	loan := f.request(t, borrower, amount)
	loan, err := f.svc.FundLoan(context.Background(), loan.LoanID, lender, "")
	require.NoError(t, err)
	return loan
}

// dropCredit deletes an agent's credit record, as left behind by agents registered before credit tracking
func (f *fixture) dropCredit(t *testing.T, address string) {
	t.Helper()
	err := f.db.WithTx(context.Background(), func(q repository.Querier) error {
		_, err := q.Execute(context.Background(), `DELETE FROM credit_scores WHERE agent_address = ?`, address)
		return err
	})
	require.NoError(t, err)
}

func eventNames(events []notify.Event) []string {
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	return names
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, kind.Code(), se.Kind.Code(), se.Error())
	return se
}
