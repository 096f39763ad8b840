package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgents(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()

	seedAgent(t, repo, addrA, "alpha")

	t.Run("duplicate address", func(t *testing.T) {
		err := repo.CreateAgent(ctx, &models.Agent{Address: addrA, Name: "again"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicate))
	})

	t.Run("missing agent", func(t *testing.T) {
		_, err := repo.GetAgent(ctx, addrB)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("profile joins credit", func(t *testing.T) {
		p, err := repo.GetAgentProfile(ctx, addrA)
		require.NoError(t, err)
		assert.Equal(t, "alpha", p.Name)
		require.NotNil(t, p.Score)
		assert.Equal(t, 300, *p.Score)
		assert.Equal(t, "No Credit", *p.Tier)
		assert.Equal(t, testEpoch, p.CreatedAt.UTC())
	})

	t.Run("profile without credit row", func(t *testing.T) {
		require.NoError(t, repo.CreateAgent(ctx, &models.Agent{Address: addrB, Name: "beta"}))
		p, err := repo.GetAgentProfile(ctx, addrB)
		require.NoError(t, err)
		assert.Nil(t, p.Score)

		missing, err := repo.AgentsWithoutCredit(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{addrB}, missing)
	})

	t.Run("update keeps omitted fields", func(t *testing.T) {
		clock.advance(time.Minute)
		desc := "lends compute credits"
		a, err := repo.UpdateAgentProfile(ctx, addrA, nil, &desc)
		require.NoError(t, err)
		assert.Equal(t, "alpha", a.Name)
		assert.Equal(t, desc, a.Description)
		assert.Equal(t, testEpoch.Add(time.Minute), a.UpdatedAt.UTC())

		_, err = repo.UpdateAgentProfile(ctx, addrC, nil, &desc)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("verify once", func(t *testing.T) {
		ok, err := repo.MarkAgentVerified(ctx, addrA)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.MarkAgentVerified(ctx, addrA)
		require.NoError(t, err)
		assert.False(t, ok)

		verified := true
		list, err := repo.ListAgentProfiles(ctx, &verified, 0, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, addrA, list[0].Address)

		n, err := repo.CountAgents(ctx, false)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		n, err = repo.CountAgents(ctx, true)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}

func TestLoanTransitions(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "borrower")
	seedAgent(t, repo, addrB, "lender")

	loan := seedLoan(t, repo, addrA, 5_000_000)
	assert.EqualValues(t, 1, loan.LoanID)
	assert.Equal(t, models.LoanRequested, loan.Status)

	active, err := repo.CountActiveLoans(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	ok, err := repo.RepayLoan(ctx, loan.LoanID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "requested loan cannot be repaid")

	hash := "0xabc"
	ok, err = repo.FundLoan(ctx, loan.LoanID, addrB, &hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.FundLoan(ctx, loan.LoanID, addrC, nil)
	require.NoError(t, err)
	assert.False(t, ok, "second funding must lose")

	ok, err = repo.CancelLoan(ctx, loan.LoanID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetLoan(ctx, loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanFunded, got.Status)
	require.NotNil(t, got.LenderAddress)
	assert.Equal(t, addrB, *got.LenderAddress)
	require.NotNil(t, got.FundedAt)
	assert.Equal(t, hash, *got.TxHash)

	ok, err = repo.RepayLoan(ctx, loan.LoanID, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.GetLoan(ctx, loan.LoanID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanRepaid, got.Status)
	assert.Equal(t, hash, *got.TxHash, "nil hash keeps the previous one")
	require.NotNil(t, got.RepaidAt)

	ok, err = repo.DefaultLoan(ctx, loan.LoanID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetLoan(ctx, 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFundLoanRace(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "borrower")
	loan := seedLoan(t, repo, addrA, 5_000_000)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, lender := range []string{addrB, addrC, addrB, addrC} {
		wg.Add(1)
		go func(lender string) {
			defer wg.Done()
			ok, err := repo.FundLoan(ctx, loan.LoanID, lender, nil)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(lender)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestListLoans(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "a")
	seedAgent(t, repo, addrB, "b")

	first := seedLoan(t, repo, addrA, 1_000_000)
	clock.advance(time.Hour)
	second := seedLoan(t, repo, addrB, 2_000_000)
	clock.advance(time.Hour)
	third := seedLoan(t, repo, addrA, 3_000_000)
	_, err := repo.FundLoan(ctx, second.LoanID, addrA, nil)
	require.NoError(t, err)

	all, err := repo.ListLoans(ctx, models.LoanFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.LoanID, all[0].LoanID)
	assert.Equal(t, first.LoanID, all[2].LoanID)

	requested := models.LoanRequested
	open, err := repo.ListLoans(ctx, models.LoanFilter{Status: &requested, Borrower: addrA})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	lent, err := repo.ListLoans(ctx, models.LoanFilter{Lender: addrA})
	require.NoError(t, err)
	require.Len(t, lent, 1)
	assert.Equal(t, second.LoanID, lent[0].LoanID)

	page, err := repo.ListLoans(ctx, models.LoanFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.LoanID, page[0].LoanID)

	recent, err := repo.LoansCreatedSince(ctx, testEpoch.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	funded, err := repo.FundedBefore(ctx, clock.now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, funded, 1)
	assert.Equal(t, second.LoanID, funded[0].LoanID)
}

func TestCreditScoreInTx(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "a")
	loan := seedLoan(t, repo, addrA, 1_000_000)

	err := repo.InTx(ctx, func(tx *Repository) error {
		cs, err := tx.LockCreditScore(ctx, addrA)
		if err != nil {
			return err
		}
		old := cs.Score
		cs.Score = 310
		cs.RepaidLoans++
		if err := tx.SaveCreditScore(ctx, cs); err != nil {
			return err
		}
		return tx.AddCreditEvent(ctx, &models.CreditEvent{
			AgentAddress: addrA, LoanID: &loan.LoanID, OldScore: old, NewScore: cs.Score, Reason: "loan_repaid",
		})
	})
	require.NoError(t, err)

	cs, err := repo.GetCreditScore(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, 310, cs.Score)
	assert.Equal(t, 1, cs.RepaidLoans)

	events, err := repo.ListCreditEvents(ctx, addrA, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 300, events[0].OldScore)
	assert.Equal(t, loan.LoanID, *events[0].LoanID)
}

func TestInTxRollsBack(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx *Repository) error {
		if err := tx.CreateAgent(ctx, &models.Agent{Address: addrA}); err != nil {
			return err
		}
		return tx.InTx(ctx, func(inner *Repository) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetAgent(ctx, addrA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifications(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "alpha")

	pv := &models.PendingVerification{AgentAddress: addrA, Token: "tok-1"}
	require.NoError(t, repo.CreateVerification(ctx, pv))
	assert.Equal(t, models.VerificationPending, pv.Status)

	err := repo.CreateVerification(ctx, &models.PendingVerification{AgentAddress: addrA, Token: "tok-2"})
	assert.ErrorIs(t, err, ErrDuplicate)

	n, err := repo.CountPendingVerifications(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	handle := "alpha_bot"
	ok, err := repo.CompleteVerification(ctx, pv.ID, &handle, "auto")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.CompleteVerification(ctx, pv.ID, nil, "admin")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetVerificationByAgent(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationVerified, got.Status)
	assert.Equal(t, handle, *got.ExternalHandle)
	assert.Equal(t, "auto", *got.VerifiedBy)

	st, err := repo.GetVerificationStatus(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", st.AgentName)
	assert.False(t, st.AgentVerified)

	_, err = repo.GetVerificationByToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessages(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "borrower")
	seedAgent(t, repo, addrB, "lender")
	loan := seedLoan(t, repo, addrA, 1_000_000)

	require.NoError(t, repo.CreateMessage(ctx, &models.Message{LoanID: loan.LoanID, SenderAddress: addrA, Content: "hi"}))
	clock.advance(time.Second)
	require.NoError(t, repo.CreateMessage(ctx, &models.Message{LoanID: loan.LoanID, SenderAddress: addrA, Content: "still there?"}))
	clock.advance(time.Second)
	require.NoError(t, repo.CreateMessage(ctx, &models.Message{LoanID: loan.LoanID, SenderAddress: addrB, Content: "yes"}))

	msgs, err := repo.ListMessages(ctx, loan.LoanID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "borrower", *msgs[0].SenderName)

	unread, err := repo.UnreadCount(ctx, loan.LoanID, addrB)
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	marked, err := repo.MarkMessagesRead(ctx, loan.LoanID, addrB)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	unread, err = repo.UnreadCount(ctx, loan.LoanID, addrB)
	require.NoError(t, err)
	assert.Zero(t, unread)
	unread, err = repo.UnreadCount(ctx, loan.LoanID, addrA)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)
}

func TestWebhooks(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	wh := &models.Webhook{
		AgentAddress: addrA,
		URL:          "https://agent.example/hook",
		Events:       models.EventList{models.EventLoanFunded},
		Secret:       "enc-1",
	}
	require.NoError(t, repo.UpsertWebhook(ctx, wh))
	firstID := wh.ID

	again := &models.Webhook{
		AgentAddress: addrA,
		URL:          "https://agent.example/hook",
		Events:       models.EventList{models.EventLoanFunded, models.EventLoanRepaid},
		Secret:       "enc-2",
	}
	require.NoError(t, repo.UpsertWebhook(ctx, again))
	assert.Equal(t, firstID, again.ID)

	got, err := repo.GetWebhook(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "enc-2", got.Secret)
	assert.True(t, got.Events.Contains(models.EventLoanRepaid))

	other := &models.Webhook{AgentAddress: addrB, URL: "https://b.example/hook", Secret: "enc-3"}
	require.NoError(t, repo.UpsertWebhook(ctx, other))

	active, err := repo.ActiveWebhooksFor(ctx, []string{addrA, addrB, addrC})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	ok, err := repo.DeactivateWebhook(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err = repo.ActiveWebhooksFor(ctx, []string{addrB})
	require.NoError(t, err)
	assert.Empty(t, active)

	body := "ok"
	require.NoError(t, repo.AddWebhookLog(ctx, &models.WebhookLog{
		WebhookID: firstID, DeliveryID: "d-1", Event: models.EventTest, Payload: "{}",
		ResponseStatus: 200, ResponseBody: &body, Success: true,
	}))
	logs, err := repo.ListWebhookLogs(ctx, firstID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
}
