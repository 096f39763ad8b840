package service

import (
	"context"
	"testing"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.register(t, addrA, "alpha")
	loan := f.funded(t, addrA, addrB, 5_000_000)
	f.events.Events()

	_, err := f.svc.SendMessage(ctx, loan.LoanID, addrC, "let me in")
	requireKind(t, err, KindForbidden)
	msgs, err := f.svc.ListMessages(ctx, loan.LoanID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = f.svc.SendMessage(ctx, loan.LoanID, addrA, "   ")
	requireKind(t, err, KindValidation)

	long := make([]rune, maxMessageLength+1)
	for i := range long {
		long[i] = 'é'
	}
	_, err = f.svc.SendMessage(ctx, loan.LoanID, addrA, string(long))
	requireKind(t, err, KindValidation)
	_, err = f.svc.SendMessage(ctx, loan.LoanID, addrA, string(long[:maxMessageLength]))
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, loan.LoanID, addrA, "repaying friday")
	require.NoError(t, err)
	assert.Equal(t, addrA, msg.SenderAddress)

	events := f.events.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{addrB}, events[1].Recipients)

	unread, err := f.svc.UnreadCount(ctx, loan.LoanID, addrB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	_, err = f.svc.MarkRead(ctx, loan.LoanID, addrC)
	requireKind(t, err, KindForbidden)

	n, err := f.svc.MarkRead(ctx, loan.LoanID, addrB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = f.svc.UnreadCount(ctx, loan.LoanID, addrB)
	require.NoError(t, err)
	assert.Zero(t, unread)

	_, err = f.svc.ListMessages(ctx, 404, 0)
	requireKind(t, err, KindNotFound)
}

func TestAutoRepay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.register(t, addrA, "alpha")
	loan := f.funded(t, addrA, addrB, 5_000_000)

	_, err := f.svc.ConfigureAutoRepay(ctx, AutoRepayInput{AgentAddress: addrB, LoanID: loan.LoanID, Threshold: 6_000_000})
	requireKind(t, err, KindForbidden)

	_, err = f.svc.ConfigureAutoRepay(ctx, AutoRepayInput{AgentAddress: addrA, LoanID: loan.LoanID})
	requireKind(t, err, KindValidation)

	cfg, err := f.svc.ConfigureAutoRepay(ctx, AutoRepayInput{AgentAddress: addrA, LoanID: loan.LoanID, Threshold: 6_000_000, MinBalance: 1_000_000})
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)

	cfgs, err := f.svc.ListAutoRepay(ctx, addrA)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)

	done, repaid, err := f.svc.ExecuteAutoRepay(ctx, cfg.ID, "")
	require.NoError(t, err)
	assert.False(t, done.Enabled)
	assert.NotNil(t, done.ExecutedAt)
	assert.Equal(t, models.LoanRepaid, repaid.Status)

	_, _, err = f.svc.ExecuteAutoRepay(ctx, cfg.ID, "")
	requireKind(t, err, KindConflict)

	_, err = f.svc.ConfigureAutoRepay(ctx, AutoRepayInput{AgentAddress: addrA, LoanID: loan.LoanID, Threshold: 6_000_000})
	se := requireKind(t, err, KindConflict)
	assert.Contains(t, se.Message, "Repaid")

	_, err = f.svc.DisableAutoRepay(ctx, 99)
	requireKind(t, err, KindNotFound)
}

func TestInsurance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.register(t, addrA, "alpha")
	loan := f.funded(t, addrA, addrB, 5_000_000)

	_, err := f.svc.PurchaseInsurance(ctx, PolicyInput{LoanID: loan.LoanID, LenderAddress: addrC, CoverageAmount: 5_000_000, Premium: 250_000})
	requireKind(t, err, KindForbidden)

	_, err = f.svc.PurchaseInsurance(ctx, PolicyInput{LoanID: loan.LoanID, LenderAddress: addrB, CoverageAmount: 5_000_001, Premium: 250_000})
	requireKind(t, err, KindValidation)

	policy, err := f.svc.PurchaseInsurance(ctx, PolicyInput{LoanID: loan.LoanID, LenderAddress: addrB, CoverageAmount: 5_000_000, Premium: 250_000})
	require.NoError(t, err)

	_, err = f.svc.ClaimInsurance(ctx, policy.ID, "")
	se := requireKind(t, err, KindConflict)
	assert.Contains(t, se.Message, "Funded")

	_, err = f.svc.DefaultLoan(ctx, loan.LoanID)
	require.NoError(t, err)

	claimed, err := f.svc.ClaimInsurance(ctx, policy.ID, "")
	require.NoError(t, err)
	assert.True(t, claimed.Claimed)
	assert.NotNil(t, claimed.ClaimedAt)

	_, err = f.svc.ClaimInsurance(ctx, policy.ID, "")
	requireKind(t, err, KindConflict)

	stats, err := f.svc.PoolStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalPolicies)
	assert.Equal(t, int64(1), stats.ClaimsFiled)
	assert.Equal(t, int64(250_000), stats.TotalPremiums)
	assert.Equal(t, int64(5_000_000), stats.TotalPayouts)

	policies, err := f.svc.ListPolicies(ctx, addrB)
	require.NoError(t, err)
	require.Len(t, policies, 1)
}

func TestReferrals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.register(t, addrA, "alpha")
	f.register(t, addrB, "beta")

	_, err := f.svc.RegisterReferral(ctx, addrA, addrA, "")
	requireKind(t, err, KindValidation)

	ref, err := f.svc.RegisterReferral(ctx, addrA, addrB, "")
	require.NoError(t, err)
	assert.Regexp(t, `^ACN-[0-9A-F]{8}$`, ref.ReferralCode)
	assert.Equal(t, models.ReferralPending, ref.Status)

	_, err = f.svc.RegisterReferral(ctx, addrA, addrB, "AGAIN")
	requireKind(t, err, KindConflict)

	refs, err := f.svc.ListReferrals(ctx, addrA, RoleReferrer)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.NotNil(t, refs[0].CounterpartName)
	assert.Equal(t, "beta", *refs[0].CounterpartName)

	_, err = f.svc.ListReferrals(ctx, addrA, "sponsor")
	requireKind(t, err, KindValidation)

	paid, err := f.svc.PayReferral(ctx, ref.ID, 500_000, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralPaid, paid.Status)

	_, err = f.svc.PayReferral(ctx, ref.ID, 500_000, "")
	requireKind(t, err, KindConflict)

	_, err = f.svc.PayReferral(ctx, 99, 1, "")
	requireKind(t, err, KindNotFound)

	stats, err := f.svc.ReferralStats(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ReferralsMade)
	assert.Equal(t, int64(500_000), stats.TotalEarnings)
}
