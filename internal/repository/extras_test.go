package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoRepay(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "a")
	loan := seedLoan(t, repo, addrA, 4_000_000)

	cfg := &models.AutoRepayConfig{AgentAddress: addrA, LoanID: loan.LoanID, Threshold: 5_000_000, MinBalance: 100}
	require.NoError(t, repo.UpsertAutoRepay(ctx, cfg))

	ok, err := repo.DisableAutoRepay(ctx, cfg.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)

	again := &models.AutoRepayConfig{AgentAddress: addrA, LoanID: loan.LoanID, Threshold: 6_000_000}
	require.NoError(t, repo.UpsertAutoRepay(ctx, again))
	assert.Equal(t, cfg.ID, again.ID)

	list, err := repo.ListAutoRepay(ctx, addrA)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Enabled)
	assert.EqualValues(t, 6_000_000, list[0].Threshold)
	assert.EqualValues(t, 4_000_000, *list[0].LoanAmount)
	assert.Equal(t, int(models.LoanRequested), *list[0].LoanStatus)

	ok, err = repo.DisableAutoRepay(ctx, cfg.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := repo.GetAutoRepay(ctx, cfg.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.ExecutedAt)
}

func TestInsurance(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "borrower")
	loan := seedLoan(t, repo, addrA, 10_000_000)

	p := &models.InsurancePolicy{LoanID: loan.LoanID, LenderAddress: addrB, CoverageAmount: 8_000_000, PremiumPaid: 200_000}
	require.NoError(t, repo.CreatePolicy(ctx, p))

	list, err := repo.ListPolicies(ctx, addrB)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 10_000_000, *list[0].LoanAmount)

	hash := "0xclaim"
	ok, err := repo.ClaimPolicy(ctx, p.ID, &hash)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ClaimPolicy(ctx, p.ID, &hash)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := repo.PolicyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.InsuranceStats{TotalPolicies: 1, ClaimsFiled: 1, TotalPremiums: 200_000, TotalPayouts: 8_000_000}, *stats)
}

func TestReferrals(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "referrer")
	seedAgent(t, repo, addrB, "newcomer")

	ref := &models.Referral{ReferrerAddress: addrA, ReferredAddress: addrB, ReferralCode: "ACN-1"}
	require.NoError(t, repo.CreateReferral(ctx, ref))
	err := repo.CreateReferral(ctx, &models.Referral{ReferrerAddress: addrA, ReferredAddress: addrB, ReferralCode: "ACN-2"})
	assert.ErrorIs(t, err, ErrDuplicate)

	made, err := repo.ListReferrals(ctx, addrA, "referrer")
	require.NoError(t, err)
	require.Len(t, made, 1)
	assert.Equal(t, "newcomer", *made[0].CounterpartName)

	received, err := repo.ListReferrals(ctx, addrB, "referred")
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "referrer", *received[0].CounterpartName)

	both, err := repo.ListReferrals(ctx, addrB, "")
	require.NoError(t, err)
	assert.Len(t, both, 1)

	ok, err := repo.PayReferral(ctx, ref.ID, 50_000, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.PayReferral(ctx, ref.ID, 50_000, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := repo.ReferralStats(ctx, addrA)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStats{ReferralsMade: 1, TotalEarnings: 50_000}, *stats)

	stats, err = repo.ReferralStats(ctx, addrB)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.WasReferred)
}

func TestAnalytics(t *testing.T) {
	repo, clock := newTestRepository(t)
	ctx := context.Background()
	seedAgent(t, repo, addrA, "alice")
	seedAgent(t, repo, addrB, "bob")
	seedAgent(t, repo, addrC, "carol")

	l1 := seedLoan(t, repo, addrA, 2_000_000)
	clock.advance(time.Minute)
	l2 := seedLoan(t, repo, addrB, 3_000_000)
	seedLoan(t, repo, addrB, 1_000_000)

	_, err := repo.FundLoan(ctx, l1.LoanID, addrC, nil)
	require.NoError(t, err)
	_, err = repo.FundLoan(ctx, l2.LoanID, addrC, nil)
	require.NoError(t, err)
	_, err = repo.RepayLoan(ctx, l2.LoanID, nil)
	require.NoError(t, err)

	totals, err := repo.LoanTotalsByStatus(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, StatusTotal{Status: models.LoanRequested, Count: 1, Volume: 1_000_000, RateSum: 1000}, totals[0])
	assert.Equal(t, models.LoanFunded, totals[1].Status)
	assert.EqualValues(t, 3_000_000, totals[2].Volume)

	lenders, err := repo.TopLenders(ctx, 0)
	require.NoError(t, err)
	require.Len(t, lenders, 1)
	assert.Equal(t, models.LenderRank{AgentAddress: addrC, Name: "carol", TotalLent: 5_000_000, LoansFunded: 2}, lenders[0])

	volume, err := repo.TopVolume(ctx, 0)
	require.NoError(t, err)
	require.Len(t, volume, 2)
	assert.Equal(t, addrB, volume[0].AgentAddress)
	assert.EqualValues(t, 1, volume[0].TotalLoans)

	cs, err := repo.GetCreditScore(ctx, addrB)
	require.NoError(t, err)
	cs.Score, cs.TotalLoans, cs.RepaidLoans = 310, 1, 1
	require.NoError(t, repo.SaveCreditScore(ctx, cs))

	borrowers, err := repo.TopBorrowers(ctx, 5)
	require.NoError(t, err)
	require.Len(t, borrowers, 1)
	assert.Equal(t, "bob", borrowers[0].Name)

	tiers, err := repo.TierDistribution(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.EqualValues(t, 3, tiers[0].Count)

	n, err := repo.CountLoans(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
