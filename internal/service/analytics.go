package service

import (
	"context"
	"time"

	"github.com/Dan9191/credit-network/internal/credit"
	"github.com/Dan9191/credit-network/internal/models"
)

const (
	defaultVolumeDays = 30
	maxVolumeDays     = 365
	dateLayout        = "2006-01-02"
)

// Leaderboard kinds
const (
	BoardLenders   = "lenders"
	BoardBorrowers = "borrowers"
	BoardVolume    = "volume"
)

// Overview returns platform-wide lending statistics
func (s *Service) Overview(ctx context.Context) (*models.Overview, error) {
	totals, err := s.repo.LoanTotalsByStatus(ctx)
	if err != nil {
		return nil, s.storageError(err, "loan totals")
	}
	out := &models.Overview{LoansByStatus: map[string]int64{}}
	var rateSum int64
	for _, t := range totals {
		out.LoansByStatus[t.Status.String()] = t.Count
		out.TotalLoans += t.Count
		out.TotalVolume += t.Volume
		rateSum += t.RateSum
		switch t.Status {
		case models.LoanRequested:
			out.PendingLoans = t.Count
		case models.LoanFunded:
			out.ActiveLoans = t.Count
			out.TotalActiveVolume = t.Volume
		case models.LoanRepaid:
			out.RepaidLoans = t.Count
			out.TotalRepaidVolume = t.Volume
		}
	}
	if out.TotalLoans > 0 {
		out.AvgInterestRate = rateSum / out.TotalLoans
		out.AvgLoanAmount = float64(out.TotalVolume) / float64(out.TotalLoans)
	}

	if out.TotalAgents, err = s.repo.CountAgents(ctx, false); err != nil {
		return nil, s.storageError(err, "agents")
	}
	if out.VerifiedAgents, err = s.repo.CountAgents(ctx, true); err != nil {
		return nil, s.storageError(err, "agents")
	}

	since := s.repo.Now().Add(-24 * time.Hour)
	recent, err := s.repo.LoansCreatedSince(ctx, since)
	if err != nil {
		return nil, s.storageError(err, "loans")
	}
	for _, l := range recent {
		if l.CreatedAt.After(since) {
			out.Loans24h++
			out.Volume24h += l.Amount
		}
	}
	return out, nil
}

// VolumeByDay aggregates loans created over the last days, one point per UTC day, oldest first
func (s *Service) VolumeByDay(ctx context.Context, days int) ([]models.VolumePoint, error) {
	days = min(max(days, 0), maxVolumeDays)
	if days == 0 {
		days = defaultVolumeDays
	}
	now := s.repo.Now()
	start := now.Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	loans, err := s.repo.LoansCreatedSince(ctx, start.Add(-time.Nanosecond))
	if err != nil {
		return nil, s.storageError(err, "loans")
	}

	points := make([]models.VolumePoint, days)
	index := make(map[string]int, days)
	rateSums := make([]int64, days)
	for i := range points {
		d := start.AddDate(0, 0, i).Format(dateLayout)
		points[i].Date = d
		index[d] = i
	}
	for _, l := range loans {
		i, ok := index[l.CreatedAt.UTC().Format(dateLayout)]
		if !ok {
			continue
		}
		points[i].LoanCount++
		points[i].Volume += l.Amount
		rateSums[i] += int64(l.InterestRate)
	}
	for i := range points {
		if points[i].LoanCount > 0 {
			points[i].AvgRate = float64(rateSums[i]) / float64(points[i].LoanCount)
		}
	}
	return points, nil
}

// TierDistribution counts agents per tier, listing every tier lowest first
func (s *Service) TierDistribution(ctx context.Context) ([]models.TierBucket, error) {
	rows, err := s.repo.TierDistribution(ctx)
	if err != nil {
		return nil, s.storageError(err, "tier distribution")
	}
	byTier := make(map[string]models.TierBucket, len(rows))
	for _, r := range rows {
		byTier[r.Tier] = r
	}
	out := make([]models.TierBucket, 0, len(credit.Tiers))
	for _, t := range credit.Tiers {
		b, ok := byTier[t.Name]
		if !ok {
			b = models.TierBucket{Tier: t.Name}
		}
		out = append(out, b)
	}
	return out, nil
}

// Leaderboard returns the ranking of the given kind
func (s *Service) Leaderboard(ctx context.Context, kind string, limit int) (any, error) {
	var (
		rows any
		err  error
	)
	switch kind {
	case BoardLenders:
		rows, err = s.repo.TopLenders(ctx, limit)
	case BoardBorrowers:
		rows, err = s.repo.TopBorrowers(ctx, limit)
	case BoardVolume:
		rows, err = s.repo.TopVolume(ctx, limit)
	default:
		return nil, notFound("unknown leaderboard %q", kind)
	}
	if err != nil {
		return nil, s.storageError(err, "leaderboard")
	}
	return rows, nil
}

// AdminStats summarises the platform for operators
func (s *Service) AdminStats(ctx context.Context) (*models.AdminStats, error) {
	stats := &models.AdminStats{}
	var err error
	if stats.TotalAgents, err = s.repo.CountAgents(ctx, false); err != nil {
		return nil, s.storageError(err, "agents")
	}
	if stats.VerifiedAgents, err = s.repo.CountAgents(ctx, true); err != nil {
		return nil, s.storageError(err, "agents")
	}
	if stats.TotalLoans, err = s.repo.CountLoans(ctx); err != nil {
		return nil, s.storageError(err, "loans")
	}
	if stats.PendingVerifications, err = s.repo.CountPendingVerifications(ctx); err != nil {
		return nil, s.storageError(err, "verifications")
	}
	return stats, nil
}
