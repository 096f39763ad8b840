package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
)

// StatusTotal aggregates loans sharing one status
type StatusTotal struct {
	Status  models.LoanStatus `db:"status"`
	Count   int64             `db:"count"`
	Volume  int64             `db:"volume"`
	RateSum int64             `db:"rate_sum"`
}

// LoanTotalsByStatus groups all loans by status
func (r *Repository) LoanTotalsByStatus(ctx context.Context) ([]StatusTotal, error) {
	totals := []StatusTotal{}
	err := r.q.QueryMany(ctx, &totals, `
		SELECT status,
		       COUNT(*) AS count,
		       CAST(COALESCE(SUM(amount), 0) AS BIGINT) AS volume,
		       CAST(COALESCE(SUM(interest_rate), 0) AS BIGINT) AS rate_sum
		FROM loans
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate loans: %w", err)
	}
	return totals, nil
}

// TopLenders ranks lenders by amount funded, counting loans that reached Funded or later
func (r *Repository) TopLenders(ctx context.Context, limit int) ([]models.LenderRank, error) {
	ranks := []models.LenderRank{}
	err := r.q.QueryMany(ctx, &ranks, `
		SELECT l.lender_address AS agent_address,
		       COALESCE(MAX(a.name), '') AS name,
		       CAST(COALESCE(SUM(l.amount), 0) AS BIGINT) AS total_lent,
		       COUNT(*) AS loans_funded
		FROM loans l
		LEFT JOIN agents a ON l.lender_address = a.address
		WHERE l.lender_address IS NOT NULL AND l.status IN (?, ?, ?)
		GROUP BY l.lender_address
		ORDER BY total_lent DESC, loans_funded DESC, agent_address
		LIMIT ?`,
		models.LoanFunded, models.LoanRepaid, models.LoanDefaulted, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, fmt.Errorf("failed to rank lenders: %w", err)
	}
	return ranks, nil
}

// TopBorrowers ranks agents with a loan history by credit score
func (r *Repository) TopBorrowers(ctx context.Context, limit int) ([]models.BorrowerRank, error) {
	ranks := []models.BorrowerRank{}
	err := r.q.QueryMany(ctx, &ranks, `
		SELECT cs.agent_address, a.name, cs.score, cs.tier, cs.total_loans, cs.repaid_loans
		FROM credit_scores cs
		JOIN agents a ON cs.agent_address = a.address
		WHERE cs.total_loans > 0
		ORDER BY cs.score DESC, cs.repaid_loans DESC, cs.agent_address
		LIMIT ?`, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, fmt.Errorf("failed to rank borrowers: %w", err)
	}
	return ranks, nil
}

// TopVolume ranks borrowers by amount borrowed on loans that were funded
func (r *Repository) TopVolume(ctx context.Context, limit int) ([]models.VolumeRank, error) {
	ranks := []models.VolumeRank{}
	err := r.q.QueryMany(ctx, &ranks, `
		SELECT l.borrower_address AS agent_address,
		       COALESCE(MAX(a.name), '') AS name,
		       CAST(COALESCE(SUM(l.amount), 0) AS BIGINT) AS total_volume,
		       COUNT(*) AS total_loans
		FROM loans l
		LEFT JOIN agents a ON l.borrower_address = a.address
		WHERE l.status IN (?, ?, ?)
		GROUP BY l.borrower_address
		ORDER BY total_volume DESC, total_loans DESC, agent_address
		LIMIT ?`,
		models.LoanFunded, models.LoanRepaid, models.LoanDefaulted, clampLimit(limit, 10, 100))
	if err != nil {
		return nil, fmt.Errorf("failed to rank volume: %w", err)
	}
	return ranks, nil
}

// CountLoans counts all loans
func (r *Repository) CountLoans(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryOne(ctx, &n, `SELECT COUNT(*) FROM loans`); err != nil {
		return 0, fmt.Errorf("failed to count loans: %w", err)
	}
	return n, nil
}
