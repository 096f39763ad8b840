package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
)

const creditColumns = `agent_address, score, tier, total_loans, repaid_loans, defaulted_loans, max_loan_amount, updated_at`

// CreateCreditScore inserts the initial credit record of an agent
func (r *Repository) CreateCreditScore(ctx context.Context, cs *models.CreditScore) error {
	cs.UpdatedAt = r.now()
	_, err := r.q.Execute(ctx, `
		INSERT INTO credit_scores (`+creditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.AgentAddress, cs.Score, cs.Tier, cs.TotalLoans, cs.RepaidLoans,
		cs.DefaultedLoans, cs.MaxLoanAmount, cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credit score: %w", err)
	}
	return nil
}

// GetCreditScore retrieves the credit record of an agent
func (r *Repository) GetCreditScore(ctx context.Context, address string) (*models.CreditScore, error) {
	cs := &models.CreditScore{}
	err := r.q.QueryOne(ctx, cs, `SELECT `+creditColumns+` FROM credit_scores WHERE agent_address = ?`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to find credit score: %w", err)
	}
	return cs, nil
}

// LockCreditScore reads a credit record and, on Postgres, locks the row until
// the surrounding transaction ends. Must be called inside InTx.
func (r *Repository) LockCreditScore(ctx context.Context, address string) (*models.CreditScore, error) {
	cs := &models.CreditScore{}
	err := r.q.QueryOne(ctx, cs,
		`SELECT `+creditColumns+` FROM credit_scores WHERE agent_address = ?`+r.forUpdate(), address)
	if err != nil {
		return nil, fmt.Errorf("failed to lock credit score: %w", err)
	}
	return cs, nil
}

// SaveCreditScore writes back every mutable column of a credit record
func (r *Repository) SaveCreditScore(ctx context.Context, cs *models.CreditScore) error {
	cs.UpdatedAt = r.now()
	res, err := r.q.Execute(ctx, `
		UPDATE credit_scores
		SET score = ?, tier = ?, total_loans = ?, repaid_loans = ?,
		    defaulted_loans = ?, max_loan_amount = ?, updated_at = ?
		WHERE agent_address = ?`,
		cs.Score, cs.Tier, cs.TotalLoans, cs.RepaidLoans,
		cs.DefaultedLoans, cs.MaxLoanAmount, cs.UpdatedAt, cs.AgentAddress)
	if err != nil {
		return fmt.Errorf("failed to save credit score: %w", err)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to save credit score: %w", ErrNotFound)
	}
	return nil
}

// AddCreditEvent appends a score change to the history
func (r *Repository) AddCreditEvent(ctx context.Context, ev *models.CreditEvent) error {
	ev.CreatedAt = r.now()
	err := r.q.QueryOne(ctx, &ev.ID, `
		INSERT INTO credit_score_history (agent_address, loan_id, old_score, new_score, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		ev.AgentAddress, ev.LoanID, ev.OldScore, ev.NewScore, ev.Reason, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record credit event: %w", err)
	}
	return nil
}

// ListCreditEvents returns an agent's score history, newest first
func (r *Repository) ListCreditEvents(ctx context.Context, address string, limit int) ([]models.CreditEvent, error) {
	events := []models.CreditEvent{}
	err := r.q.QueryMany(ctx, &events, `
		SELECT id, agent_address, loan_id, old_score, new_score, reason, created_at
		FROM credit_score_history
		WHERE agent_address = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, address, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, fmt.Errorf("failed to list credit history: %w", err)
	}
	return events, nil
}

// AgentsWithoutCredit lists agents that have no credit record
func (r *Repository) AgentsWithoutCredit(ctx context.Context) ([]string, error) {
	addresses := []string{}
	err := r.q.QueryMany(ctx, &addresses, `
		SELECT a.address
		FROM agents a
		LEFT JOIN credit_scores cs ON a.address = cs.agent_address
		WHERE cs.agent_address IS NULL
		ORDER BY a.created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents without credit: %w", err)
	}
	return addresses, nil
}

// TierDistribution counts agents per tier
func (r *Repository) TierDistribution(ctx context.Context) ([]models.TierBucket, error) {
	buckets := []models.TierBucket{}
	err := r.q.QueryMany(ctx, &buckets, `
		SELECT tier, COUNT(*) AS count, COALESCE(AVG(score), 0) AS avg_score
		FROM credit_scores
		GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tier distribution: %w", err)
	}
	return buckets, nil
}
