package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
)

// UpsertAutoRepay creates or re-enables the auto-repay config of a loan
func (r *Repository) UpsertAutoRepay(ctx context.Context, cfg *models.AutoRepayConfig) error {
	cfg.CreatedAt = r.now()
	cfg.Enabled = true
	err := r.q.QueryOne(ctx, &cfg.ID, `
		INSERT INTO auto_repay_configs (agent_address, loan_id, threshold, min_balance, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_address, loan_id) DO UPDATE
		SET threshold = excluded.threshold,
		    min_balance = excluded.min_balance,
		    enabled = excluded.enabled,
		    executed_at = NULL,
		    created_at = excluded.created_at
		RETURNING id`,
		cfg.AgentAddress, cfg.LoanID, cfg.Threshold, cfg.MinBalance, cfg.Enabled, cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save auto-repay config: %w", err)
	}
	return nil
}

// ListAutoRepay returns an agent's auto-repay configs with loan details
func (r *Repository) ListAutoRepay(ctx context.Context, address string) ([]models.AutoRepayConfig, error) {
	cfgs := []models.AutoRepayConfig{}
	err := r.q.QueryMany(ctx, &cfgs, `
		SELECT arc.id, arc.agent_address, arc.loan_id, arc.threshold, arc.min_balance,
		       arc.enabled, arc.executed_at, arc.created_at, l.amount, l.status
		FROM auto_repay_configs arc
		JOIN loans l ON arc.loan_id = l.loan_id
		WHERE arc.agent_address = ?
		ORDER BY arc.created_at DESC, arc.id DESC`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-repay configs: %w", err)
	}
	return cfgs, nil
}

// GetAutoRepay retrieves a config by id
func (r *Repository) GetAutoRepay(ctx context.Context, id int64) (*models.AutoRepayConfig, error) {
	cfg := &models.AutoRepayConfig{}
	err := r.q.QueryOne(ctx, cfg, `
		SELECT id, agent_address, loan_id, threshold, min_balance, enabled, executed_at, created_at
		FROM auto_repay_configs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find auto-repay config: %w", err)
	}
	return cfg, nil
}

// DisableAutoRepay turns a config off; executed additionally stamps executed_at
func (r *Repository) DisableAutoRepay(ctx context.Context, id int64, executed bool) (bool, error) {
	query := `UPDATE auto_repay_configs SET enabled = ? WHERE id = ?`
	args := []any{false, id}
	if executed {
		query = `UPDATE auto_repay_configs SET enabled = ?, executed_at = ? WHERE id = ?`
		args = []any{false, r.now(), id}
	}
	res, err := r.q.Execute(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update auto-repay config: %w", err)
	}
	return res.RowsAffected == 1, nil
}

const policyColumns = `id, loan_id, lender_address, coverage_amount, premium_paid, tx_hash,
	claimed, claim_tx_hash, claimed_at, created_at`

// CreatePolicy stores a purchased insurance policy
func (r *Repository) CreatePolicy(ctx context.Context, p *models.InsurancePolicy) error {
	p.CreatedAt = r.now()
	err := r.q.QueryOne(ctx, &p.ID, `
		INSERT INTO insurance_policies (loan_id, lender_address, coverage_amount, premium_paid, tx_hash, claimed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.LoanID, p.LenderAddress, p.CoverageAmount, p.PremiumPaid, p.TxHash, false, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create insurance policy: %w", err)
	}
	return nil
}

// GetPolicy retrieves a policy by id
func (r *Repository) GetPolicy(ctx context.Context, id int64) (*models.InsurancePolicy, error) {
	p := &models.InsurancePolicy{}
	if err := r.q.QueryOne(ctx, p, `SELECT `+policyColumns+` FROM insurance_policies WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to find insurance policy: %w", err)
	}
	return p, nil
}

// ListPolicies returns a lender's policies with loan details
func (r *Repository) ListPolicies(ctx context.Context, lender string) ([]models.InsurancePolicy, error) {
	policies := []models.InsurancePolicy{}
	err := r.q.QueryMany(ctx, &policies, `
		SELECT ip.id, ip.loan_id, ip.lender_address, ip.coverage_amount, ip.premium_paid, ip.tx_hash,
		       ip.claimed, ip.claim_tx_hash, ip.claimed_at, ip.created_at,
		       l.amount AS loan_amount, l.status AS loan_status
		FROM insurance_policies ip
		JOIN loans l ON ip.loan_id = l.loan_id
		WHERE ip.lender_address = ?
		ORDER BY ip.created_at DESC, ip.id DESC`, lender)
	if err != nil {
		return nil, fmt.Errorf("failed to list insurance policies: %w", err)
	}
	return policies, nil
}

// ClaimPolicy marks an unclaimed policy as claimed. Returns false if already claimed.
func (r *Repository) ClaimPolicy(ctx context.Context, id int64, txHash *string) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE insurance_policies
		SET claimed = ?, claim_tx_hash = ?, claimed_at = ?
		WHERE id = ? AND claimed = ?`, true, txHash, r.now(), id, false)
	if err != nil {
		return false, fmt.Errorf("failed to claim insurance policy: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// PolicyStats summarises the insurance pool
func (r *Repository) PolicyStats(ctx context.Context) (*models.InsuranceStats, error) {
	stats := &models.InsuranceStats{}
	err := r.q.QueryOne(ctx, stats, `
		SELECT COUNT(*) AS total_policies,
		       CAST(COALESCE(SUM(CASE WHEN claimed THEN 1 ELSE 0 END), 0) AS BIGINT) AS claims_filed,
		       CAST(COALESCE(SUM(premium_paid), 0) AS BIGINT) AS total_premiums,
		       CAST(COALESCE(SUM(CASE WHEN claimed THEN coverage_amount ELSE 0 END), 0) AS BIGINT) AS total_payouts
		FROM insurance_policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to load insurance stats: %w", err)
	}
	return stats, nil
}

const referralColumns = `id, referrer_address, referred_address, referral_code, status,
	reward_amount, tx_hash, paid_at, created_at`

// CreateReferral stores a referral. Returns ErrDuplicate for a repeated pair.
func (r *Repository) CreateReferral(ctx context.Context, ref *models.Referral) error {
	ref.CreatedAt = r.now()
	ref.Status = models.ReferralPending
	err := r.q.QueryOne(ctx, &ref.ID, `
		INSERT INTO referrals (referrer_address, referred_address, referral_code, status, reward_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		ref.ReferrerAddress, ref.ReferredAddress, ref.ReferralCode, ref.Status, 0, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

// ListReferrals returns referrals involving address. role is "referrer",
// "referred" or empty for both; the counterpart's name is joined for the former two.
func (r *Repository) ListReferrals(ctx context.Context, address, role string) ([]models.Referral, error) {
	var query string
	args := []any{address}
	switch role {
	case "referrer":
		query = `SELECT r.id, r.referrer_address, r.referred_address, r.referral_code, r.status,
		       r.reward_amount, r.tx_hash, r.paid_at, r.created_at, a.name AS counterpart_name
		FROM referrals r
		LEFT JOIN agents a ON r.referred_address = a.address
		WHERE r.referrer_address = ?
		ORDER BY r.created_at DESC, r.id DESC`
	case "referred":
		query = `SELECT r.id, r.referrer_address, r.referred_address, r.referral_code, r.status,
		       r.reward_amount, r.tx_hash, r.paid_at, r.created_at, a.name AS counterpart_name
		FROM referrals r
		LEFT JOIN agents a ON r.referrer_address = a.address
		WHERE r.referred_address = ?
		ORDER BY r.created_at DESC, r.id DESC`
	default:
		query = `SELECT ` + referralColumns + ` FROM referrals
		WHERE referrer_address = ? OR referred_address = ?
		ORDER BY created_at DESC, id DESC`
		args = append(args, address)
	}
	refs := []models.Referral{}
	if err := r.q.QueryMany(ctx, &refs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return refs, nil
}

// PayReferral marks a pending referral as paid. Returns false if not pending.
func (r *Repository) PayReferral(ctx context.Context, id, reward int64, txHash *string) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE referrals
		SET status = ?, reward_amount = ?, tx_hash = ?, paid_at = ?
		WHERE id = ? AND status = ?`,
		models.ReferralPaid, reward, txHash, r.now(), id, models.ReferralPending)
	if err != nil {
		return false, fmt.Errorf("failed to pay referral: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// GetReferral retrieves a referral by id
func (r *Repository) GetReferral(ctx context.Context, id int64) (*models.Referral, error) {
	ref := &models.Referral{}
	if err := r.q.QueryOne(ctx, ref, `SELECT `+referralColumns+` FROM referrals WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to find referral: %w", err)
	}
	return ref, nil
}

// ReferralStats summarises an agent's referrals
func (r *Repository) ReferralStats(ctx context.Context, address string) (*models.ReferralStats, error) {
	stats := &models.ReferralStats{}
	err := r.q.QueryOne(ctx, stats, `
		SELECT
		  CAST(COALESCE(SUM(CASE WHEN referrer_address = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS referrals_made,
		  CAST(COALESCE(SUM(CASE WHEN referred_address = ? THEN 1 ELSE 0 END), 0) AS BIGINT) AS was_referred,
		  CAST(COALESCE(SUM(CASE WHEN referrer_address = ? AND status = ? THEN reward_amount ELSE 0 END), 0) AS BIGINT) AS total_earnings
		FROM referrals
		WHERE referrer_address = ? OR referred_address = ?`,
		address, address, address, models.ReferralPaid, address, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral stats: %w", err)
	}
	return stats, nil
}
