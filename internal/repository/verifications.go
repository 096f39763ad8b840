package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
)

const verificationColumns = `id, agent_address, token, status, x_username, created_at, verified_at, verified_by`

// CreateVerification issues a pending verification for an agent
func (r *Repository) CreateVerification(ctx context.Context, pv *models.PendingVerification) error {
	pv.CreatedAt = r.now()
	if pv.Status == "" {
		pv.Status = models.VerificationPending
	}
	err := r.q.QueryOne(ctx, &pv.ID, `
		INSERT INTO pending_verifications (agent_address, token, status, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		pv.AgentAddress, pv.Token, pv.Status, pv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create verification: %w", err)
	}
	return nil
}

// GetVerificationByToken retrieves a verification by its token
func (r *Repository) GetVerificationByToken(ctx context.Context, token string) (*models.PendingVerification, error) {
	pv := &models.PendingVerification{}
	err := r.q.QueryOne(ctx, pv, `SELECT `+verificationColumns+` FROM pending_verifications WHERE token = ?`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification: %w", err)
	}
	return pv, nil
}

// GetVerificationByAgent retrieves the verification issued to an agent
func (r *Repository) GetVerificationByAgent(ctx context.Context, address string) (*models.PendingVerification, error) {
	pv := &models.PendingVerification{}
	err := r.q.QueryOne(ctx, pv, `SELECT `+verificationColumns+` FROM pending_verifications WHERE agent_address = ?`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification: %w", err)
	}
	return pv, nil
}

// CompleteVerification marks a pending verification as verified. It reports
// false when the token was not pending anymore.
func (r *Repository) CompleteVerification(ctx context.Context, id int64, handle *string, verifiedBy string) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE pending_verifications
		SET status = ?, verified_at = ?, verified_by = ?, x_username = COALESCE(?, x_username)
		WHERE id = ? AND status = ?`,
		models.VerificationVerified, r.now(), verifiedBy, handle, id, models.VerificationPending)
	if err != nil {
		return false, fmt.Errorf("failed to complete verification: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// GetVerificationStatus returns the public view of a token
func (r *Repository) GetVerificationStatus(ctx context.Context, token string) (*models.VerificationStatus, error) {
	st := &models.VerificationStatus{}
	err := r.q.QueryOne(ctx, st, `
		SELECT pv.status, pv.agent_address, a.name, a.verified AS agent_verified,
		       pv.created_at, pv.verified_at
		FROM pending_verifications pv
		JOIN agents a ON pv.agent_address = a.address
		WHERE pv.token = ?`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find verification status: %w", err)
	}
	return st, nil
}

// CountPendingVerifications counts tokens still awaiting verification
func (r *Repository) CountPendingVerifications(ctx context.Context) (int64, error) {
	var count int64
	err := r.q.QueryOne(ctx, &count, `SELECT COUNT(*) FROM pending_verifications WHERE status = ?`, models.VerificationPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending verifications: %w", err)
	}
	return count, nil
}
