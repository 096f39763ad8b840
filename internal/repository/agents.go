package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
)

const agentProfileColumns = `
	a.address, a.name, a.description, a.verified, a.created_at, a.updated_at,
	cs.score, cs.tier, cs.total_loans, cs.repaid_loans, cs.defaulted_loans, cs.max_loan_amount`

// CreateAgent inserts a new agent. Returns ErrDuplicate if the address exists.
func (r *Repository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	now := r.now()
	_, err := r.q.Execute(ctx, `
		INSERT INTO agents (address, name, description, verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		agent.Address, agent.Name, agent.Description, agent.Verified, now, now)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	agent.CreatedAt = now
	agent.UpdatedAt = now
	return nil
}

// GetAgent retrieves an agent by address
func (r *Repository) GetAgent(ctx context.Context, address string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := r.q.QueryOne(ctx, agent, `
		SELECT address, name, description, verified, created_at, updated_at
		FROM agents
		WHERE address = ?`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to find agent: %w", err)
	}
	return agent, nil
}

// GetAgentProfile retrieves an agent joined with its credit record
func (r *Repository) GetAgentProfile(ctx context.Context, address string) (*models.AgentProfile, error) {
	profile := &models.AgentProfile{}
	err := r.q.QueryOne(ctx, profile, `
		SELECT`+agentProfileColumns+`
		FROM agents a
		LEFT JOIN credit_scores cs ON a.address = cs.agent_address
		WHERE a.address = ?`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to find agent profile: %w", err)
	}
	return profile, nil
}

// ListAgentProfiles lists agents newest first, optionally filtered by verification
func (r *Repository) ListAgentProfiles(ctx context.Context, verified *bool, limit, offset int) ([]models.AgentProfile, error) {
	query := `
		SELECT` + agentProfileColumns + `
		FROM agents a
		LEFT JOIN credit_scores cs ON a.address = cs.agent_address`
	args := []any{}
	if verified != nil {
		query += ` WHERE a.verified = ?`
		args = append(args, *verified)
	}
	query += ` ORDER BY a.created_at DESC, a.address LIMIT ? OFFSET ?`
	args = append(args, clampLimit(limit, 50, 200), max(offset, 0))

	profiles := []models.AgentProfile{}
	if err := r.q.QueryMany(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return profiles, nil
}

// UpdateAgentProfile changes name and/or description. Nil leaves a field untouched.
func (r *Repository) UpdateAgentProfile(ctx context.Context, address string, name, description *string) (*models.Agent, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE agents
		SET name = COALESCE(?, name),
		    description = COALESCE(?, description),
		    updated_at = ?
		WHERE address = ?`, name, description, r.now(), address)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("failed to update agent: %w", ErrNotFound)
	}
	return r.GetAgent(ctx, address)
}

// MarkAgentVerified flips the verified flag. Returns false if it was already set.
func (r *Repository) MarkAgentVerified(ctx context.Context, address string) (bool, error) {
	res, err := r.q.Execute(ctx, `
		UPDATE agents SET verified = ?, updated_at = ?
		WHERE address = ? AND verified = ?`, true, r.now(), address, false)
	if err != nil {
		return false, fmt.Errorf("failed to verify agent: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// CountAgents counts all agents, or only verified ones
func (r *Repository) CountAgents(ctx context.Context, verifiedOnly bool) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM agents`
	args := []any{}
	if verifiedOnly {
		query += ` WHERE verified = ?`
		args = append(args, true)
	}
	if err := r.q.QueryOne(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count agents: %w", err)
	}
	return count, nil
}
