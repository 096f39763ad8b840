package repository

import (
	"context"
	"fmt"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/jmoiron/sqlx"
)

const webhookColumns = `id, agent_address, url, events, secret, active, created_at, updated_at`

// UpsertWebhook registers a webhook, reactivating and updating an existing
// registration for the same agent and URL.
func (r *Repository) UpsertWebhook(ctx context.Context, wh *models.Webhook) error {
	now := r.now()
	err := r.q.QueryOne(ctx, &wh.ID, `
		INSERT INTO webhooks (agent_address, url, events, secret, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_address, url) DO UPDATE
		SET events = excluded.events,
		    secret = excluded.secret,
		    active = excluded.active,
		    updated_at = excluded.updated_at
		RETURNING id`,
		wh.AgentAddress, wh.URL, wh.Events, wh.Secret, true, now, now)
	if err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}
	wh.Active = true
	wh.UpdatedAt = now
	return nil
}

// GetWebhook retrieves a webhook by id
func (r *Repository) GetWebhook(ctx context.Context, id int64) (*models.Webhook, error) {
	wh := &models.Webhook{}
	if err := r.q.QueryOne(ctx, wh, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to find webhook: %w", err)
	}
	return wh, nil
}

// ListWebhooks returns all webhooks of an agent, newest first
func (r *Repository) ListWebhooks(ctx context.Context, address string) ([]models.Webhook, error) {
	hooks := []models.Webhook{}
	err := r.q.QueryMany(ctx, &hooks, `
		SELECT `+webhookColumns+` FROM webhooks
		WHERE agent_address = ?
		ORDER BY created_at DESC, id DESC`, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return hooks, nil
}

// ActiveWebhooksFor returns the active webhooks of the given agents
func (r *Repository) ActiveWebhooksFor(ctx context.Context, addresses []string) ([]models.Webhook, error) {
	hooks := []models.Webhook{}
	if len(addresses) == 0 {
		return hooks, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+webhookColumns+` FROM webhooks
		WHERE active = ? AND agent_address IN (?)`, true, addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook query: %w", err)
	}
	if err := r.q.QueryMany(ctx, &hooks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list active webhooks: %w", err)
	}
	return hooks, nil
}

// DeactivateWebhook disables a webhook. Returns false when no webhook matched.
func (r *Repository) DeactivateWebhook(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.Execute(ctx, `UPDATE webhooks SET active = ?, updated_at = ? WHERE id = ?`, false, r.now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate webhook: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// AddWebhookLog records a delivery attempt
func (r *Repository) AddWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	l.CreatedAt = r.now()
	err := r.q.QueryOne(ctx, &l.ID, `
		INSERT INTO webhook_logs (webhook_id, delivery_id, event, payload, response_status, response_body, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		l.WebhookID, l.DeliveryID, l.Event, l.Payload, l.ResponseStatus, l.ResponseBody, l.Success, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

// ListWebhookLogs returns the latest delivery attempts of a webhook
func (r *Repository) ListWebhookLogs(ctx context.Context, webhookID int64, limit int) ([]models.WebhookLog, error) {
	logs := []models.WebhookLog{}
	err := r.q.QueryMany(ctx, &logs, `
		SELECT id, webhook_id, delivery_id, event, payload, response_status, response_body, success, created_at
		FROM webhook_logs
		WHERE webhook_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, webhookID, clampLimit(limit, 20, 100))
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	return logs, nil
}
