package service

import (
	"context"
	"net/url"
	"slices"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/notify"
	"github.com/Dan9191/credit-network/internal/utils"
)

// WebhookRegistration is returned once when a webhook is created. Secret is
// never shown again.
type WebhookRegistration struct {
	Webhook *models.Webhook `json:"webhook"`
	Secret  string          `json:"secret"`
}

// CreateWebhook registers a callback for an agent. An empty event list subscribes to every event.
func (s *Service) CreateWebhook(ctx context.Context, agentAddress, rawURL string, events []string) (*WebhookRegistration, error) {
	addr, err := normalizeAddress("agent_address", agentAddress)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, validation("url must be an absolute http or https URL").With("field", "url")
	}
	for _, ev := range events {
		if !slices.Contains(models.KnownEvents, ev) {
			return nil, validation("unknown event %q", ev).With("allowed", models.KnownEvents)
		}
	}
	if _, err := s.repo.GetAgent(ctx, addr); err != nil {
		if isNotFound(err) {
			return nil, notFound("agent %s is not registered", addr)
		}
		return nil, s.storageError(err, "agent")
	}

	secret, err := utils.GenerateToken(32)
	if err != nil {
		return nil, internal(err)
	}
	sealed, err := utils.Encrypt(secret, s.key)
	if err != nil {
		return nil, internal(err)
	}
	wh := &models.Webhook{AgentAddress: addr, URL: u.String(), Events: events, Secret: sealed}
	if err := s.repo.UpsertWebhook(ctx, wh); err != nil {
		return nil, s.storageError(err, "webhook")
	}
	saved, err := s.repo.GetWebhook(ctx, wh.ID)
	if err != nil {
		return nil, s.storageError(err, "webhook")
	}
	s.log.WithField("webhook_id", saved.ID).Infof("Webhook registered for %s", addr)
	return &WebhookRegistration{Webhook: saved, Secret: secret}, nil
}

// ListWebhooks returns an agent's webhooks
func (s *Service) ListWebhooks(ctx context.Context, agentAddress string) ([]models.Webhook, error) {
	addr, err := normalizeAddress("address", agentAddress)
	if err != nil {
		return nil, err
	}
	hooks, err := s.repo.ListWebhooks(ctx, addr)
	if err != nil {
		return nil, s.storageError(err, "webhooks")
	}
	return hooks, nil
}

// DeleteWebhook deactivates a webhook
func (s *Service) DeleteWebhook(ctx context.Context, id int64) error {
	ok, err := s.repo.DeactivateWebhook(ctx, id)
	if err != nil {
		return s.storageError(err, "webhook")
	}
	if !ok {
		return notFound("webhook %d not found", id)
	}
	return nil
}

// TestWebhook sends a synthetic event to a webhook and returns the delivery record
func (s *Service) TestWebhook(ctx context.Context, id int64) (*models.WebhookLog, error) {
	if s.deliver == nil {
		return nil, forbidden("webhook delivery is disabled")
	}
	wh, err := s.repo.GetWebhook(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound("webhook %d not found", id)
		}
		return nil, s.storageError(err, "webhook")
	}
	ev := notify.Event{
		Name:       models.EventTest,
		Recipients: []string{wh.AgentAddress},
		Data:       map[string]string{"message": "test delivery", "agent_address": wh.AgentAddress},
		Timestamp:  s.repo.Now(),
	}
	entry, err := s.deliver.Deliver(ctx, wh, ev)
	if err != nil && entry == nil {
		return nil, internal(err)
	}
	return entry, nil
}

// WebhookLogs returns the most recent delivery attempts of a webhook
func (s *Service) WebhookLogs(ctx context.Context, id int64, limit int) ([]models.WebhookLog, error) {
	if _, err := s.repo.GetWebhook(ctx, id); err != nil {
		if isNotFound(err) {
			return nil, notFound("webhook %d not found", id)
		}
		return nil, s.storageError(err, "webhook")
	}
	logs, err := s.repo.ListWebhookLogs(ctx, id, limit)
	if err != nil {
		return nil, s.storageError(err, "webhook logs")
	}
	return logs, nil
}
