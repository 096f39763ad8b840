package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Dan9191/credit-network/internal/metrics"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Webhook request headers
const (
	HeaderSignature = "X-ACN-Signature"
	HeaderEvent     = "X-ACN-Event"
	HeaderDelivery  = "X-ACN-Delivery"
)

const maxLoggedBody = 1024

// WebhookStore is the storage the dispatcher needs
type WebhookStore interface {
	ActiveWebhooksFor(ctx context.Context, addresses []string) ([]models.Webhook, error)
	AddWebhookLog(ctx context.Context, l *models.WebhookLog) error
}

// WebhookDispatcher delivers events to agent webhooks from a bounded queue
type WebhookDispatcher struct {
	store   WebhookStore
	key     []byte
	client  *http.Client
	log     *logrus.Logger
	workers int

	queue   chan Event
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWebhookDispatcher creates a dispatcher. key decrypts stored webhook secrets.
func NewWebhookDispatcher(store WebhookStore, key []byte, log *logrus.Logger, workers int, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{
		store:   store,
		key:     key,
		client:  &http.Client{Timeout: timeout},
		log:     log,
		workers: max(workers, 1),
		queue:   make(chan Event, 256),
	}
}

// Start launches the worker goroutines
func (d *WebhookDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	d.log.Infof("Webhook dispatcher started with %d workers", d.workers)
}

// Stop drains queued events and waits for the workers to finish
func (d *WebhookDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("Webhook dispatcher stopped")
}

// Notify queues the event. A full queue drops it.
func (d *WebhookDispatcher) Notify(_ context.Context, ev Event) {
	if len(ev.Recipients) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}
	select {
	case d.queue <- ev:
	default:
		metrics.RecordWebhookDropped()
		d.log.WithField("event", ev.Name).Warn("Webhook queue full, event dropped")
	}
}

func (d *WebhookDispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.dispatch(context.Background(), ev)
	}
}

func (d *WebhookDispatcher) dispatch(ctx context.Context, ev Event) {
	hooks, err := d.store.ActiveWebhooksFor(ctx, ev.Recipients)
	if err != nil {
		d.log.WithError(err).WithField("event", ev.Name).Error("Failed to load webhooks")
		return
	}
	for i := range hooks {
		if len(hooks[i].Events) > 0 && !hooks[i].Events.Contains(ev.Name) {
			continue
		}
		if _, err := d.Deliver(ctx, &hooks[i], ev); err != nil {
			d.log.WithError(err).WithField("webhook_id", hooks[i].ID).Warn("Webhook delivery failed")
		}
	}
}

// Deliver posts one event to one webhook and records the attempt
func (d *WebhookDispatcher) Deliver(ctx context.Context, hook *models.Webhook, ev Event) (*models.WebhookLog, error) {
	secret, err := utils.Decrypt(hook.Secret, d.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}

	deliveryID := uuid.NewString()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(struct {
		Event
		DeliveryID string `json:"delivery_id"`
	}{ev, deliveryID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	entry := &models.WebhookLog{
		WebhookID:  hook.ID,
		DeliveryID: deliveryID,
		Event:      ev.Name,
		Payload:    string(body),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, utils.Sign(body, secret))
	req.Header.Set(HeaderEvent, ev.Name)
	req.Header.Set(HeaderDelivery, deliveryID)

	resp, sendErr := d.client.Do(req)
	if sendErr != nil {
		msg := sendErr.Error()
		entry.ResponseBody = &msg
	} else {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		resp.Body.Close()
		text := string(raw)
		entry.ResponseStatus = resp.StatusCode
		entry.ResponseBody = &text
		entry.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
	}
	metrics.RecordWebhookDelivery(ev.Name, entry.Success)

	if err := d.store.AddWebhookLog(ctx, entry); err != nil {
		d.log.WithError(err).WithField("webhook_id", hook.ID).Error("Failed to record webhook delivery")
	}
	if sendErr != nil {
		return entry, fmt.Errorf("failed to send webhook: %w", sendErr)
	}
	if !entry.Success {
		return entry, fmt.Errorf("webhook responded with status %d", entry.ResponseStatus)
	}
	return entry, nil
}
