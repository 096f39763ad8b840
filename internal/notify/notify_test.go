package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/credit-network/internal/config"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/utils"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type memStore struct {
	mu    sync.Mutex
	hooks []models.Webhook
	logs  []models.WebhookLog
}

func (m *memStore) ActiveWebhooksFor(_ context.Context, addresses []string) ([]models.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Webhook
	for _, h := range m.hooks {
		for _, a := range addresses {
			if h.Active && h.AgentAddress == a {
				out = append(out, h)
			}
		}
	}
	return out, nil
}

func (m *memStore) AddWebhookLog(_ context.Context, l *models.WebhookLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func encryptedSecret(t *testing.T, secret string) string {
	enc, err := utils.Encrypt(secret, testKey)
	require.NoError(t, err)
	return enc
}

type captured struct {
	header http.Header
	body   []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, chan captured) {
	ch := make(chan captured, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestDeliverSignsPayload(t *testing.T) {
	srv, ch := captureServer(t, http.StatusOK)
	store := &memStore{}
	d := NewWebhookDispatcher(store, testKey, quietLogger(), 1, time.Second)

	hook := &models.Webhook{ID: 7, AgentAddress: "0xA", URL: srv.URL, Secret: encryptedSecret(t, "whsec")}
	ev := Event{Name: models.EventLoanFunded, Data: map[string]int{"loan_id": 1}, Timestamp: time.Now().UTC()}

	entry, err := d.Deliver(context.Background(), hook, ev)
	require.NoError(t, err)
	assert.True(t, entry.Success)
	assert.Equal(t, http.StatusOK, entry.ResponseStatus)

	got := <-ch
	assert.Equal(t, models.EventLoanFunded, got.header.Get(HeaderEvent))
	assert.Equal(t, entry.DeliveryID, got.header.Get(HeaderDelivery))
	assert.Equal(t, utils.Sign(got.body, "whsec"), got.header.Get(HeaderSignature))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.body, &payload))
	assert.Equal(t, "loan_funded", payload["event"])
	assert.Equal(t, entry.DeliveryID, payload["delivery_id"])
	assert.NotContains(t, payload, "Recipients")

	require.Len(t, store.logs, 1)
	assert.EqualValues(t, 7, store.logs[0].WebhookID)
}

func TestDeliverRecordsFailure(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError)
	store := &memStore{}
	d := NewWebhookDispatcher(store, testKey, quietLogger(), 1, time.Second)

	hook := &models.Webhook{ID: 1, URL: srv.URL, Secret: encryptedSecret(t, "s")}
	entry, err := d.Deliver(context.Background(), hook, Event{Name: models.EventTest})
	require.Error(t, err)
	assert.False(t, entry.Success)
	assert.Equal(t, http.StatusInternalServerError, entry.ResponseStatus)
	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].Success)

	_, err = d.Deliver(context.Background(), &models.Webhook{URL: srv.URL, Secret: "garbage"}, Event{Name: models.EventTest})
	assert.Error(t, err)
}

func TestDispatcherFiltersEvents(t *testing.T) {
	srv, ch := captureServer(t, http.StatusOK)
	store := &memStore{hooks: []models.Webhook{
		{ID: 1, AgentAddress: "0xA", URL: srv.URL, Active: true, Secret: encryptedSecret(t, "a"),
			Events: models.EventList{models.EventLoanRepaid}},
		{ID: 2, AgentAddress: "0xB", URL: srv.URL, Active: true, Secret: encryptedSecret(t, "b")},
		{ID: 3, AgentAddress: "0xC", URL: srv.URL, Active: true, Secret: encryptedSecret(t, "c")},
	}}
	d := NewWebhookDispatcher(store, testKey, quietLogger(), 2, time.Second)
	d.Start()

	d.Notify(context.Background(), Event{Name: models.EventLoanFunded, Recipients: []string{"0xA", "0xB"}})
	d.Stop()

	require.Len(t, ch, 1, "only the unfiltered hook of a recipient is called")
	got := <-ch
	assert.Equal(t, utils.Sign(got.body, "b"), got.header.Get(HeaderSignature))

	// events after Stop are ignored
	d.Notify(context.Background(), Event{Name: models.EventLoanFunded, Recipients: []string{"0xB"}})
	d.Stop()
	assert.Len(t, ch, 0)
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := NewRecorder(4), NewRecorder(4)
	Multi{a, Nop{}, b}.Notify(context.Background(), Event{Name: "x"})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Empty(t, a.Events())
}

func TestEmailNotifier(t *testing.T) {
	cfg := &config.Config{SenderEmail: "noreply@acn.test", AdminEmail: "ops@acn.test"}
	n := NewEmailNotifier(cfg, quietLogger())
	sent := make(chan *email.Email, 2)
	n.send = func(e *email.Email) error {
		sent <- e
		return nil
	}

	n.Notify(context.Background(), Event{Name: models.EventLoanFunded})
	n.Notify(context.Background(), Event{
		Name:       models.EventLoanDefaulted,
		Recipients: []string{"0xA", "0xB"},
		Data:       &models.Loan{LoanID: 4, Amount: 5_000_000, BorrowerAddress: "0xA"},
		Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	select {
	case e := <-sent:
		assert.Equal(t, "Loan Default Notification", e.Subject)
		assert.Equal(t, []string{"ops@acn.test"}, e.To)
		assert.Contains(t, string(e.Text), "Loan: #4")
	case <-time.After(time.Second):
		t.Fatal("default alert not sent")
	}
	assert.Len(t, sent, 0)
}
