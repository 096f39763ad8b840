package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type webhookRequest struct {
	AgentAddress string   `json:"agent_address" validate:"required,eth_addr"`
	URL          string   `json:"url" validate:"required,url"`
	Events       []string `json:"events"`
}

// CreateWebhook registers a webhook. The secret is only returned here.
func (h *Handler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err := h.svc.CreateWebhook(r.Context(), req.AgentAddress, req.URL, req.Events)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"webhook": reg.Webhook, "secret": reg.Secret})
}

// ListWebhooks returns an agent's webhooks
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.svc.ListWebhooks(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"webhooks": hooks})
}

// DeleteWebhook deactivates a webhook
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteWebhook(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Webhook deactivated"})
}

// TestWebhook sends a test event synchronously
func (h *Handler) TestWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.svc.TestWebhook(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Test webhook sent", "delivery": entry})
}

// WebhookLogs lists recent deliveries of a webhook
func (h *Handler) WebhookLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logs, err := h.svc.WebhookLogs(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"logs": logs, "count": len(logs)})
}
