package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

type messageRequest struct {
	LoanID        int64  `json:"loan_id" validate:"required,gt=0"`
	SenderAddress string `json:"sender_address" validate:"required,eth_addr"`
	Content       string `json:"content" validate:"required"`
}

type readRequest struct {
	ReaderAddress string `json:"reader_address" validate:"required,eth_addr"`
}

// SendMessage posts a message to a loan conversation
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), req.LoanID, req.SenderAddress, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": msg})
}

// ListMessages returns a loan conversation
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "loanId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msgs, err := h.svc.ListMessages(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"messages": msgs, "count": len(msgs)})
}

// MarkRead marks the reader's incoming messages as read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "loanId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req readRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.MarkRead(r.Context(), id, req.ReaderAddress)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"marked_count": n})
}

// UnreadCount reports unread messages for an address
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "loanId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), id, mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"unread_count": n})
}
