package handler

import (
	"errors"
	"net/http"

	"github.com/Dan9191/credit-network/internal/middleware"
	"github.com/Dan9191/credit-network/internal/service"
	"github.com/gorilla/mux"
)

// AdminToken exchanges X-Admin-Key for a bearer token
func (h *Handler) AdminToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.IssueAdminToken(r.Header.Get("X-Admin-Key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"token": token, "token_type": "Bearer"})
}

// AdminStats summarises the platform
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.AdminStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"stats": stats})
}

// BackfillCreditScores creates missing credit records
func (h *Handler) BackfillCreditScores(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.BackfillCreditScores(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"created": n})
}

// AdminVerifyAgent verifies an agent without a social handle
func (h *Handler) AdminVerifyAgent(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AdminVerifyAgent(r.Context(), mux.Vars(r)["address"], middleware.AdminFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"agent_address": res.AgentAddress,
		"verified":      res.Verified,
		"verified_by":   res.VerifiedBy,
	})
}

// DefaultLoan marks a funded loan as defaulted
func (h *Handler) DefaultLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	loan, err := h.svc.DefaultLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"loan": loan})
}

// SweepDefaults runs the overdue-loan sweep immediately
func (h *Handler) SweepDefaults(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SweepDefaults(r.Context(), h.config.DefaultGraceDays)
	var partial *service.SweepError
	if errors.As(err, &partial) {
		writeJSON(w, http.StatusOK, envelope{"defaulted": n, "failed_loan_ids": partial.LoanIDs})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"defaulted": n})
}
