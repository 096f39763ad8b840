package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// GetCredit returns an agent's credit record
func (h *Handler) GetCredit(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.GetCredit(r.Context(), mux.Vars(r)["address"], 10)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"credit": report.Credit, "tier": report.Tier, "next_tier": report.NextTier})
}

// CreditHistory returns an agent's score changes, newest first
func (h *Handler) CreditHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.GetCredit(r.Context(), mux.Vars(r)["address"], limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"history": report.History, "count": len(report.History)})
}

// Tiers lists the credit tiers
func (h *Handler) Tiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"tiers": h.svc.Tiers()})
}

// Leaderboard serves /leaderboard/{lenders|borrowers|volume}
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.svc.Leaderboard(r.Context(), mux.Vars(r)["board"], limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"leaderboard": rows})
}

// Overview returns platform statistics
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"data": out})
}

// Volume returns daily lending volume
func (h *Handler) Volume(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	points, err := h.svc.VolumeByDay(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"data": points})
}

// TierDistribution counts agents per tier
func (h *Handler) TierDistribution(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.svc.TierDistribution(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"data": buckets})
}
