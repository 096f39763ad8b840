package handler

import (
	"net/http"

	"github.com/Dan9191/credit-network/internal/service"
	"github.com/gorilla/mux"
)

type autoRepayRequest struct {
	AgentAddress string `json:"agent_address" validate:"required,eth_addr"`
	LoanID       int64  `json:"loan_id" validate:"required,gt=0"`
	Threshold    int64  `json:"threshold" validate:"required,gt=0"`
	MinBalance   int64  `json:"min_balance" validate:"gte=0"`
}

type txRequest struct {
	TxHash string `json:"tx_hash"`
}

type insuranceRequest struct {
	LoanID         int64  `json:"loan_id" validate:"required,gt=0"`
	LenderAddress  string `json:"lender_address" validate:"required,eth_addr"`
	CoverageAmount int64  `json:"coverage_amount" validate:"required,gt=0"`
	Premium        int64  `json:"premium" validate:"required,gt=0"`
	TxHash         string `json:"tx_hash"`
}

type referralRequest struct {
	ReferrerAddress string `json:"referrer_address" validate:"required,eth_addr"`
	ReferredAddress string `json:"referred_address" validate:"required,eth_addr"`
	ReferralCode    string `json:"referral_code" validate:"max=32"`
}

type payReferralRequest struct {
	RewardAmount int64  `json:"reward_amount" validate:"gte=0"`
	TxHash       string `json:"tx_hash"`
}

// ConfigureAutoRepay creates or updates an auto-repay config
func (h *Handler) ConfigureAutoRepay(w http.ResponseWriter, r *http.Request) {
	var req autoRepayRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg, err := h.svc.ConfigureAutoRepay(r.Context(), service.AutoRepayInput{
		AgentAddress: req.AgentAddress,
		LoanID:       req.LoanID,
		Threshold:    req.Threshold,
		MinBalance:   req.MinBalance,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"config": cfg})
}

// ListAutoRepay returns an agent's auto-repay configs
func (h *Handler) ListAutoRepay(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.svc.ListAutoRepay(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"configs": cfgs, "count": len(cfgs)})
}

// DisableAutoRepay switches a config off
func (h *Handler) DisableAutoRepay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg, err := h.svc.DisableAutoRepay(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"config": cfg})
}

// ExecuteAutoRepay repays the configured loan
func (h *Handler) ExecuteAutoRepay(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req txRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg, loan, err := h.svc.ExecuteAutoRepay(r.Context(), id, req.TxHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"config": cfg, "loan": loan})
}

// PurchaseInsurance buys default cover for a funded loan
func (h *Handler) PurchaseInsurance(w http.ResponseWriter, r *http.Request) {
	var req insuranceRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	policy, err := h.svc.PurchaseInsurance(r.Context(), service.PolicyInput{
		LoanID:         req.LoanID,
		LenderAddress:  req.LenderAddress,
		CoverageAmount: req.CoverageAmount,
		Premium:        req.Premium,
		TxHash:         req.TxHash,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"policy": policy})
}

// ListPolicies returns a lender's policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.svc.ListPolicies(r.Context(), mux.Vars(r)["lender"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"policies": policies})
}

// ClaimInsurance claims a policy of a defaulted loan
func (h *Handler) ClaimInsurance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req txRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	policy, err := h.svc.ClaimInsurance(r.Context(), id, req.TxHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"policy": policy})
}

// PoolStats summarises the insurance pool
func (h *Handler) PoolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.PoolStats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"stats": stats})
}

// RegisterReferral links two agents
func (h *Handler) RegisterReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ref, err := h.svc.RegisterReferral(r.Context(), req.ReferrerAddress, req.ReferredAddress, req.ReferralCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"referral": ref, "referral_code": ref.ReferralCode})
}

// ListReferrals returns an agent's referrals; ?as=referrer|referred narrows the role
func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	refs, err := h.svc.ListReferrals(r.Context(), mux.Vars(r)["address"], r.URL.Query().Get("as"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"referrals": refs})
}

// PayReferral marks a referral as paid
func (h *Handler) PayReferral(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req payReferralRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ref, err := h.svc.PayReferral(r.Context(), id, req.RewardAmount, req.TxHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"referral": ref})
}

// ReferralStats summarises an agent's referrals
func (h *Handler) ReferralStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.ReferralStats(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"stats": stats})
}
