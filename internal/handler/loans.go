package handler

import (
	"net/http"

	"github.com/Dan9191/credit-network/internal/models"
	"github.com/Dan9191/credit-network/internal/service"
)

type loanRequest struct {
	BorrowerAddress string `json:"borrower_address" validate:"required,eth_addr"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	InterestRate    int    `json:"interest_rate" validate:"required,gt=0"`
	Duration        int    `json:"duration" validate:"required,gt=0"`
	Purpose         string `json:"purpose" validate:"max=500"`
}

type fundRequest struct {
	LenderAddress string `json:"lender_address" validate:"required,eth_addr"`
	TxHash        string `json:"tx_hash"`
}

type repayRequest struct {
	BorrowerAddress string `json:"borrower_address" validate:"omitempty,eth_addr"`
	TxHash          string `json:"tx_hash"`
}

type cancelRequest struct {
	BorrowerAddress string `json:"borrower_address" validate:"required,eth_addr"`
}

// RequestLoan creates a loan request
func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	loan, err := h.svc.RequestLoan(r.Context(), service.LoanRequest{
		Borrower:     req.BorrowerAddress,
		Amount:       req.Amount,
		InterestRate: req.InterestRate,
		Duration:     req.Duration,
		Purpose:      req.Purpose,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"loan": loan})
}

// FundLoan records a lender for a requested loan
func (h *Handler) FundLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req fundRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	loan, err := h.svc.FundLoan(r.Context(), id, req.LenderAddress, req.TxHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"loan": loan})
}

// RepayLoan closes a funded loan
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req repayRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	loan, err := h.svc.RepayLoan(r.Context(), id, req.BorrowerAddress, req.TxHash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"loan": loan})
}

// CancelLoan withdraws a requested loan
func (h *Handler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cancelRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	loan, err := h.svc.CancelLoan(r.Context(), id, req.BorrowerAddress)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"message": "Loan cancelled successfully", "loan": loan})
}

// GetLoan returns one loan
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	loan, err := h.svc.GetLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"loan": loan})
}

// ListLoans lists loans filtered by status, borrower and lender
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.LoanFilter{Borrower: q.Get("borrower"), Lender: q.Get("lender")}
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseLoanStatus(raw)
		if err != nil {
			h.writeError(w, r, &service.Error{Kind: service.KindValidation, Message: err.Error()})
			return
		}
		f.Status = &st
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		h.writeError(w, r, err)
		return
	}
	loans, err := h.svc.ListLoans(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"loans": loans, "count": len(loans)})
}

// LoanFeed serves open loan requests as Atom
func (h *Handler) LoanFeed(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.LoanFeed(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
