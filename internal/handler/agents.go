package handler

import (
	"net/http"
	"strconv"

	"github.com/Dan9191/credit-network/internal/middleware"
	"github.com/Dan9191/credit-network/internal/service"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	Address     string `json:"address" validate:"required,eth_addr"`
	Name        string `json:"name" validate:"max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type updateAgentRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type verifyRequest struct {
	XUsername      string `json:"x_username"`
	Handle         string `json:"external_handle"`
	ExternalHandle string `json:"externalHandle"`
}

// handle returns the first of the accepted handle fields that is set
func (v verifyRequest) handle() string {
	for _, h := range []string{v.XUsername, v.Handle, v.ExternalHandle} {
		if h != "" {
			return h
		}
	}
	return ""
}

// RegisterAgent handles agent registration
func (h *Handler) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err := h.svc.RegisterAgent(r.Context(), service.RegisterInput{
		Address:     req.Address,
		Name:        req.Name,
		Description: req.Description,
		ClientIP:    middleware.ClientIP(r),
		AgentID:     r.Header.Get("X-Agent-ID"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		"agent":  reg.Agent,
		"credit": reg.Credit,
		"verification": envelope{
			"token":        reg.Verification.Token,
			"verify_url":   reg.VerifyURL,
			"instructions": reg.Instructions,
			"required":     h.config.RequireVerification,
		},
	})
}

// GetAgent returns an agent with its credit record
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.GetAgent(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"agent": agent})
}

// ListAgents pages through agents. ?verified=true|false filters.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var verified *bool
	if raw := r.URL.Query().Get("verified"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, &service.Error{Kind: service.KindValidation, Message: "verified must be true or false"})
			return
		}
		verified = &v
	}
	agents, err := h.svc.ListAgents(r.Context(), verified, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"agents": agents, "count": len(agents)})
}

// UpdateAgent changes an agent's profile
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req updateAgentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	agent, err := h.svc.UpdateAgent(r.Context(), mux.Vars(r)["address"], req.Name, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"agent": agent})
}

// Verify completes a verification with an external handle
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Verify(r.Context(), mux.Vars(r)["token"], req.handle())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"message":       "Agent verified successfully",
		"agent_address": res.AgentAddress,
		"verified":      res.Verified,
		"verified_by":   res.VerifiedBy,
	})
}

// VerificationStatus reports the state of a token
func (h *Handler) VerificationStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.VerificationStatus(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"status":        st.Status,
		"agent_address": st.AgentAddress,
		"agent_name":    st.AgentName,
		"verified":      st.AgentVerified,
		"created_at":    st.CreatedAt,
		"verified_at":   st.VerifiedAt,
	})
}

// AgentVerified reports whether an agent is verified
func (h *Handler) AgentVerified(w http.ResponseWriter, r *http.Request) {
	agent, err := h.svc.AgentVerified(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"address": agent.Address, "name": agent.Name, "verified": agent.Verified})
}
