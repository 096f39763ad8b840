package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/Dan9191/credit-network/internal/config"
	"github.com/Dan9191/credit-network/internal/metrics"
	"github.com/Dan9191/credit-network/internal/middleware"
	"github.com/Dan9191/credit-network/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler exposes the service over HTTP
type Handler struct {
	svc      *service.Service
	log      *logrus.Logger
	config   *config.Config
	db       Pinger
	validate *validator.Validate
	proxies  []*net.IPNet
}

// NewHandler creates a handler
func NewHandler(svc *service.Service, log *logrus.Logger, cfg *config.Config, db Pinger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	proxies, err := cfg.TrustedProxyNets()
	if err != nil {
		log.WithError(err).Warn("Ignoring TRUSTED_PROXIES, X-Forwarded-For will not be trusted")
	}
	return &Handler{svc: svc, log: log, config: cfg, db: db, validate: v, proxies: proxies}
}

// Router builds the full route table
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP(h.proxies), middleware.Recover(h.log), middleware.AccessLog(h.log), middleware.CORS, metrics.InstrumentHandler)

	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/agents/register", h.RegisterAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents", h.ListAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/{address}", h.GetAgent).Methods(http.MethodGet)
	r.HandleFunc("/agents/{address}", h.UpdateAgent).Methods(http.MethodPut)

	r.HandleFunc("/verify/status/{token}", h.VerificationStatus).Methods(http.MethodGet)
	r.HandleFunc("/verify/agent/{address}", h.AgentVerified).Methods(http.MethodGet)
	r.HandleFunc("/verify/{token}", h.Verify).Methods(http.MethodPost)

	r.HandleFunc("/loans/request", h.RequestLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/feed", h.LoanFeed).Methods(http.MethodGet)
	r.HandleFunc("/loans", h.ListLoans).Methods(http.MethodGet)
	r.HandleFunc("/loans/{id:[0-9]+}", h.GetLoan).Methods(http.MethodGet)
	r.HandleFunc("/loans/{id:[0-9]+}/fund", h.FundLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id:[0-9]+}/repay", h.RepayLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id:[0-9]+}/cancel", h.CancelLoan).Methods(http.MethodPost)

	r.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{loanId:[0-9]+}", h.ListMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{loanId:[0-9]+}/read", h.MarkRead).Methods(http.MethodPut)
	r.HandleFunc("/messages/{loanId:[0-9]+}/unread/{address}", h.UnreadCount).Methods(http.MethodGet)

	r.HandleFunc("/credit/tiers", h.Tiers).Methods(http.MethodGet)
	r.HandleFunc("/credit/{address}", h.GetCredit).Methods(http.MethodGet)
	r.HandleFunc("/credit/{address}/history", h.CreditHistory).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard/{board}", h.Leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/analytics/overview", h.Overview).Methods(http.MethodGet)
	r.HandleFunc("/analytics/volume", h.Volume).Methods(http.MethodGet)
	r.HandleFunc("/analytics/tiers", h.TierDistribution).Methods(http.MethodGet)

	r.HandleFunc("/webhooks", h.CreateWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/test/{id:[0-9]+}", h.TestWebhook).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/{id:[0-9]+}/logs", h.WebhookLogs).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/{id:[0-9]+}", h.DeleteWebhook).Methods(http.MethodDelete)
	r.HandleFunc("/webhooks/{address}", h.ListWebhooks).Methods(http.MethodGet)

	r.HandleFunc("/auto-repay", h.ConfigureAutoRepay).Methods(http.MethodPost)
	r.HandleFunc("/auto-repay/{address}", h.ListAutoRepay).Methods(http.MethodGet)
	r.HandleFunc("/auto-repay/{id:[0-9]+}", h.DisableAutoRepay).Methods(http.MethodDelete)
	r.HandleFunc("/auto-repay/{id:[0-9]+}/execute", h.ExecuteAutoRepay).Methods(http.MethodPost)

	r.HandleFunc("/insurance/purchase", h.PurchaseInsurance).Methods(http.MethodPost)
	r.HandleFunc("/insurance/pool/stats", h.PoolStats).Methods(http.MethodGet)
	r.HandleFunc("/insurance/{id:[0-9]+}/claim", h.ClaimInsurance).Methods(http.MethodPost)
	r.HandleFunc("/insurance/{lender}", h.ListPolicies).Methods(http.MethodGet)

	r.HandleFunc("/referrals/register", h.RegisterReferral).Methods(http.MethodPost)
	r.HandleFunc("/referrals/stats/{address}", h.ReferralStats).Methods(http.MethodGet)
	r.HandleFunc("/referrals/{id:[0-9]+}/pay", h.PayReferral).Methods(http.MethodPost)
	r.HandleFunc("/referrals/{address}", h.ListReferrals).Methods(http.MethodGet)

	r.HandleFunc("/admin/token", h.AdminToken).Methods(http.MethodPost)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AuthMiddleware(h.config))
	admin.HandleFunc("/stats", h.AdminStats).Methods(http.MethodGet)
	admin.HandleFunc("/backfill-credit-scores", h.BackfillCreditScores).Methods(http.MethodPost)
	admin.HandleFunc("/agents/{address}/verify", h.AdminVerifyAgent).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{id:[0-9]+}/default", h.DefaultLoan).Methods(http.MethodPost)
	admin.HandleFunc("/sweep-defaults", h.SweepDefaults).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "error": "route not found", "code": service.KindNotFound.Code()})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"success": false, "error": "method not allowed"})
	})
	return r
}

// Index describes the service
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"name":    "Agent Credit Network",
		"endpoints": []string{
			"/agents", "/verify", "/loans", "/messages", "/credit", "/leaderboard",
			"/analytics", "/webhooks", "/auto-repay", "/insurance", "/referrals", "/admin",
		},
		"require_verification": h.config.RequireVerification,
	})
}

// Health reports process and database health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.WithError(err).Error("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, envelope{"success": false, "status": "unhealthy", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "status": "ok", "database": "ok"})
}

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope) {
	if _, ok := data["success"]; !ok {
		data["success"] = status < http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

var kindStatus = map[service.Kind]int{
	service.KindValidation:   http.StatusBadRequest,
	service.KindNotFound:     http.StatusNotFound,
	service.KindConflict:     http.StatusConflict,
	service.KindForbidden:    http.StatusForbidden,
	service.KindRateLimited:  http.StatusTooManyRequests,
	service.KindUnauthorized: http.StatusUnauthorized,
}

// writeError renders a service error; details are merged into the body
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		se = &service.Error{Kind: service.KindInternal, Message: "internal server error"}
	}
	status, ok := kindStatus[se.Kind]
	if !ok {
		status = http.StatusInternalServerError
		h.log.WithError(err).WithField("request_id", middleware.RequestIDFromContext(r.Context())).
			Errorf("Internal error on %s %s", r.Method, r.URL.Path)
	}

	body := envelope{}
	for k, v := range se.Details {
		body[k] = v
	}
	body["success"] = false
	body["error"] = se.Message
	body["code"] = se.Kind.Code()
	writeJSON(w, status, body)
}

// decode reads a JSON body into dst and validates it. An empty body decodes to the zero value.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return decodeError(err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// decodeError describes a malformed body without exposing Go type names
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		se := &service.Error{Kind: service.KindValidation, Message: "request validation failed"}
		return se.With("fields", []map[string]string{{"field": typeErr.Field, "message": typeMessage(typeErr.Type)}})
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &service.Error{Kind: service.KindValidation, Message: "invalid JSON body: " + syntaxErr.Error()}
	}
	return &service.Error{Kind: service.KindValidation, Message: "invalid JSON body"}
}

func typeMessage(t reflect.Type) string {
	if t == nil {
		return "Invalid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "Must be an integer"
	case reflect.Float32, reflect.Float64:
		return "Must be a number"
	case reflect.String:
		return "Must be a string"
	case reflect.Bool:
		return "Must be a boolean"
	case reflect.Slice, reflect.Array:
		return "Must be an array"
	case reflect.Pointer:
		return typeMessage(t.Elem())
	default:
		return "Invalid value"
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &service.Error{Kind: service.KindValidation, Message: err.Error()}
	}
	fields := make([]map[string]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, map[string]string{"field": e.Field(), "message": fieldMessage(e)})
	}
	se := &service.Error{Kind: service.KindValidation, Message: "request validation failed"}
	return se.With("fields", fields)
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "eth_addr":
		return "Must be a 0x-prefixed 20-byte hex address"
	case "url":
		return "Invalid URL format"
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "oneof":
		return "Must be one of: " + e.Param()
	default:
		return "Invalid value"
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, &service.Error{Kind: service.KindValidation, Message: "invalid " + name}
	}
	return id, nil
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &service.Error{Kind: service.KindValidation, Message: name + " must be a non-negative integer"}
	}
	return n, nil
}
