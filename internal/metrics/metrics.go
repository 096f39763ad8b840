package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "credit_network",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_network",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "credit_network",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	loanTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_network",
			Subsystem: "loans",
			Name:      "transitions_total",
			Help:      "Loan lifecycle transitions by resulting status.",
		},
		[]string{"status"},
	)

	loanVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_network",
			Subsystem: "loans",
			Name:      "volume_subunits_total",
			Help:      "Loan principal moved through each transition, in currency sub-units.",
		},
		[]string{"status"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_network",
			Subsystem: "webhooks",
			Name:      "deliveries_total",
			Help:      "Webhook delivery attempts.",
		},
		[]string{"event", "success"},
	)

	webhookDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "credit_network",
			Subsystem: "webhooks",
			Name:      "dropped_events_total",
			Help:      "Events dropped because the delivery queue was full.",
		},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_network",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by a rate limiter.",
		},
		[]string{"scope"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		loanTransitions,
		loanVolume,
		webhookDeliveries,
		webhookDropped,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Used as mux middleware the path label is the route template.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routePath(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordLoanTransition counts a loan entering status
func RecordLoanTransition(status string, amount int64) {
	loanTransitions.WithLabelValues(status).Inc()
	if amount > 0 {
		loanVolume.WithLabelValues(status).Add(float64(amount))
	}
}

// RecordWebhookDelivery counts a delivery attempt
func RecordWebhookDelivery(event string, success bool) {
	webhookDeliveries.WithLabelValues(event, strconv.FormatBool(success)).Inc()
}

// RecordWebhookDropped counts an event that could not be queued
func RecordWebhookDropped() {
	webhookDropped.Inc()
}

// RecordRateLimited counts a rejected request
func RecordRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return canonicalPath(r.URL.Path)
}

// canonicalPath keeps only the first segment so unmatched paths cannot explode label cardinality
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + strings.SplitN(trimmed, "/", 2)[0]
}
