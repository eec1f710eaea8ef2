// Package metrics holds the gatekeeper's Prometheus collectors. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	decisions       *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	rateLimitErrors prometheus.Counter
	auditFailures   prometheus.Counter
	logins          *prometheus.CounterVec
	httpInFlight    prometheus.Gauge
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_decisions_total",
			Help: "Gatekeeper outcomes by final state.",
		}, []string{"state"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_rate_limited_total",
			Help: "Requests rejected by a rate limit, by scope.",
		}, []string{"scope"}),
		rateLimitErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_rate_limit_store_errors_total",
			Help: "Rate limit store failures. Requests are let through when the store fails.",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_audit_sink_failures_total",
			Help: "Audit events the sink failed to record.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.decisions,
		m.rateLimited,
		m.rateLimitErrors,
		m.auditFailures,
		m.logins,
		m.httpInFlight,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Decision(state string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(state).Inc()
}

func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) RateLimitStoreError() {
	if m == nil {
		return
	}
	m.rateLimitErrors.Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Instrument records latency and in-flight requests for next
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.httpDuration.WithLabelValues(r.Method, strconv.Itoa(sw.code)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
