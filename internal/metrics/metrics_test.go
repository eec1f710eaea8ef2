package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Decision("authenticated")
	m.Decision("authenticated")
	m.RateLimited("auth")
	m.RateLimitStoreError()
	m.AuditFailure()
	m.Login("success")

	count, err := testutil.GatherAndCount(reg,
		"gatekeeper_decisions_total",
		"gatekeeper_rate_limited_total",
		"gatekeeper_rate_limit_store_errors_total",
		"gatekeeper_audit_sink_failures_total",
		"gatekeeper_logins_total",
	)
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestInstrumentRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	h := m.Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	count, err := testutil.GatherAndCount(reg, "http_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.Decision("public")
	m.RateLimited("general")
	m.RateLimitStoreError()
	m.AuditFailure()
	m.Login("failed")

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	require.NotNil(t, m.Instrument(next))
}
