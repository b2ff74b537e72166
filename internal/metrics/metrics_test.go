package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Transition("approve", "approved")
	m.Transition("approve", "approved")
	m.IntegrityViolation()
	m.OutboxPublished(true)
	m.OutboxPublished(false)
	m.WebhookProcessed("payout.completed", true)
	m.QueueDepth("outbox", "pending", 7)
	m.QueueDepth("outbox", "pending", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.integrityViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxPublished.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxPublished.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("payout.completed", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("outbox", "pending")), "gauges hold the latest reading")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition("approve", "approved")
		m.WithdrawalRequested("GHS", 100)
		m.IntegrityViolation()
		m.LedgerMovement("reserve")
		m.OutboxPublished(true)
		m.WebhookProcessed("x", false)
		m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
		m.QueueDepth("outbox", "failed", 1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.IntegrityViolation()
	m.ObserveHTTP("GET", "GET /health", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "payouts_ledger_integrity_violations_total 1")
	assert.Contains(t, string(body), "payouts_http_request_duration_seconds")
}
