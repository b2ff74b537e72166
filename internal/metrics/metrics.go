package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payouts"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	transitions         *prometheus.CounterVec
	withdrawalAmount    *prometheus.HistogramVec
	integrityViolations prometheus.Counter
	ledgerMovements     *prometheus.CounterVec
	outboxPublished     *prometheus.CounterVec
	webhookEvents       *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	queueDepth          *prometheus.GaugeVec
}

func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_transitions_total",
			Help:      "Withdrawal state machine transitions by event and resulting status.",
		}, []string{"event", "status"}),
		withdrawalAmount: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "withdrawal_amount_minor_units",
			Help:      "Requested withdrawal amounts in minor units.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"currency"}),
		integrityViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_integrity_violations_total",
			Help:      "Ledger mutations rejected because the balance invariants would break.",
		}),
		ledgerMovements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_movements_total",
			Help:      "Ledger movements applied by entry type.",
		}, []string{"entry_type"}),
		outboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Outbox publish attempts by result.",
		}, []string{"result"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_processed_total",
			Help:      "Inbound events processed by type and result.",
		}, []string{"event_type", "result"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Rows waiting in the outbox and inbound event tables by status.",
		}, []string{"queue", "status"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Transition(event, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, status).Inc()
}

func (m *Metrics) WithdrawalRequested(currency string, amount int64) {
	if m == nil {
		return
	}
	m.withdrawalAmount.WithLabelValues(currency).Observe(float64(amount))
}

func (m *Metrics) IntegrityViolation() {
	if m == nil {
		return
	}
	m.integrityViolations.Inc()
}

func (m *Metrics) LedgerMovement(entryType string) {
	if m == nil {
		return
	}
	m.ledgerMovements.WithLabelValues(entryType).Inc()
}

func (m *Metrics) OutboxPublished(ok bool) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) WebhookProcessed(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result(ok)).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(queue, status string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue, status).Set(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// IntegrityViolationCounter exposes the counter for assertions.
func (m *Metrics) IntegrityViolationCounter() prometheus.Counter {
	return m.integrityViolations
}
