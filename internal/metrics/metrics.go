package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the task service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	tasksAdded        prometheus.Counter
	terminal          *prometheus.CounterVec
	contentBytes      prometheus.Counter
	sessionsActive    prometheus.Gauge
	protocolRequests  *prometheus.CounterVec
	webhookDeliveries *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "humantask_operations_total",
				Help: "Lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "humantask_operation_duration_seconds",
				Help:    "Lifecycle operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		tasksAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "humantask_tasks_added_total",
				Help: "Tasks added",
			},
		),
		terminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "humantask_tasks_terminal_total",
				Help: "Tasks that reached a terminal status",
			},
			[]string{"status"},
		),
		contentBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "humantask_content_bytes_total",
				Help: "Bytes written to the content store",
			},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "humantask_protocol_sessions_active",
				Help: "Open protocol client sessions",
			},
		),
		protocolRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "humantask_protocol_requests_total",
				Help: "Protocol requests by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		webhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "humantask_webhook_deliveries_total",
				Help: "Webhook delivery attempts by result",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.operationDuration,
			m.tasksAdded,
			m.terminal,
			m.contentBytes,
			m.sessionsActive,
			m.protocolRequests,
			m.webhookDeliveries,
		)
	}
	return m
}

// ObserveOperation records one lifecycle operation. outcome is "ok" or an error kind.
func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) TaskAdded() {
	if m == nil {
		return
	}
	m.tasksAdded.Inc()
}

func (m *Metrics) TerminalReached(status string) {
	if m == nil {
		return
	}
	m.terminal.WithLabelValues(status).Inc()
}

func (m *Metrics) ContentStored(n int) {
	if m == nil {
		return
	}
	m.contentBytes.Add(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) ProtocolRequest(op, kind string) {
	if m == nil {
		return
	}
	m.protocolRequests.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) WebhookDelivery(result string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(result).Inc()
}
