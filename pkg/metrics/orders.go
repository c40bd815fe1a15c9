package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics tracks the order pipeline: creation, payment reconciliation,
// outbound notifications and provider latency.
type OrderMetrics struct {
	created         *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	eventsDropped   *prometheus.CounterVec
}

// NewOrderMetrics registers the order pipeline metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saffron_orders_created_total",
		Help: "Orders persisted, by payment method.",
	}, []string{"method"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saffron_payment_reconciliations_total",
		Help: "Payment reconciliation attempts, by outcome and whether a transition was applied.",
	}, []string{"outcome", "applied"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saffron_notifications_total",
		Help: "Outbound notifications, by template and result.",
	}, []string{"template", "result"})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saffron_provider_request_duration_seconds",
		Help:    "Latency of calls to external providers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	eventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saffron_realtime_events_dropped_total",
		Help: "Real-time events dropped because a subscriber buffer was full.",
	}, []string{"room"})
	reg.MustRegister(created, reconciliations, notifications, providerLatency, eventsDropped)
	return &OrderMetrics{
		created:         created,
		reconciliations: reconciliations,
		notifications:   notifications,
		providerLatency: providerLatency,
		eventsDropped:   eventsDropped,
	}
}

func (m *OrderMetrics) IncCreated(method string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(method)).Inc()
}

func (m *OrderMetrics) IncReconciliation(outcome string, applied bool) {
	if m == nil || m.reconciliations == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.reconciliations.WithLabelValues(normalizeLabel(outcome), label).Inc()
}

func (m *OrderMetrics) IncNotification(template string, success bool) {
	if m == nil || m.notifications == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.notifications.WithLabelValues(normalizeLabel(template), result).Inc()
}

func (m *OrderMetrics) ObserveProvider(provider, operation string, duration time.Duration) {
	if m == nil || m.providerLatency == nil {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncDropped counts an event that a slow subscriber missed. Per-staff delivery
// rooms are folded into one label to bound cardinality.
func (m *OrderMetrics) IncDropped(room string) {
	if m == nil || m.eventsDropped == nil {
		return
	}
	if strings.HasPrefix(room, "delivery_") {
		room = "delivery"
	}
	m.eventsDropped.WithLabelValues(normalizeLabel(room)).Inc()
}
