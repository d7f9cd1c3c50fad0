package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the order collectors.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// OrderMetrics records order lifecycle operations and the side effects they trigger.
type OrderMetrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	gateway     *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_operations_total",
		Help: "Order lifecycle operations by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orders_operation_duration_seconds",
		Help:    "Duration of order lifecycle operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	gateway := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_attempts_total",
		Help: "Payment gateway call attempts by outcome.",
	}, []string{"call", "outcome"})
	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_failures_total",
		Help: "Best-effort side effects that failed after retries.",
	}, []string{"kind"})
	reg.MustRegister(operations, duration, gateway, sideEffects)
	return &OrderMetrics{
		operations:  operations,
		duration:    duration,
		gateway:     gateway,
		sideEffects: sideEffects,
	}
}

// ObserveOperation records the outcome and duration of an orchestrator call.
func (m *OrderMetrics) ObserveOperation(operation string, err error, elapsed time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op := normalizeLabel(operation)
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncGatewayAttempt counts one attempt against the payment gateway.
func (m *OrderMetrics) IncGatewayAttempt(call string, err error) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(call), outcome(err)).Inc()
}

// IncSideEffectFailure counts a swallowed post-commit failure.
func (m *OrderMetrics) IncSideEffectFailure(kind string) {
	if m == nil || m.sideEffects == nil {
		return
	}
	m.sideEffects.WithLabelValues(normalizeLabel(kind)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
