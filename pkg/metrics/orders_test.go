package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOrderMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOrderMetrics(reg)

	metrics.ObserveOperation("place_order", nil, 250*time.Millisecond)
	metrics.ObserveOperation("place_order", errors.New("boom"), 10*time.Millisecond)
	metrics.IncGatewayAttempt("initialize_payment", errors.New("timeout"))
	metrics.IncGatewayAttempt("initialize_payment", nil)
	metrics.IncSideEffectFailure("email")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	assertCounter(t, mfs, "orders_operations_total", map[string]string{"operation": "place_order", "outcome": OutcomeSuccess}, 1)
	assertCounter(t, mfs, "orders_operations_total", map[string]string{"operation": "place_order", "outcome": OutcomeFailure}, 1)
	assertCounter(t, mfs, "gateway_attempts_total", map[string]string{"call": "initialize_payment", "outcome": OutcomeFailure}, 1)
	assertCounter(t, mfs, "side_effect_failures_total", map[string]string{"kind": "email"}, 1)

	if got, err := fetchHistogramSum(mfs, "orders_operation_duration_seconds", "operation", "place_order"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilOrderMetricsIsSafe(t *testing.T) {
	var metrics *OrderMetrics
	metrics.ObserveOperation("cancel_line", nil, time.Second)
	metrics.IncGatewayAttempt("refund", nil)
	metrics.IncSideEffectFailure("")

	unregistered := NewOrderMetrics(nil)
	unregistered.IncSideEffectFailure("notification")
}

func assertCounter(t *testing.T, mfs []*dto.MetricFamily, name string, labels map[string]string, want float64) {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		t.Fatalf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			if got := metric.GetCounter().GetValue(); got != want {
				t.Fatalf("%s%v = %f, want %f", name, labels, got, want)
			}
			return
		}
	}
	t.Fatalf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), map[string]string{label: value}) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(labels []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, label := range labels {
		if v, ok := want[label.GetName()]; ok {
			if label.GetValue() != v {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
