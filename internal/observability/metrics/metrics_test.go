package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveStep("phone_verification", "booking_option")
	m.ObserveStep("phone_verification", "booking_option")
	m.ObserveOTP("send", "ok")
	m.ObserveSubmission("ONE_TIME_APPOINTMENT", "error")
	m.ObserveAPIRequest("GET", "/addresses", 200, 0.2)
	m.ObserveAPIRequest("POST", "/otp/send", 0, 1.5)
	m.ObserveHTTP("/widget/sessions/{id}/next", 200, 0.05)

	if got := counterValue(t, m.stepTransitions.WithLabelValues("phone_verification", "booking_option")); got != 2 {
		t.Errorf("step transitions = %v, want 2", got)
	}
	if got := counterValue(t, m.apiRequests.WithLabelValues("POST", "/otp/send", "error")); got != 1 {
		t.Errorf("failed api requests = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 6 {
		t.Errorf("expected 6 metric families, got %d", len(families))
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveStep("a", "b")
	m.ObserveOTP("send", "ok")
	m.ObserveSubmission("ONE_TIME_APPOINTMENT", "ok")
	m.ObserveAPIRequest("GET", "/x", 200, 0.1)
	m.ObserveHTTP("/x", 200, 0.1)
}
