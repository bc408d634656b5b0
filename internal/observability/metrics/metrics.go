package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking widget.
// It satisfies both wizard.Observer and medos.RequestObserver.
type BookingMetrics struct {
	stepTransitions *prometheus.CounterVec
	otpTotal        *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	apiRequests     *prometheus.CounterVec
	apiLatency      *prometheus.HistogramVec
	httpLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medos",
			Subsystem: "wizard",
			Name:      "step_transitions_total",
			Help:      "Wizard step changes",
		}, []string{"from", "to"}),
		otpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medos",
			Subsystem: "wizard",
			Name:      "otp_total",
			Help:      "OTP send/resend/verify attempts",
		}, []string{"operation", "outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medos",
			Subsystem: "wizard",
			Name:      "submissions_total",
			Help:      "Appointment submissions by booking type",
		}, []string{"booking_type", "outcome"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medos",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Medos API round trips",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medos",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency of Medos API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medos",
			Subsystem: "widget",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of widget HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepTransitions, m.otpTotal, m.submissions, m.apiRequests, m.apiLatency, m.httpLatency)
	return m
}

func (m *BookingMetrics) ObserveStep(from, to string) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveOTP(operation, outcome string) {
	if m == nil {
		return
	}
	m.otpTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveSubmission(bookingType, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(bookingType, outcome).Inc()
}

// ObserveAPIRequest records one Medos round trip. status 0 means the request
// never got a response.
func (m *BookingMetrics) ObserveAPIRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.apiRequests.WithLabelValues(method, route, label).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(seconds)
}

func (m *BookingMetrics) ObserveHTTP(route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(route, strconv.Itoa(status)).Observe(seconds)
}
