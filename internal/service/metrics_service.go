package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the reminder
// and verification pipelines.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	dispatchTotal    *prometheus.CounterVec
	deliveryAttempts *prometheus.CounterVec
	verifyOutcomes   *prometheus.CounterVec
	liveSessions     prometheus.GaugeFunc
}

// NewMetricsService registers the collectors. sessionCount may be nil when
// the session backend cannot report a size (Redis).
func NewMetricsService(sessionCount func() int) *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_dispatched_total",
		Help: "Reminder dispatch outcomes",
	}, []string{"outcome"})

	deliveryAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_attempts_total",
		Help: "Channel delivery attempts by channel and status",
	}, []string{"channel", "status"})

	verifyOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "verification_outcomes_total",
		Help: "Verification operations by purpose and outcome",
	}, []string{"purpose", "outcome"})

	liveSessions := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "verification_sessions_live",
		Help: "Verification sessions currently held in the store",
	}, func() float64 {
		if sessionCount == nil {
			return 0
		}
		return float64(sessionCount())
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dispatchTotal, deliveryAttempts, verifyOutcomes, liveSessions, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		dispatchTotal:    dispatchTotal,
		deliveryAttempts: deliveryAttempts,
		verifyOutcomes:   verifyOutcomes,
		liveSessions:     liveSessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := []string{method, path, strconv.Itoa(status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordDispatch counts one reminder dispatch outcome.
func (m *MetricsService) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

// RecordDeliveryAttempt counts one channel attempt.
func (m *MetricsService) RecordDeliveryAttempt(channel, status string) {
	if m == nil {
		return
	}
	m.deliveryAttempts.WithLabelValues(channel, status).Inc()
}

// RecordVerification counts one verification operation outcome.
func (m *MetricsService) RecordVerification(purpose, outcome string) {
	if m == nil {
		return
	}
	m.verifyOutcomes.WithLabelValues(purpose, outcome).Inc()
}
