package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the calendar service
type Metrics struct {
	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsTotal    *prometheus.CounterVec
	SessionQuality   prometheus.Histogram
	AdmissionsTotal  *prometheus.CounterVec
	SessionsEvicted  prometheus.Counter
	SessionsRestored prometheus.Counter

	// Step metrics
	StepDuration *prometheus.HistogramVec
	StepsTotal   *prometheus.CounterVec
	StepRetries  *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			SessionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "contentcal_sessions_active",
					Help: "Number of sessions currently pending or running",
				},
			),
			SessionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "contentcal_sessions_total",
					Help: "Total number of sessions by terminal status",
				},
				[]string{"status"},
			),
			SessionQuality: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "contentcal_session_quality",
					Help:    "Aggregate quality score of finished sessions",
					Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
				},
			),
			AdmissionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "contentcal_admissions_total",
					Help: "Session admission decisions",
				},
				[]string{"result"},
			),
			SessionsEvicted: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "contentcal_sessions_evicted_total",
					Help: "Terminal sessions removed by cleanup",
				},
			),
			SessionsRestored: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "contentcal_sessions_restored_total",
					Help: "Sessions loaded from the store at startup",
				},
			),
			StepDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "contentcal_step_duration_seconds",
					Help:    "Duration of pipeline steps in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2min
				},
				[]string{"step"},
			),
			StepsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "contentcal_steps_total",
					Help: "Total number of step executions by outcome",
				},
				[]string{"step", "outcome"},
			),
			StepRetries: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "contentcal_step_retries_total",
					Help: "Total number of step retries",
				},
				[]string{"step"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "contentcal_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "route", "status"},
			),
		}
	})
	return sharedMetrics
}

// ObserveStep records one step execution.
func (m *Metrics) ObserveStep(step, outcome string, elapsed time.Duration) {
	m.StepsTotal.WithLabelValues(step, outcome).Inc()
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRetry(step string) {
	m.StepRetries.WithLabelValues(step).Inc()
}

// ObserveSession records a session reaching a terminal status.
func (m *Metrics) ObserveSession(status string, aggregate float64) {
	m.SessionsTotal.WithLabelValues(status).Inc()
	if aggregate > 0 {
		m.SessionQuality.Observe(aggregate)
	}
}

func (m *Metrics) ObserveAdmission(admitted bool) {
	result := "rejected"
	if admitted {
		result = "admitted"
		m.SessionsActive.Inc()
	}
	m.AdmissionsTotal.WithLabelValues(result).Inc()
}

// SessionClosed decrements the active gauge when a session leaves the
// pending/running states.
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

func (m *Metrics) ObserveEvicted(n int) {
	m.SessionsEvicted.Add(float64(n))
}

func (m *Metrics) ObserveRestored(n int) {
	m.SessionsRestored.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
