// Package metrics exposes Prometheus instrumentation for the identity
// service: login outcomes, lockouts, and HTTP request metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcome labels.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeLocked             = "locked"
	OutcomeInactive           = "inactive"
	OutcomeThrottled          = "throttled"
	OutcomeError              = "error"
)

// Metrics holds all Prometheus collectors for the identity service.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	LockoutsTotal      prometheus.Counter
	UnlocksTotal       prometheus.Counter
	RegistrationsTotal prometheus.Counter
	VerificationsTotal *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New registers and returns the service collectors under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		LoginsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Total login attempts by outcome",
			},
			[]string{"outcome"},
		),
		LockoutsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lockouts_total",
				Help:      "Total accounts locked after repeated failed logins",
			},
		),
		UnlocksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unlocks_total",
				Help:      "Total administrative account unlocks",
			},
		),
		RegistrationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Total accounts registered",
			},
		),
		VerificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "email_verifications_total",
				Help:      "Total email verification attempts by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}
}

// RecordLogin records a login attempt outcome.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// RecordLockout records an account lockout.
func (m *Metrics) RecordLockout() {
	m.LockoutsTotal.Inc()
}

// RecordUnlock records an administrative unlock.
func (m *Metrics) RecordUnlock() {
	m.UnlocksTotal.Inc()
}

// RecordRegistration records a new account registration.
func (m *Metrics) RecordRegistration() {
	m.RegistrationsTotal.Inc()
}

// RecordVerification records an email verification outcome.
func (m *Metrics) RecordVerification(outcome string) {
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

// Middleware instruments HTTP handlers with request count and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses per-account paths to keep label cardinality low.
func normalizePath(path string) string {
	const accountsPrefix = "/v1/accounts/"
	if len(path) > len(accountsPrefix) && path[:len(accountsPrefix)] == accountsPrefix {
		return "/v1/accounts/{id}"
	}
	return path
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
