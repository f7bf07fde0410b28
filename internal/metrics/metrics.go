// Package metrics provides Prometheus metrics collection for lotpass.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Global metrics - used by the application
	// Using atomic.Pointer for lock-free initialization checks on hot path metrics.
	requestsTotal      atomic.Pointer[prometheus.CounterVec]
	requestDuration    atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal  atomic.Pointer[prometheus.CounterVec]
	tokensIssuedTotal  atomic.Pointer[prometheus.CounterVec]
	confirmationsTotal atomic.Pointer[prometheus.CounterVec]
	wsSubscribers      atomic.Pointer[prometheus.Gauge]
)

// Init initializes all Prometheus metrics and registers them with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer) error {
	// HTTP request counter: tracks all requests by method, path (normalized), and status code
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the service",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	// Request duration histogram: tracks latency distribution
	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	// Auth failures counter: tracks failed logins and rejected sessions
	authFailuresTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresTotalVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	// Issued token counter by action
	tokensIssuedTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "tokens_issued_total",
			Help:      "Total number of action tokens issued",
		},
		[]string{"action"},
	)
	if err := reg.Register(tokensIssuedTotalVec); err != nil {
		return fmt.Errorf("failed to register tokensIssuedTotal: %w", err)
	}

	// Confirmation counter by action and outcome (confirmed or rejection kind)
	confirmationsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "confirmations_total",
			Help:      "Total number of confirmation attempts by outcome",
		},
		[]string{"action", "outcome"},
	)
	if err := reg.Register(confirmationsTotalVec); err != nil {
		return fmt.Errorf("failed to register confirmationsTotal: %w", err)
	}

	// Live websocket subscriber gauge
	wsSubscribersGauge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "ws_subscribers",
			Help:      "Number of currently connected notification subscribers",
		},
	)
	if err := reg.Register(wsSubscribersGauge); err != nil {
		return fmt.Errorf("failed to register wsSubscribers: %w", err)
	}

	// Info gauge: static metric with constant label values for build info
	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lotpass",
			Subsystem: "gate",
			Name:      "info",
			Help:      "Service version and build information",
		},
		[]string{"version"},
	)
	infoGaugeInstance := infoGaugeVec.WithLabelValues("1.0.0")
	if err := reg.Register(infoGaugeVec); err != nil {
		return fmt.Errorf("failed to register infoGauge: %w", err)
	}
	infoGaugeInstance.Set(1)

	// Store metrics in atomics for lock-free access in record functions
	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresTotalVec)
	tokensIssuedTotal.Store(tokensIssuedTotalVec)
	confirmationsTotal.Store(confirmationsTotalVec)
	wsSubscribers.Store(&wsSubscribersGauge)

	return nil
}

// RecordRequest increments the requests counter for the given method, path, and status code.
// The path should be normalized (e.g., "/api/scan/:id" instead of "/api/scan/123").
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request.
// Duration should be in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAuthFailure increments the auth failures counter for the given reason.
// Common reasons: "invalid_credentials", "missing_session", "expired_session"
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordTokenIssued increments the issued-token counter for the given action.
func RecordTokenIssued(action string) {
	if counter := tokensIssuedTotal.Load(); counter != nil {
		counter.WithLabelValues(action).Inc()
	}
}

// RecordConfirmation increments the confirmation counter.
// The outcome is "confirmed" for success or the rejection kind otherwise;
// action is "unknown" when the token did not decode.
func RecordConfirmation(action, outcome string) {
	if counter := confirmationsTotal.Load(); counter != nil {
		counter.WithLabelValues(action, outcome).Inc()
	}
}

// SetSubscribers sets the live websocket subscriber gauge.
func SetSubscribers(n int) {
	if gauge := wsSubscribers.Load(); gauge != nil {
		(*gauge).Set(float64(n))
	}
}

// Handler returns an HTTP handler for Prometheus metrics in text format.
// This handler should be registered at /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// This is useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	// Use httptest to capture the handler output
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}
