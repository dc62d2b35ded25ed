// Package metrics exposes the engine's Prometheus collectors. Collectors are
// registered on the default registry via promauto and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionDuration tracks the latency of discount resolution requests
	// by operation (validate, applicable, calculate, apply).
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promo_resolution_duration_seconds",
			Help:    "Duration of discount resolution requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"operation", "status"},
	)

	// ValidationFailures counts rejected discounts by failure kind.
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_validation_failures_total",
			Help: "Discount validations rejected, by failure kind",
		},
		[]string{"kind"},
	)

	// Reservations counts usage reservations by outcome.
	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_usage_reservations_total",
			Help: "Usage reservations, by outcome (reserved, replayed, rejected)",
		},
		[]string{"outcome"},
	)

	// Assignments counts variant assignments served, by test.
	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_abtest_assignments_total",
			Help: "Variant assignments served, by test",
		},
		[]string{"test_id"},
	)
)

// ObserveResolution records the duration of one resolution request.
func ObserveResolution(operation, status string, seconds float64) {
	ResolutionDuration.WithLabelValues(operation, status).Observe(seconds)
}

// CountFailure records one rejected validation.
func CountFailure(kind string) {
	ValidationFailures.WithLabelValues(kind).Inc()
}
