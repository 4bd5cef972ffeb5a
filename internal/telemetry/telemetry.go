// Package telemetry exposes the ambient Prometheus metrics described in
// SPEC_FULL.md's domain stack: a run-duration histogram, orders
// submitted/rejected counters, and a circuit-breaker-trip counter.
// Modeled on the teacher's internal/monitoring.MetricsCollector, scoped
// down to what this engine's run() loop actually emits. Metrics are
// always ambient observability and never gate correctness.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the engine's Prometheus instruments.
type Collector struct {
	runDuration      *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
	ordersSubmitted  *prometheus.CounterVec
	ordersRejected   *prometheus.CounterVec
	breakerTrips     *prometheus.CounterVec
}

// NewCollector registers the engine's metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry across package-level test runs.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradengine_run_duration_seconds",
				Help:    "Wall-clock duration of one run() invocation.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
			},
			[]string{"outcome"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradengine_runs_total",
				Help: "Total number of run() invocations by outcome.",
			},
			[]string{"outcome"},
		),
		ordersSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradengine_orders_submitted_total",
				Help: "Total number of orders submitted to the broker.",
			},
			[]string{"symbol", "side"},
		),
		ordersRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradengine_orders_rejected_total",
				Help: "Total number of orders rejected before or by the broker.",
			},
			[]string{"symbol", "reason"},
		),
		breakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradengine_circuit_breaker_trips_total",
				Help: "Total number of circuit breaker state transitions to open.",
			},
			[]string{"breaker"},
		),
	}
}

// ObserveRun records one run's duration and outcome.
func (c *Collector) ObserveRun(d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
	c.runsTotal.WithLabelValues(outcome).Inc()
}

// OrderSubmitted records a successfully submitted order.
func (c *Collector) OrderSubmitted(symbol, side string) {
	c.ordersSubmitted.WithLabelValues(symbol, side).Inc()
}

// OrderRejected records an order that never made it to a fill.
func (c *Collector) OrderRejected(symbol, reason string) {
	c.ordersRejected.WithLabelValues(symbol, reason).Inc()
}

// BreakerTripped records a circuit breaker opening.
func (c *Collector) BreakerTripped(name string) {
	c.breakerTrips.WithLabelValues(name).Inc()
}
