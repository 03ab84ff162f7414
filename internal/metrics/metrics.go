// Package metrics exposes Prometheus metrics for webhook deliveries and
// parent state propagation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/liamcoop/propagation/internal/logger"
)

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Metrics holds the service collectors.
//
// Metrics:
//   - propagation_outcomes_total{outcome} - deliveries by evaluation outcome
//   - propagation_duration_seconds{outcome} - time spent processing a delivery
//   - propagation_invalid_events_total - deliveries rejected before evaluation
//   - propagation_rate_limited_total - deliveries refused by the rate limiter
//   - propagation_rule_documents_writes_total{operation} - admin API writes
//   - propagation_log_errors_total / propagation_log_warnings_total - logger counters
type Metrics struct {
	OutcomesTotal      *prometheus.CounterVec
	Duration           *prometheus.HistogramVec
	InvalidEventsTotal prometheus.Counter
	RateLimitedTotal   prometheus.Counter
	RuleDocumentWrites *prometheus.CounterVec
}

// Default returns the metrics registered on the default Prometheus registry.
// Registration happens once per process.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propagation_outcomes_total",
				Help: "Total number of processed deliveries by outcome",
			},
			[]string{"outcome"},
		),

		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "propagation_duration_seconds",
				Help:    "Duration of delivery processing in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"outcome"},
		),

		InvalidEventsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "propagation_invalid_events_total",
				Help: "Total number of deliveries rejected as invalid",
			},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "propagation_rate_limited_total",
				Help: "Total number of deliveries refused by the rate limiter",
			},
		),

		RuleDocumentWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propagation_rule_documents_writes_total",
				Help: "Total number of rule document writes through the admin API",
			},
			[]string{"operation"}, // "put" or "delete"
		),
	}

	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "propagation_log_errors_total",
			Help: "Total number of error log calls, including sampled-out records",
		},
		func() float64 { return float64(logger.TotalErrors.Load()) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "propagation_log_warnings_total",
			Help: "Total number of warning log calls, including sampled-out records",
		},
		func() float64 { return float64(logger.TotalWarnings.Load()) },
	)

	return m
}

// ObserveOutcome records a processed delivery
func (m *Metrics) ObserveOutcome(outcome string, elapsed time.Duration) {
	m.OutcomesTotal.WithLabelValues(outcome).Inc()
	m.Duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordInvalidEvent records a rejected delivery
func (m *Metrics) RecordInvalidEvent() {
	m.InvalidEventsTotal.Inc()
}

// RecordRateLimited records a delivery refused by the rate limiter
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}

// RecordRuleDocumentWrite records an admin write
func (m *Metrics) RecordRuleDocumentWrite(operation string) {
	m.RuleDocumentWrites.WithLabelValues(operation).Inc()
}
