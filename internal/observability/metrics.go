// Package observability provides Prometheus metrics for the trigger engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Engine loop metrics
	TicksTotal    prometheus.Counter
	TickDuration  prometheus.Histogram
	TargetsFired  prometheus.Counter
	ActiveTargets prometheus.Gauge
	Executions    *prometheus.CounterVec

	// Market feed metrics
	FeedErrors        *prometheus.CounterVec
	FeedRefreshErrors prometheus.Counter
	TrackedAssets     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trigger_bot"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Total number of completed engine ticks",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent processing one tick",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		TargetsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "targets_fired_total",
			Help:      "Total number of targets whose conditions were met",
		}),
		ActiveTargets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_targets",
			Help:      "Number of active targets evaluated in the last tick",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of finalized executions by status",
		}, []string{"status"}),

		FeedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "snapshot_errors_total",
			Help:      "Snapshot lookups skipped during a tick by reason",
		}, []string{"reason"}),
		FeedRefreshErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "refresh_errors_total",
			Help:      "Total number of failed upstream snapshot fetches",
		}),
		TrackedAssets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "tracked_assets",
			Help:      "Number of assets the feed refreshes",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records a completed tick.
func (m *Metrics) ObserveTick(d time.Duration, active int) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(d.Seconds())
	m.ActiveTargets.Set(float64(active))
}

// RecordFired counts a target firing.
func (m *Metrics) RecordFired() {
	if m == nil {
		return
	}
	m.TargetsFired.Inc()
}

// RecordExecution counts a finalized execution.
func (m *Metrics) RecordExecution(status string) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(status).Inc()
}

// RecordFeedError counts a skipped snapshot lookup.
func (m *Metrics) RecordFeedError(reason string) {
	if m == nil {
		return
	}
	m.FeedErrors.WithLabelValues(reason).Inc()
}

// RecordRefreshError counts a failed upstream fetch.
func (m *Metrics) RecordRefreshError() {
	if m == nil {
		return
	}
	m.FeedRefreshErrors.Inc()
}

// SetTrackedAssets updates the tracked asset gauge.
func (m *Metrics) SetTrackedAssets(n int) {
	if m == nil {
		return
	}
	m.TrackedAssets.Set(float64(n))
}
