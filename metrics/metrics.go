// Package metrics provides Prometheus instrumentation for repokeeper.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repokeeper"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeVeto  = "veto"
)

// Executor path labels.
const (
	PathSynchronous  = "synchronous"
	PathAsynchronous = "asynchronous"
	PathFallback     = "fallback"
)

// Metrics holds the Prometheus instruments. A nil *Metrics is a no-op.
type Metrics struct {
	eventsDelivered   *prometheus.CounterVec
	executorPaths     *prometheus.CounterVec
	indexUpdates      *prometheus.CounterVec
	reindexDuration   *prometheus.HistogramVec
	healthChecks      *prometheus.CounterVec
	unhealthyFailures *prometheus.GaugeVec
}

// New creates the instruments and registers them with reg.
// If reg is nil, it returns nil (no-op metrics).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events delivered to subscribers by topic, kind and outcome.",
		}, []string{"topic", "kind", "outcome"}),
		executorPaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executor_executions_total",
			Help:      "Bounded executor invocations by caller and execution path.",
		}, []string{"executor", "path"}),
		indexUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_updates_total",
			Help:      "Incremental search index updates by document type, operation and outcome.",
		}, []string{"type", "operation", "outcome"}),
		reindexDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_reindex_duration_seconds",
			Help:      "Duration of full reindex runs in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"type"}),
		healthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health checks run by depth and result.",
		}, []string{"depth", "healthy"}),
		unhealthyFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_check_failures",
			Help:      "Current number of recorded health check failures per repository.",
		}, []string{"repository"}),
	}

	collectors := []prometheus.Collector{
		m.eventsDelivered,
		m.executorPaths,
		m.indexUpdates,
		m.reindexDuration,
		m.healthChecks,
		m.unhealthyFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// EventDelivered records one delivery of an event to a subscriber.
func (m *Metrics) EventDelivered(topic, kind, outcome string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(topic, kind, outcome).Inc()
}

// ExecutorPath records which path a bounded executor invocation took.
func (m *Metrics) ExecutorPath(executor, path string) {
	if m == nil {
		return
	}
	m.executorPaths.WithLabelValues(executor, path).Inc()
}

// IndexUpdate records an incremental index update.
func (m *Metrics) IndexUpdate(docType, operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.indexUpdates.WithLabelValues(docType, operation, outcome).Inc()
}

// Reindexed records the duration of a full reindex.
func (m *Metrics) Reindexed(docType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.reindexDuration.WithLabelValues(docType).Observe(duration.Seconds())
}

// HealthChecked records a health check run and the repository's failure count.
func (m *Metrics) HealthChecked(repository, depth string, failures int) {
	if m == nil {
		return
	}
	healthy := "true"
	if failures > 0 {
		healthy = "false"
	}
	m.healthChecks.WithLabelValues(depth, healthy).Inc()
	m.unhealthyFailures.WithLabelValues(repository).Set(float64(failures))
}

// Forget drops per-repository series for a deleted repository.
func (m *Metrics) Forget(repository string) {
	if m == nil {
		return
	}
	m.unhealthyFailures.DeleteLabelValues(repository)
}
