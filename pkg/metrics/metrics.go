// Package metrics provides Prometheus metrics for the platoon widget core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus instruments for the engine.
type Manager struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer

	// Reconciliation
	eventsApplied *prometheus.CounterVec
	eventsSkipped prometheus.Counter
	snapshotMerge prometheus.Counter

	// Derived-metric cache
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheInvalidations prometheus.Counter

	// Debounce scheduler
	debounceScheduled *prometheus.CounterVec
	debounceFired     *prometheus.CounterVec

	// Sync channel
	pushes           *prometheus.CounterVec
	pulls            *prometheus.CounterVec
	lateAcksDropped  prometheus.Counter
	remoteErrors     *prometheus.CounterVec
	realtimeUp       prometheus.Gauge
	notifierFanout   prometheus.Counter
	battlesTracked   prometheus.Gauge
	peersKnown       prometheus.Gauge
	statePersistence prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithRegistry sets the Prometheus registerer to attach instruments to.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "platoonwidget",
		subsystem: "core",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.eventsApplied = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_applied_total",
		Help:      "Game-state events that mutated the stats model, by kind.",
	}, []string{"kind"})

	m.eventsSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_skipped_total",
		Help:      "Events dropped for missing fields or invalid session state.",
	})

	m.snapshotMerge = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_merges_total",
		Help:      "Full server snapshot replacements applied to the model.",
	})

	m.cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregate_cache_hits_total",
		Help:      "Derived-metric cache hits.",
	})

	m.cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregate_cache_misses_total",
		Help:      "Derived-metric cache misses (recomputations).",
	})

	m.cacheInvalidations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "aggregate_cache_invalidations_total",
		Help:      "Full cache clears following model mutations.",
	})

	m.debounceScheduled = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "debounce_scheduled_total",
		Help:      "Debounce timer arms and re-arms, by task.",
	}, []string{"task"})

	m.debounceFired = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "debounce_fired_total",
		Help:      "Debounced tasks that actually ran, by task.",
	}, []string{"task"})

	m.pushes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pushes_total",
		Help:      "Completed save attempts, by transport path.",
	}, []string{"path"})

	m.pulls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pulls_total",
		Help:      "Completed load attempts, by transport path.",
	}, []string{"path"})

	m.lateAcksDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "late_acks_discarded_total",
		Help:      "Real-time acknowledgments that lost the push race.",
	})

	m.remoteErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "remote_errors_total",
		Help:      "Remote store failures, by transport path.",
	}, []string{"path"})

	m.realtimeUp = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "realtime_connected",
		Help:      "Whether the real-time channel is currently connected.",
	})

	m.notifierFanout = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stats_updated_published_total",
		Help:      "statsUpdated notifications published to subscribers.",
	})

	m.battlesTracked = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "battles_tracked",
		Help:      "Battles currently held in the stats model.",
	})

	m.peersKnown = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "peers_known",
		Help:      "Entries in the player identity directory.",
	})

	m.statePersistence = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "local_state_saves_total",
		Help:      "Local warm-restart snapshot writes.",
	})
}

// Package-level helpers against the global manager.

func RecordEventApplied(kind string) {
	if globalManager != nil {
		globalManager.eventsApplied.WithLabelValues(kind).Inc()
	}
}

func RecordEventSkipped() {
	if globalManager != nil {
		globalManager.eventsSkipped.Inc()
	}
}

func RecordSnapshotMerge() {
	if globalManager != nil {
		globalManager.snapshotMerge.Inc()
	}
}

func RecordCacheHit() {
	if globalManager != nil {
		globalManager.cacheHits.Inc()
	}
}

func RecordCacheMiss() {
	if globalManager != nil {
		globalManager.cacheMisses.Inc()
	}
}

func RecordCacheInvalidation() {
	if globalManager != nil {
		globalManager.cacheInvalidations.Inc()
	}
}

func RecordDebounceSchedule(task string) {
	if globalManager != nil {
		globalManager.debounceScheduled.WithLabelValues(task).Inc()
	}
}

func RecordDebounceFire(task string) {
	if globalManager != nil {
		globalManager.debounceFired.WithLabelValues(task).Inc()
	}
}

func RecordPush(path string) {
	if globalManager != nil {
		globalManager.pushes.WithLabelValues(path).Inc()
	}
}

func RecordPull(path string) {
	if globalManager != nil {
		globalManager.pulls.WithLabelValues(path).Inc()
	}
}

func RecordLateAckDiscarded() {
	if globalManager != nil {
		globalManager.lateAcksDropped.Inc()
	}
}

func RecordRemoteError(path string) {
	if globalManager != nil {
		globalManager.remoteErrors.WithLabelValues(path).Inc()
	}
}

func UpdateRealtimeConnected(up bool) {
	if globalManager == nil {
		return
	}
	if up {
		globalManager.realtimeUp.Set(1)
	} else {
		globalManager.realtimeUp.Set(0)
	}
}

func RecordStatsUpdatedPublished() {
	if globalManager != nil {
		globalManager.notifierFanout.Inc()
	}
}

func UpdateBattlesTracked(count int) {
	if globalManager != nil {
		globalManager.battlesTracked.Set(float64(count))
	}
}

func UpdatePeersKnown(count int) {
	if globalManager != nil {
		globalManager.peersKnown.Set(float64(count))
	}
}

func RecordLocalStateSave() {
	if globalManager != nil {
		globalManager.statePersistence.Inc()
	}
}

// GetRegistry returns the custom registry for the metrics endpoint.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
