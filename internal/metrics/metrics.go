// Package metrics provides Prometheus instrumentation for the lock
// manager, session manager, and cache, using path/lock-kind labels
// throughout.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Label values for the "kind" dimension of lock metrics.
const (
	KindWrite = "write"
	KindRead  = "read"
)

// Label values for the "status" dimension of acquire attempts.
const (
	StatusGranted = "granted"
	StatusTimeout = "timeout"
)

// Label values for release reasons.
const (
	ReasonExplicit      = "explicit"
	ReasonStaleCleanup  = "stale_cleanup"
	ReasonSessionEnded  = "session_ended"
)

// Metrics holds the Prometheus collectors for the coordination core. A nil
// *Metrics is always safe to call methods on (every method is a no-op),
// so instrumentation stays optional without scattering nil checks at
// every call site.
type Metrics struct {
	lockAcquireTotal   *prometheus.CounterVec
	lockReleaseTotal   *prometheus.CounterVec
	lockActiveGauge    *prometheus.GaugeVec
	lockBlockedGauge   *prometheus.GaugeVec
	lockWaitDuration   *prometheus.HistogramVec
	lockHoldDuration   *prometheus.HistogramVec
	staleLockCleanups  *prometheus.CounterVec
	sessionsActive     prometheus.Gauge
	sessionEndsTotal   *prometheus.CounterVec
	cacheHitTotal      prometheus.Counter
	cacheMissTotal     prometheus.Counter
	cacheInvalidations prometheus.Counter
}

// New creates and registers coordination-core metrics. If registry is nil
// the collectors are still created (so callers always have a non-nil
// Metrics to pass around) but never registered.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		lockAcquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "acquire_total",
			Help:      "Total number of lock acquire attempts, by kind and status.",
		}, []string{"kind", "status"}),

		lockReleaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "release_total",
			Help:      "Total number of lock releases, by kind and reason.",
		}, []string{"kind", "reason"}),

		lockActiveGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "active",
			Help:      "Number of locks currently held, by kind.",
		}, []string{"kind"}),

		lockBlockedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "blocked",
			Help:      "Number of goroutines currently blocked waiting for a lock, by kind.",
		}, []string{"kind"}),

		lockWaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting to acquire a lock.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"kind"}),

		lockHoldDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "hold_duration_seconds",
			Help:      "Time a lock was held before release.",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 30, 60, 300},
		}, []string{"kind"}),

		staleLockCleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "locks",
			Name:      "stale_cleanup_total",
			Help:      "Number of locks cleaned up after their holder session was found dead.",
		}, []string{"kind"}),

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coordcore",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of currently alive sessions known to this process.",
		}),

		sessionEndsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "sessions",
			Name:      "ends_total",
			Help:      "Total number of sessions that ended, by cause.",
		}, []string{"cause"}),

		cacheHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "cache",
			Name:      "hit_total",
			Help:      "Number of cache lookups served from the local snapshot.",
		}),

		cacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "cache",
			Name:      "miss_total",
			Help:      "Number of cache lookups that required a storage read.",
		}),

		cacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coordcore",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Number of cache entries invalidated, locally or by a peer notification.",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.lockAcquireTotal,
			m.lockReleaseTotal,
			m.lockActiveGauge,
			m.lockBlockedGauge,
			m.lockWaitDuration,
			m.lockHoldDuration,
			m.staleLockCleanups,
			m.sessionsActive,
			m.sessionEndsTotal,
			m.cacheHitTotal,
			m.cacheMissTotal,
			m.cacheInvalidations,
		)
	}

	return m
}

// ObserveLockAcquire records a completed acquire attempt.
func (m *Metrics) ObserveLockAcquire(kind, status string) {
	if m == nil {
		return
	}
	m.lockAcquireTotal.WithLabelValues(kind, status).Inc()
}

// ObserveLockRelease records a lock release.
func (m *Metrics) ObserveLockRelease(kind, reason string) {
	if m == nil {
		return
	}
	m.lockReleaseTotal.WithLabelValues(kind, reason).Inc()
}

// SetActiveLocks sets the current held-lock gauge for kind.
func (m *Metrics) SetActiveLocks(kind string, count float64) {
	if m == nil {
		return
	}
	m.lockActiveGauge.WithLabelValues(kind).Set(count)
}

// SetBlockedLocks sets the current blocked-waiter gauge for kind.
func (m *Metrics) SetBlockedLocks(kind string, count float64) {
	if m == nil {
		return
	}
	m.lockBlockedGauge.WithLabelValues(kind).Set(count)
}

// ObserveWaitDuration records how long an acquire attempt blocked.
func (m *Metrics) ObserveWaitDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveHoldDuration records how long a lock was held before release.
func (m *Metrics) ObserveHoldDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockHoldDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveStaleLockCleanup records a dead-holder cleanup.
func (m *Metrics) ObserveStaleLockCleanup(kind string) {
	if m == nil {
		return
	}
	m.staleLockCleanups.WithLabelValues(kind).Inc()
}

// SetActiveSessions sets the alive-session gauge.
func (m *Metrics) SetActiveSessions(count float64) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(count)
}

// ObserveSessionEnd records a session end, by cause ("explicit" or
// "lease_expired").
func (m *Metrics) ObserveSessionEnd(cause string) {
	if m == nil {
		return
	}
	m.sessionEndsTotal.WithLabelValues(cause).Inc()
}

// ObserveCacheHit records a cache hit.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitTotal.Inc()
}

// ObserveCacheMiss records a cache miss.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissTotal.Inc()
}

// ObserveCacheInvalidation records a cache invalidation.
func (m *Metrics) ObserveCacheInvalidation() {
	if m == nil {
		return
	}
	m.cacheInvalidations.Inc()
}
