// Package metrics collects Prometheus metrics for the Manager's tick loop
// and the rate-limit Coordinator's shared backoff state. Grounded on
// kadirpekel-hector's pkg/observability/metrics.go: an owned
// *prometheus.Registry, nil-receiver-safe Record*/Set* methods so a
// component can hold a possibly-nil *Metrics without branching on every
// call site, and a Handler() that serves that same registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/store"
)

// Metrics holds every collector Loopr exposes on /metrics. Each process
// owning a Manager constructs exactly one Metrics and shares it between
// the tick loop and the daemon's HTTP sidecar.
type Metrics struct {
	registry *prometheus.Registry

	unitsRunning   *prometheus.GaugeVec
	unitsSpawned   *prometheus.CounterVec
	unitsReaped    *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	admitTotal     prometheus.Counter

	rateLimitBackoffActive    prometheus.Gauge
	rateLimitBackoffRemaining prometheus.Gauge
	rateLimitConsecutiveHits  prometheus.Gauge
	rateLimitAdmissionAllowed prometheus.Gauge
}

// New builds a Metrics instance with its own registry, so multiple
// processes (or test harnesses) in the same binary never collide over
// prometheus.DefaultRegisterer's global collector namespace.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.unitsRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "loopr",
		Subsystem: "manager",
		Name:      "units_running",
		Help:      "Number of units currently executing their iteration loop, by kind.",
	}, []string{"kind"})

	m.unitsSpawned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loopr",
		Subsystem: "manager",
		Name:      "units_spawned_total",
		Help:      "Total child records created by the Spawn Decider, by parent kind.",
	}, []string{"parent_kind"})

	m.unitsReaped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loopr",
		Subsystem: "manager",
		Name:      "units_reaped_total",
		Help:      "Total executor outcomes reaped, by kind and terminal status.",
	}, []string{"kind", "status"})

	m.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "loopr",
		Subsystem: "manager",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one Manager tick pass (reap + spawn + admit).",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
	})

	m.admitTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loopr",
		Subsystem: "manager",
		Name:      "units_admitted_total",
		Help:      "Total records admitted into an iteration loop by the Scheduler.",
	})

	m.rateLimitBackoffActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loopr",
		Subsystem: "ratelimit",
		Name:      "backoff_active",
		Help:      "1 if the shared 429 backoff window is currently active, else 0.",
	})

	m.rateLimitBackoffRemaining = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loopr",
		Subsystem: "ratelimit",
		Name:      "backoff_remaining_seconds",
		Help:      "Seconds left in the active backoff window, 0 if none.",
	})

	m.rateLimitConsecutiveHits = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loopr",
		Subsystem: "ratelimit",
		Name:      "consecutive_hits",
		Help:      "Current consecutive 429 count tracked by the Coordinator.",
	})

	m.rateLimitAdmissionAllowed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loopr",
		Subsystem: "ratelimit",
		Name:      "admission_allowed",
		Help:      "1 if the Coordinator currently allows new admissions, else 0 (backoff or circuit open).",
	})

	m.registry.MustRegister(
		m.unitsRunning,
		m.unitsSpawned,
		m.unitsReaped,
		m.tickDuration,
		m.admitTotal,
		m.rateLimitBackoffActive,
		m.rateLimitBackoffRemaining,
		m.rateLimitConsecutiveHits,
		m.rateLimitAdmissionAllowed,
	)

	return m
}

// SetUnitsRunning records the current in-flight count for kind.
func (m *Metrics) SetUnitsRunning(kind store.Kind, n int) {
	if m == nil {
		return
	}
	m.unitsRunning.WithLabelValues(string(kind)).Set(float64(n))
}

// ObserveTick records one tick pass's wall-clock duration.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// AddAdmitted records n newly-admitted records.
func (m *Metrics) AddAdmitted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.admitTotal.Add(float64(n))
}

// AddSpawned records n children created for a parent of the given kind.
func (m *Metrics) AddSpawned(parentKind store.Kind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.unitsSpawned.WithLabelValues(string(parentKind)).Add(float64(n))
}

// AddReaped records one executor outcome reaching a terminal status.
func (m *Metrics) AddReaped(kind store.Kind, status store.Status) {
	if m == nil {
		return
	}
	m.unitsReaped.WithLabelValues(string(kind), string(status)).Inc()
}

// SampleRateLimit pulls the Coordinator's current backoff state into the
// rate-limit gauges. The Coordinator has no change notifications, so this
// is called once per tick rather than driven by Coordinator callbacks.
func (m *Metrics) SampleRateLimit(c *ratelimit.Coordinator) {
	if m == nil || c == nil {
		return
	}
	if remaining, active := c.RemainingBackoff(); active {
		m.rateLimitBackoffActive.Set(1)
		m.rateLimitBackoffRemaining.Set(remaining.Seconds())
	} else {
		m.rateLimitBackoffActive.Set(0)
		m.rateLimitBackoffRemaining.Set(0)
	}
	m.rateLimitConsecutiveHits.Set(float64(c.ConsecutiveHits()))
	allowed := 0.0
	if c.Allow() {
		allowed = 1
	}
	m.rateLimitAdmissionAllowed.Set(allowed)
}

// Handler returns the HTTP handler serving this Metrics' registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for callers that want to
// register additional collectors (e.g. Go runtime stats) alongside it.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
