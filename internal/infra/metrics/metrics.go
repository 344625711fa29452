// Package metrics provides Prometheus metrics for Routine Minder.
// Everything registers with the default registry via promauto and is
// served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "minder"

// ─── Completions ────────────────────────────────────────────────────────────

// CompletionsToggled counts completion writes by resulting state.
var CompletionsToggled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "completions_toggled_total",
	Help:      "Completion slot writes by resulting state (done/undone).",
}, []string{"state"})

// RoutinesActive tracks the number of active routines.
var RoutinesActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "routines_active",
	Help:      "Number of active routines.",
})

// ─── Stats Engine ───────────────────────────────────────────────────────────

// StatsComputations counts engine runs by view (dashboard, routines, achievements, sync).
var StatsComputations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "stats_computations_total",
	Help:      "Stats engine runs by view.",
}, []string{"view"})

// StatsComputeSeconds tracks engine run duration.
var StatsComputeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "stats_compute_seconds",
	Help:      "Stats engine run duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
})

// AchievementsUnlocked counts newly persisted achievements by type.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Achievements unlocked by type.",
}, []string{"type"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "API requests by route pattern and status code.",
}, []string{"route", "code"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// ─── Jobs ───────────────────────────────────────────────────────────────────

// JobRuns counts scheduled job runs by job name and result (ok/error).
var JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "job_runs_total",
	Help:      "Scheduled job runs by job and result.",
}, []string{"job", "result"})
