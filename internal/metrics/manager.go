package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterSessionsStarted   *prometheus.CounterVec
	CounterSetsCompleted     *prometheus.CounterVec
	CounterWorkoutsFinalized prometheus.Counter
	CounterSessionsAbandoned prometheus.Counter
	CounterDuplicateFinalize prometheus.Counter
	CounterProgressErrors    *prometheus.CounterVec

	// gauges
	GaugeActiveSessions prometheus.Gauge

	// histograms
	HistWorkoutDuration prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("liftlog", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("liftlog", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterSessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_started",
			Help:      "The total number of started workout sessions",
		}, []string{"resumed"}),
		CounterSetsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sets_completed",
			Help:      "The total number of completed sets",
		}, []string{"kind"}),
		CounterWorkoutsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workouts_finalized",
			Help:      "The total number of workouts written to history",
		}),
		CounterSessionsAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_abandoned",
			Help:      "The total number of sessions left without history",
		}),
		CounterDuplicateFinalize: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicate_finalize",
			Help:      "Finalize attempts rejected because the session was already finalized",
		}),
		CounterProgressErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "progress_store_errors",
			Help:      "Progress store failures by operation",
		}, []string{"op"}),
		GaugeActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),
		HistWorkoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workout_duration_minutes",
			Help:      "Duration of finalized workouts",
			Buckets:   []float64{10, 20, 30, 45, 60, 75, 90, 120, 180},
		}),
	}
}
