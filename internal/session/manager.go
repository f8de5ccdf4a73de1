// Package session runs guided workout sessions: it sequences sets and
// exercises, inserts rest periods, persists progress after every change and
// turns a finished session into a history record.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mansoorceksport/liftlog/internal/clock"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config holds session timing policy.
type Config struct {
	RestGrace        time.Duration // delay before an expired rest is dismissed
	TimeUpGrace      time.Duration // delay before an expired timed set is auto-completed
	AutoAdvanceTimed bool
	CallbackTimeout  time.Duration // context deadline for timer-driven writes
}

func DefaultConfig() Config {
	return Config{
		RestGrace:        time.Second,
		TimeUpGrace:      1500 * time.Millisecond,
		AutoAdvanceTimed: true,
		CallbackTimeout:  5 * time.Second,
	}
}

// Deps are the collaborators of a session.
type Deps struct {
	Catalog        domain.CatalogRepository
	Progress       domain.ProgressRepository
	History        domain.HistoryRepository
	ActivePrograms domain.ActiveProgramRepository
	Archive        domain.HistoryArchive // optional
	Navigator      domain.Navigator
	Players        func(userID string) domain.CuePlayer
	Clock          clock.Clock
	Metrics        *metrics.Manager // optional
	IDs            func() string
	Logger         *logrus.Entry
}

// Manager owns the in-memory session of every user.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Orchestrator

	deps Deps
	cfg  Config
}

func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.IDs == nil {
		deps.IDs = generateULID
	}
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultConfig().CallbackTimeout
	}
	return &Manager{
		sessions: make(map[string]*Orchestrator),
		deps:     deps,
		cfg:      cfg,
	}
}

// generateULID creates a new ULID string
func generateULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Start opens a session for the workout, resuming stored progress when it
// belongs to the same program and workout. A missing definition fails closed
// and sends the user back to program selection.
func (m *Manager) Start(ctx context.Context, userID, programID, workoutID string) (*State, error) {
	if o := m.get(userID); o != nil && o.matches(programID, workoutID) {
		return o.State(), nil
	}

	log := m.deps.Logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"program_id": programID,
		"workout_id": workoutID,
	})

	// 1. Load the definition and the stored progress side by side
	var (
		program  *domain.Program
		progress *domain.WorkoutProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := m.deps.Catalog.GetProgram(gctx, programID)
		if err != nil {
			return err
		}
		program = p
		return nil
	})
	g.Go(func() error {
		p, err := m.deps.Progress.Load(gctx, userID)
		if err != nil {
			// unreadable progress counts as no progress
			log.WithError(err).Warn("failed to load stored progress, starting fresh")
			if m.deps.Metrics != nil {
				m.deps.Metrics.CounterProgressErrors.WithLabelValues("load").Inc()
			}
			return nil
		}
		progress = p
		return nil
	})
	if err := g.Wait(); err != nil {
		if isMissingDefinition(err) {
			return nil, m.definitionNotFound(ctx, log, userID, err)
		}
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	workout := program.FindWorkout(workoutID)
	if workout == nil || len(workout.Exercises) == 0 {
		return nil, m.definitionNotFound(ctx, log, userID, domain.ErrWorkoutNotFound)
	}

	ids := make([]string, 0, len(workout.Exercises))
	for _, we := range workout.Exercises {
		ids = append(ids, we.ExerciseID)
	}
	exercises, err := m.deps.Catalog.GetExercisesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load exercises: %w", err)
	}

	// 2. Stop the session the user had in memory before touching the store
	if previous := m.get(userID); previous != nil {
		previous.Close()
	}

	// 3. Resume or start fresh
	resumed := progress != nil && progress.Matches(programID, workoutID) && progress.FitsWorkout(workout)
	if !resumed {
		if progress != nil {
			log.WithFields(logrus.Fields{
				"stale_program_id": progress.ProgramID,
				"stale_workout_id": progress.WorkoutID,
			}).Info("discarding stale progress")
		}
		progress = domain.NewWorkoutProgress(programID, workout, m.deps.Clock.Now().UnixMilli())
		if err := m.deps.Progress.Save(ctx, userID, progress); err != nil {
			return nil, fmt.Errorf("failed to save progress: %w", err)
		}
	}

	o := newOrchestrator(userID, program, workout, exercises, progress, m.deps, m.cfg)
	o.resumed = resumed

	count := m.install(userID, o)

	if m.deps.Metrics != nil {
		m.deps.Metrics.CounterSessionsStarted.WithLabelValues(strconv.FormatBool(resumed)).Inc()
		m.deps.Metrics.GaugeActiveSessions.Set(float64(count))
	}
	log.WithField("resumed", resumed).Info("session started")
	return o.State(), nil
}

func (m *Manager) CompleteSet(ctx context.Context, userID string, input domain.SetInput) (*State, error) {
	return m.with(userID, func(o *Orchestrator) error {
		return o.CompleteSet(ctx, input)
	})
}

func (m *Manager) SkipRest(userID string) (*State, error) {
	return m.with(userID, func(o *Orchestrator) error {
		return o.SkipRest()
	})
}

func (m *Manager) StartExerciseTimer(userID string) (*State, error) {
	return m.with(userID, func(o *Orchestrator) error {
		return o.StartExerciseTimer()
	})
}

func (m *Manager) StopExerciseTimer(ctx context.Context, userID string) (*State, error) {
	return m.with(userID, func(o *Orchestrator) error {
		return o.StopExerciseTimer(ctx)
	})
}

func (m *Manager) AcknowledgeTimeUp(ctx context.Context, userID string) (*State, error) {
	return m.with(userID, func(o *Orchestrator) error {
		return o.AcknowledgeTimeUp(ctx)
	})
}

// Abandon clears the user's progress and forgets the session. Without an
// in-memory session the stored progress is still cleared.
func (m *Manager) Abandon(ctx context.Context, userID string) error {
	m.mu.Lock()
	o := m.sessions[userID]
	delete(m.sessions, userID)
	count := len(m.sessions)
	m.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.GaugeActiveSessions.Set(float64(count))
	}

	if o == nil {
		if err := m.deps.Progress.Clear(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear progress: %w", err)
		}
		if m.deps.Navigator != nil {
			m.deps.Navigator.Navigate(ctx, userID, domain.DestinationProgramList)
		}
		return nil
	}

	err := o.Abandon(ctx)
	o.Close()
	return err
}

// State returns the user's session snapshot.
func (m *Manager) State(userID string) (*State, error) {
	o := m.get(userID)
	if o == nil {
		return nil, domain.ErrNoActiveSession
	}
	return o.State(), nil
}

// Close stops the timers of every session. Stored progress is kept so the
// sessions can be resumed.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Orchestrator)
	m.mu.Unlock()

	for _, o := range sessions {
		o.Close()
	}
}

func (m *Manager) with(userID string, fn func(o *Orchestrator) error) (*State, error) {
	o := m.get(userID)
	if o == nil {
		return nil, domain.ErrNoActiveSession
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	return o.State(), nil
}

// install makes o the user's session. A session installed by a concurrent
// Start since the check above is displaced and closed.
func (m *Manager) install(userID string, o *Orchestrator) int {
	m.mu.Lock()
	displaced := m.sessions[userID]
	m.sessions[userID] = o
	count := len(m.sessions)
	m.mu.Unlock()

	if displaced != nil && displaced != o {
		displaced.Close()
	}
	return count
}

func (m *Manager) get(userID string) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

func (m *Manager) definitionNotFound(ctx context.Context, log *logrus.Entry, userID string, cause error) error {
	log.WithError(cause).Warn("workout definition not found")
	if m.deps.Navigator != nil {
		m.deps.Navigator.Navigate(ctx, userID, domain.DestinationProgramSelection)
	}
	return fmt.Errorf("%w: %v", domain.ErrDefinitionNotFound, cause)
}

func isMissingDefinition(err error) bool {
	return errors.Is(err, domain.ErrProgramNotFound) ||
		errors.Is(err, domain.ErrWorkoutNotFound) ||
		errors.Is(err, domain.ErrInvalidID)
}
