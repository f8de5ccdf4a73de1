package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mansoorceksport/liftlog/internal/clock"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/metrics"
	"github.com/sirupsen/logrus"
)

type memCatalog struct {
	programs  map[string]*domain.Program
	exercises map[string]*domain.Exercise
}

func (c *memCatalog) GetProgram(_ context.Context, id string) (*domain.Program, error) {
	p, ok := c.programs[id]
	if !ok {
		return nil, domain.ErrProgramNotFound
	}
	return p, nil
}

func (c *memCatalog) GetExercise(_ context.Context, id string) (*domain.Exercise, error) {
	ex, ok := c.exercises[id]
	if !ok {
		return nil, domain.ErrExerciseNotFound
	}
	return ex, nil
}

func (c *memCatalog) GetExercisesByIDs(_ context.Context, ids []string) (map[string]*domain.Exercise, error) {
	out := make(map[string]*domain.Exercise)
	for _, id := range ids {
		if ex, ok := c.exercises[id]; ok {
			out[id] = ex
		}
	}
	return out, nil
}

// memProgress stores serialized records so tests exercise the same
// round trip a real store does.
type memProgress struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	loadErr error
}

func newMemProgress() *memProgress {
	return &memProgress{data: make(map[string][]byte)}
}

func (s *memProgress) Load(_ context.Context, userID string) (*domain.WorkoutProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	raw, ok := s.data[userID]
	if !ok {
		return nil, nil
	}
	var p domain.WorkoutProgress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProgressCorrupt, err)
	}
	return &p, nil
}

func (s *memProgress) Save(_ context.Context, userID string, p *domain.WorkoutProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.data[userID] = raw
	s.saves++
	return nil
}

func (s *memProgress) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

type memHistory struct {
	mu        sync.Mutex
	records   []*domain.HistoryRecord
	appendErr error
	// lostAck makes the next append store the record and still fail, like
	// a write whose reply timed out.
	lostAck error
}

func (h *memHistory) Append(_ context.Context, r *domain.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	for _, existing := range h.records {
		if existing.ID == r.ID {
			return nil
		}
	}
	h.records = append(h.records, r)
	if err := h.lostAck; err != nil {
		h.lostAck = nil
		return err
	}
	return nil
}

func (h *memHistory) ListByUser(_ context.Context, userID string, _ int64) ([]*domain.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*domain.HistoryRecord
	for _, r := range h.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *memHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

type memActivePrograms struct {
	mu   sync.Mutex
	data map[string]*domain.ActiveProgram
}

func (a *memActivePrograms) GetByUser(_ context.Context, userID string) (*domain.ActiveProgram, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.data[userID]
	if !ok {
		return nil, domain.ErrActiveProgramNotFound
	}
	c := *p
	c.CompletedWorkouts = append([]domain.CompletedWorkout(nil), p.CompletedWorkouts...)
	return &c, nil
}

func (a *memActivePrograms) Upsert(_ context.Context, p *domain.ActiveProgram) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[p.UserID] = p
	return nil
}

type recordingNavigator struct {
	mu    sync.Mutex
	calls []domain.Destination
}

func (n *recordingNavigator) Navigate(_ context.Context, _ string, to domain.Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, to)
}

func (n *recordingNavigator) last() domain.Destination {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		return ""
	}
	return n.calls[len(n.calls)-1]
}

type countingCue struct {
	mu             sync.Mutex
	warnings, ends int
}

func (c *countingCue) Play(final bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if final {
		c.ends++
		return
	}
	c.warnings++
}

type harness struct {
	manager   *Manager
	clock     *clock.Fake
	catalog   *memCatalog
	progress  *memProgress
	history   *memHistory
	active    *memActivePrograms
	navigator *recordingNavigator
	cue       *countingCue
	deps      Deps
}

const (
	testUser    = "user-1"
	testProgram = "prog-1"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newHarness builds a program with a strength workout (two rep exercises of
// two sets) and a timed workout (one plank exercise).
func newHarness(t *testing.T) *harness {
	t.Helper()

	catalog := &memCatalog{
		programs: map[string]*domain.Program{
			testProgram: {
				ID:              testProgram,
				Name:            "Starter Strength",
				WorkoutsPerWeek: 3,
				Workouts: []*domain.Workout{
					{
						ID:   "w-strength",
						Name: "Day A",
						Exercises: []*domain.WorkoutExercise{
							{ExerciseID: "squat", Sets: 2, Reps: 5, Weight: 60, RestTime: 45},
							{ExerciseID: "bench", Sets: 2, Reps: 5, Weight: 40},
						},
					},
					{
						ID:   "w-core",
						Name: "Core",
						Exercises: []*domain.WorkoutExercise{
							{ExerciseID: "plank", Sets: 2, Duration: 30, RestTime: 20},
						},
					},
				},
			},
		},
		exercises: map[string]*domain.Exercise{
			"squat": {ID: "squat", Name: "Barbell Squat"},
			"bench": {ID: "bench", Name: "Bench Press", DefaultRestTime: 75},
			"plank": {ID: "plank", Name: "Plank"},
		},
	}

	h := &harness{
		clock:     clock.NewFake(time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC)),
		catalog:   catalog,
		progress:  newMemProgress(),
		history:   &memHistory{},
		active:    &memActivePrograms{data: make(map[string]*domain.ActiveProgram)},
		navigator: &recordingNavigator{},
		cue:       &countingCue{},
	}

	seq := 0
	h.deps = Deps{
		Catalog:        h.catalog,
		Progress:       h.progress,
		History:        h.history,
		ActivePrograms: h.active,
		Navigator:      h.navigator,
		Players:        func(string) domain.CuePlayer { return h.cue },
		Clock:          h.clock,
		Metrics:        metrics.NewTestManager(),
		IDs: func() string {
			seq++
			return fmt.Sprintf("hist-%d", seq)
		},
		Logger: testLogger(),
	}
	h.manager = NewManager(h.deps, DefaultConfig())
	t.Cleanup(h.manager.Close)
	return h
}

func (h *harness) stored(t *testing.T) *domain.WorkoutProgress {
	t.Helper()
	p, err := h.progress.Load(context.Background(), testUser)
	if err != nil {
		t.Fatalf("load progress: %v", err)
	}
	return p
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
