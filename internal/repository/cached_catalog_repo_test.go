package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu        sync.Mutex
	calls     map[string]int
	programs  map[string]*domain.Program
	exercises map[string]*domain.Exercise
	lastBatch []string
}

func newCountingSource() *countingSource {
	return &countingSource{
		calls: make(map[string]int),
		programs: map[string]*domain.Program{
			"p1": {ID: "p1", Name: "Full Body", WorkoutsPerWeek: 3, Workouts: []*domain.Workout{
				{ID: "w1", Name: "Day 1", Exercises: []*domain.WorkoutExercise{{ExerciseID: "e1", Sets: 3, Reps: 10}}},
			}},
		},
		exercises: map[string]*domain.Exercise{
			"e1": {ID: "e1", Name: "Squat"},
			"e2": {ID: "e2", Name: "Row"},
		},
	}
}

func (s *countingSource) hit(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *countingSource) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *countingSource) GetProgram(_ context.Context, id string) (*domain.Program, error) {
	s.hit("program")
	p, ok := s.programs[id]
	if !ok {
		return nil, domain.ErrProgramNotFound
	}
	return p, nil
}

func (s *countingSource) GetExercise(_ context.Context, id string) (*domain.Exercise, error) {
	s.hit("exercise")
	ex, ok := s.exercises[id]
	if !ok {
		return nil, domain.ErrExerciseNotFound
	}
	return ex, nil
}

func (s *countingSource) GetExercisesByIDs(_ context.Context, ids []string) (map[string]*domain.Exercise, error) {
	s.hit("exercises")
	s.mu.Lock()
	s.lastBatch = append([]string(nil), ids...)
	s.mu.Unlock()
	out := make(map[string]*domain.Exercise)
	for _, id := range ids {
		if ex, ok := s.exercises[id]; ok {
			out[id] = ex
		}
	}
	return out, nil
}

func (s *countingSource) ListPrograms(context.Context) ([]*domain.Program, error) {
	s.hit("list")
	return []*domain.Program{s.programs["p1"]}, nil
}

func TestCachedCatalogRepository_GetProgram(t *testing.T) {
	cache, _ := newTestCache(t)
	source := newCountingSource()
	repo := NewCachedCatalogRepository(source, cache)
	ctx := context.Background()

	first, err := repo.GetProgram(ctx, "p1")
	require.NoError(t, err)
	second, err := repo.GetProgram(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, source.count("program"))
	assert.Equal(t, first.Name, second.Name)
	require.Len(t, second.Workouts, 1)
	assert.Equal(t, 10, second.Workouts[0].Exercises[0].Reps)
}

func TestCachedCatalogRepository_MissingProgramIsNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	source := newCountingSource()
	repo := NewCachedCatalogRepository(source, cache)
	ctx := context.Background()

	_, err := repo.GetProgram(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProgramNotFound)
	_, err = repo.GetProgram(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProgramNotFound)

	assert.Equal(t, 2, source.count("program"))
	assert.False(t, mr.Exists("catalog:program:nope"))
}

func TestCachedCatalogRepository_GetExercisesByIDs(t *testing.T) {
	cache, _ := newTestCache(t)
	source := newCountingSource()
	repo := NewCachedCatalogRepository(source, cache)
	ctx := context.Background()

	_, err := repo.GetExercise(ctx, "e1")
	require.NoError(t, err)

	got, err := repo.GetExercisesByIDs(ctx, []string{"e1", "e2", "e3"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Squat", got["e1"].Name)
	assert.Equal(t, "Row", got["e2"].Name)
	assert.ElementsMatch(t, []string{"e2", "e3"}, source.lastBatch, "cached exercises are not reloaded")

	got, err = repo.GetExercisesByIDs(ctx, []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, source.count("exercises"))
}

func TestCachedCatalogRepository_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	source := newCountingSource()
	repo := NewCachedCatalogRepository(source, cache)
	ctx := context.Background()

	_, err := repo.ListPrograms(ctx)
	require.NoError(t, err)
	_, err = repo.ListPrograms(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.count("list"))

	require.NoError(t, repo.Invalidate(ctx))
	programs, err := repo.ListPrograms(ctx)
	require.NoError(t, err)
	assert.Len(t, programs, 1)
	assert.Equal(t, 2, source.count("list"))
}
