package domain

import (
	"context"
	"errors"
)

var (
	ErrProgressCorrupt = errors.New("stored workout progress is unreadable")
)

// SetRecord is the recorded detail of one finished set. Weight and Reps are
// filled for repetition sets, Duration (actual seconds) for timed sets.
type SetRecord struct {
	Completed bool     `json:"completed"`
	Weight    *float64 `json:"weight,omitempty"`
	Reps      *int     `json:"reps,omitempty"`
	Duration  *int     `json:"duration,omitempty"`
}

type ExerciseProgress struct {
	ExerciseID    string       `json:"exerciseId"`
	CompletedSets int          `json:"completedSets"`
	SetDetails    []*SetRecord `json:"setDetails"`
}

// WorkoutProgress is the single in-progress session snapshot.
type WorkoutProgress struct {
	ProgramID            string              `json:"programId"`
	WorkoutID            string              `json:"workoutId"`
	StartTime            int64               `json:"startTime"` // epoch milliseconds
	CurrentExerciseIndex int                 `json:"currentExerciseIndex"`
	Exercises            []*ExerciseProgress `json:"exercises"`
}

// NewWorkoutProgress builds an empty progress record for the workout.
func NewWorkoutProgress(programID string, workout *Workout, startMillis int64) *WorkoutProgress {
	exercises := make([]*ExerciseProgress, len(workout.Exercises))
	for i, we := range workout.Exercises {
		exercises[i] = &ExerciseProgress{
			ExerciseID: we.ExerciseID,
			SetDetails: make([]*SetRecord, 0, we.Sets),
		}
	}
	return &WorkoutProgress{
		ProgramID: programID,
		WorkoutID: workout.ID,
		StartTime: startMillis,
		Exercises: exercises,
	}
}

// Matches reports whether the record belongs to the given program and workout.
func (p *WorkoutProgress) Matches(programID, workoutID string) bool {
	return p.ProgramID == programID && p.WorkoutID == workoutID
}

// FitsWorkout checks that the record is structurally usable for the workout:
// same exercises in the same order and no count beyond its target.
func (p *WorkoutProgress) FitsWorkout(workout *Workout) bool {
	if len(p.Exercises) != len(workout.Exercises) || len(p.Exercises) == 0 {
		return false
	}
	if p.CurrentExerciseIndex < 0 || p.CurrentExerciseIndex >= len(p.Exercises) {
		return false
	}
	for i, ep := range p.Exercises {
		we := workout.Exercises[i]
		if ep == nil || ep.ExerciseID != we.ExerciseID {
			return false
		}
		if ep.CompletedSets < 0 || ep.CompletedSets > we.Sets || len(ep.SetDetails) < ep.CompletedSets {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (p *WorkoutProgress) Clone() *WorkoutProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.Exercises = make([]*ExerciseProgress, len(p.Exercises))
	for i, ep := range p.Exercises {
		if ep == nil {
			continue
		}
		e := *ep
		e.SetDetails = make([]*SetRecord, len(ep.SetDetails))
		for j, rec := range ep.SetDetails {
			if rec == nil {
				continue
			}
			r := *rec
			r.Weight = clonePtr(rec.Weight)
			r.Reps = clonePtr(rec.Reps)
			r.Duration = clonePtr(rec.Duration)
			e.SetDetails[j] = &r
		}
		c.Exercises[i] = &e
	}
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// ProgressRepository persists the one in-progress session of a user.
// Load returns (nil, nil) when nothing is stored.
type ProgressRepository interface {
	Load(ctx context.Context, userID string) (*WorkoutProgress, error)
	Save(ctx context.Context, userID string, progress *WorkoutProgress) error
	Clear(ctx context.Context, userID string) error
}
