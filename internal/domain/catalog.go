package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrExerciseNotFound = errors.New("exercise not found")
	ErrProgramNotFound  = errors.New("program not found")
	ErrWorkoutNotFound  = errors.New("workout not found")
)

const (
	DefaultSetRestSeconds      = 60
	DefaultExerciseRestSeconds = 90
)

// Exercise represents a move in the global library
type Exercise struct {
	ID              string    `json:"id" bson:"_id,omitempty"`
	Name            string    `json:"name" bson:"name"`
	MuscleGroup     string    `json:"muscleGroup" bson:"muscle_group"`
	Equipment       string    `json:"equipment" bson:"equipment"`
	DefaultRestTime int       `json:"defaultRestTime" bson:"default_rest_time"` // seconds between sets
	CreatedAt       time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updated_at"`
}

// WorkoutExercise is one entry of a workout definition. Duration > 0 marks a
// timed exercise, otherwise the set is repetition based.
type WorkoutExercise struct {
	ExerciseID string  `json:"exerciseId" bson:"exercise_id"`
	Sets       int     `json:"sets" bson:"sets"`
	Reps       int     `json:"reps,omitempty" bson:"reps,omitempty"`
	Weight     float64 `json:"weight,omitempty" bson:"weight,omitempty"`
	Duration   int     `json:"duration,omitempty" bson:"duration,omitempty"`   // seconds
	RestTime   int     `json:"restTime,omitempty" bson:"rest_time,omitempty"` // seconds, overrides the exercise default
}

// IsTimed reports whether sets of this exercise are driven by the countdown timer.
func (we *WorkoutExercise) IsTimed() bool {
	return we.Duration > 0
}

type Workout struct {
	ID        string             `json:"id" bson:"id"`
	Name      string             `json:"name" bson:"name"`
	Exercises []*WorkoutExercise `json:"exercises" bson:"exercises"`
}

// Program is a multi-week plan made of workouts, one per training day.
type Program struct {
	ID                   string     `json:"id" bson:"_id,omitempty"`
	Name                 string     `json:"name" bson:"name"`
	Description          string     `json:"description,omitempty" bson:"description,omitempty"`
	WorkoutsPerWeek      int        `json:"workoutsPerWeek" bson:"workouts_per_week"`
	RestBetweenExercises int        `json:"restBetweenExercises,omitempty" bson:"rest_between_exercises,omitempty"` // seconds
	Workouts             []*Workout `json:"workouts" bson:"workouts"`
	CreatedAt            time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt            time.Time  `json:"updatedAt" bson:"updated_at"`
}

// FindWorkout returns the workout with the given id or nil.
func (p *Program) FindWorkout(workoutID string) *Workout {
	for _, w := range p.Workouts {
		if w.ID == workoutID {
			return w
		}
	}
	return nil
}

// ExerciseRestSeconds is the rest inserted when moving on to the next exercise.
func (p *Program) ExerciseRestSeconds() int {
	if p.RestBetweenExercises > 0 {
		return p.RestBetweenExercises
	}
	return DefaultExerciseRestSeconds
}

// CatalogRepository is the read-only view of exercises and programs.
type CatalogRepository interface {
	GetProgram(ctx context.Context, id string) (*Program, error)
	GetExercise(ctx context.Context, id string) (*Exercise, error)
	GetExercisesByIDs(ctx context.Context, ids []string) (map[string]*Exercise, error)
}
