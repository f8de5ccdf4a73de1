package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrActiveProgramNotFound = errors.New("active program not found")
)

type HistorySet struct {
	Weight    *float64 `json:"weight" bson:"weight"`
	Reps      *int     `json:"reps" bson:"reps"`
	Duration  *int     `json:"duration" bson:"duration"`
	Completed bool     `json:"completed" bson:"completed"`
}

type HistoryExercise struct {
	ExerciseID string        `json:"exerciseId" bson:"exercise_id"`
	Name       string        `json:"name" bson:"name"` // Denormalized for easy display
	Sets       []*HistorySet `json:"sets" bson:"sets"`
}

// HistoryRecord is the immutable result of a finalized session.
type HistoryRecord struct {
	ID          string             `json:"id" bson:"_id"` // ULID
	UserID      string             `json:"userId" bson:"user_id"`
	WorkoutID   string             `json:"workoutId" bson:"workout_id"`
	ProgramID   string             `json:"programId" bson:"program_id"`
	ProgramName string             `json:"programName" bson:"program_name"`
	WorkoutName string             `json:"workoutName" bson:"workout_name"`
	Date        time.Time          `json:"date" bson:"date"`
	Duration    int                `json:"duration" bson:"duration"` // minutes
	Exercises   []*HistoryExercise `json:"exercises" bson:"exercises"`
	Week        int                `json:"week" bson:"week"`
	Day         int                `json:"day" bson:"day"`
}

type CompletedWorkout struct {
	Week int       `json:"week" bson:"week"`
	Day  int       `json:"day" bson:"day"`
	Date time.Time `json:"date" bson:"date"`
}

// ActiveProgram tracks where a user is within a program's week/day grid.
type ActiveProgram struct {
	ProgramID         string             `json:"programId" bson:"program_id"`
	UserID            string             `json:"userId" bson:"_id"`
	StartDate         time.Time          `json:"startDate" bson:"start_date"`
	CurrentWeek       int                `json:"currentWeek" bson:"current_week"`
	CurrentDay        int                `json:"currentDay" bson:"current_day"`
	CompletedWorkouts []CompletedWorkout `json:"completedWorkouts" bson:"completed_workouts"`
}

// NewActiveProgram starts a program at week 1, day 1.
func NewActiveProgram(userID, programID string, start time.Time) *ActiveProgram {
	return &ActiveProgram{
		ProgramID:         programID,
		UserID:            userID,
		StartDate:         start,
		CurrentWeek:       1,
		CurrentDay:        1,
		CompletedWorkouts: []CompletedWorkout{},
	}
}

// RecordCompletion appends the current slot to the completed list and moves to
// the next day, rolling over to the next week after workoutsPerWeek days.
// It returns the slot the workout was recorded in.
func (a *ActiveProgram) RecordCompletion(workoutsPerWeek int, at time.Time) (week, day int) {
	week, day = a.CurrentWeek, a.CurrentDay
	a.CompletedWorkouts = append(a.CompletedWorkouts, CompletedWorkout{Week: week, Day: day, Date: at})

	a.CurrentDay++
	if workoutsPerWeek > 0 && a.CurrentDay > workoutsPerWeek {
		a.CurrentDay = 1
		a.CurrentWeek++
	}
	return week, day
}

type HistoryRepository interface {
	Append(ctx context.Context, record *HistoryRecord) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]*HistoryRecord, error)
}

type ActiveProgramRepository interface {
	GetByUser(ctx context.Context, userID string) (*ActiveProgram, error)
	Upsert(ctx context.Context, program *ActiveProgram) error
}

// HistoryArchive keeps an off-site copy of finalized records.
type HistoryArchive interface {
	Archive(ctx context.Context, record *HistoryRecord) error
}
