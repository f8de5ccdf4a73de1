package domain

import (
	"context"
	"errors"
)

var (
	ErrDefinitionNotFound = errors.New("workout definition not found")
	ErrNoActiveSession    = errors.New("no active workout session")
	ErrNotResting         = errors.New("session is not resting")
	ErrNotTimedExercise   = errors.New("current exercise is not timed")
	ErrTimerNotRunning    = errors.New("exercise timer is not running")
	ErrSessionFinished    = errors.New("workout session already finished")
	ErrInvalidSetInput    = errors.New("invalid set input")
)

// Destination is a place the client should navigate to.
type Destination string

const (
	DestinationProgramSelection Destination = "/programs/select"
	DestinationProgramList      Destination = "/programs"
	DestinationActiveProgram    Destination = "/active-program"
)

// Navigator is told where the client should go next. Implementations must not block.
type Navigator interface {
	Navigate(ctx context.Context, userID string, to Destination)
}

// CuePlayer renders an audible/vibration cue. final is true for the
// completion cue and false for the final-seconds warning.
type CuePlayer interface {
	Play(final bool)
}

// SetInput is what the user enters when finishing a set.
type SetInput struct {
	Weight   *float64 `json:"weight,omitempty"`
	Reps     *int     `json:"reps,omitempty"`
	Duration *int     `json:"duration,omitempty"`
}

// Phase of a guided session as seen by the client.
type Phase string

const (
	PhaseExercise Phase = "exercise"  // waiting for the user to perform a set
	PhaseTiming   Phase = "timing"    // timed exercise countdown running
	PhaseTimeUp   Phase = "time_up"   // timed exercise countdown expired
	PhaseResting  Phase = "resting"   // rest countdown running or expired
	PhaseFinished Phase = "finished"  // finalized into history
	PhaseAborted  Phase = "abandoned" // left without history
)
