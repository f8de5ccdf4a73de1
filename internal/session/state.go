package session

import (
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/timer"
)

// ExerciseView describes the exercise the user is on.
type ExerciseView struct {
	Index         int     `json:"index"`
	ExerciseID    string  `json:"exerciseId"`
	Name          string  `json:"name"`
	Sets          int     `json:"sets"`
	CompletedSets int     `json:"completedSets"`
	Reps          int     `json:"reps,omitempty"`
	Weight        float64 `json:"weight,omitempty"`
	Duration      int     `json:"duration,omitempty"`
	Timed         bool    `json:"timed"`
}

// State is the client-facing snapshot of a session.
type State struct {
	ProgramID       string                  `json:"programId"`
	ProgramName     string                  `json:"programName"`
	WorkoutID       string                  `json:"workoutId"`
	WorkoutName     string                  `json:"workoutName"`
	Phase           domain.Phase            `json:"phase"`
	Resumed         bool                    `json:"resumed"`
	TotalExercises  int                     `json:"totalExercises"`
	CurrentExercise *ExerciseView           `json:"currentExercise,omitempty"`
	Timer           *timer.Snapshot         `json:"timer,omitempty"`
	Progress        *domain.WorkoutProgress `json:"progress,omitempty"`
	HistoryID       string                  `json:"historyId,omitempty"`
}

func (o *Orchestrator) stateLocked() *State {
	s := &State{
		ProgramID:      o.program.ID,
		ProgramName:    o.program.Name,
		WorkoutID:      o.workout.ID,
		WorkoutName:    o.workout.Name,
		Phase:          o.phase,
		Resumed:        o.resumed,
		TotalExercises: len(o.workout.Exercises),
	}

	switch o.phase {
	case domain.PhaseFinished:
		if o.record != nil {
			s.HistoryID = o.record.ID
		}
		return s
	case domain.PhaseAborted:
		return s
	}

	idx := o.progress.CurrentExerciseIndex
	we := o.workout.Exercises[idx]
	ep := o.progress.Exercises[idx]
	s.CurrentExercise = &ExerciseView{
		Index:         idx,
		ExerciseID:    we.ExerciseID,
		Name:          o.exerciseName(we.ExerciseID),
		Sets:          we.Sets,
		CompletedSets: ep.CompletedSets,
		Reps:          we.Reps,
		Weight:        we.Weight,
		Duration:      we.Duration,
		Timed:         we.IsTimed(),
	}
	if snap := o.timer.Snapshot(); snap.State != timer.StateIdle {
		s.Timer = &snap
	}
	s.Progress = o.progress.Clone()
	return s
}
