package domain

import (
	"testing"
	"time"
)

func testWorkout() *Workout {
	return &Workout{
		ID: "w-1",
		Exercises: []*WorkoutExercise{
			{ExerciseID: "squat", Sets: 3, Reps: 5},
			{ExerciseID: "plank", Sets: 2, Duration: 30},
		},
	}
}

func TestFitsWorkout(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *WorkoutProgress)
		want   bool
	}{
		{
			name:   "fresh record fits",
			mutate: func(p *WorkoutProgress) {},
			want:   true,
		},
		{
			name: "partially done fits",
			mutate: func(p *WorkoutProgress) {
				reps := 5
				p.Exercises[0].CompletedSets = 1
				p.Exercises[0].SetDetails = append(p.Exercises[0].SetDetails, &SetRecord{Completed: true, Reps: &reps})
			},
			want: true,
		},
		{
			name:   "exercise count changed",
			mutate: func(p *WorkoutProgress) { p.Exercises = p.Exercises[:1] },
			want:   false,
		},
		{
			name:   "exercise order changed",
			mutate: func(p *WorkoutProgress) { p.Exercises[0], p.Exercises[1] = p.Exercises[1], p.Exercises[0] },
			want:   false,
		},
		{
			name:   "index out of range",
			mutate: func(p *WorkoutProgress) { p.CurrentExerciseIndex = 2 },
			want:   false,
		},
		{
			name:   "count beyond target",
			mutate: func(p *WorkoutProgress) { p.Exercises[1].CompletedSets = 3 },
			want:   false,
		},
		{
			name:   "count without set details",
			mutate: func(p *WorkoutProgress) { p.Exercises[0].CompletedSets = 1 },
			want:   false,
		},
		{
			name:   "nil exercise entry",
			mutate: func(p *WorkoutProgress) { p.Exercises[1] = nil },
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workout := testWorkout()
			p := NewWorkoutProgress("prog-1", workout, 1000)
			tt.mutate(p)

			if got := p.FitsWorkout(workout); got != tt.want {
				t.Errorf("FitsWorkout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewWorkoutProgress("prog-1", testWorkout(), 1000)
	weight := 60.0
	p.Exercises[0].CompletedSets = 1
	p.Exercises[0].SetDetails = append(p.Exercises[0].SetDetails, &SetRecord{Completed: true, Weight: &weight})

	c := p.Clone()
	*c.Exercises[0].SetDetails[0].Weight = 70
	c.Exercises[0].CompletedSets = 2
	c.CurrentExerciseIndex = 1

	if *p.Exercises[0].SetDetails[0].Weight != 60 {
		t.Errorf("clone shares set weight with original")
	}
	if p.Exercises[0].CompletedSets != 1 || p.CurrentExerciseIndex != 0 {
		t.Errorf("clone shares counters with original")
	}
	if (*WorkoutProgress)(nil).Clone() != nil {
		t.Errorf("Clone() of nil should be nil")
	}
}

func TestRecordCompletion(t *testing.T) {
	start := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		workoutsPerWeek int
		completions     int
		wantWeek        int
		wantDay         int
	}{
		{name: "first workout", workoutsPerWeek: 3, completions: 1, wantWeek: 1, wantDay: 2},
		{name: "rolls over to next week", workoutsPerWeek: 3, completions: 3, wantWeek: 2, wantDay: 1},
		{name: "several weeks", workoutsPerWeek: 2, completions: 5, wantWeek: 3, wantDay: 2},
		{name: "no weekly limit keeps counting days", workoutsPerWeek: 0, completions: 4, wantWeek: 1, wantDay: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewActiveProgram("user-1", "prog-1", start)
			var lastWeek, lastDay int
			for i := 0; i < tt.completions; i++ {
				lastWeek, lastDay = a.RecordCompletion(tt.workoutsPerWeek, start.Add(time.Duration(i)*24*time.Hour))
			}

			if a.CurrentWeek != tt.wantWeek || a.CurrentDay != tt.wantDay {
				t.Errorf("slot = week %d day %d, want week %d day %d", a.CurrentWeek, a.CurrentDay, tt.wantWeek, tt.wantDay)
			}
			if len(a.CompletedWorkouts) != tt.completions {
				t.Errorf("completed = %d, want %d", len(a.CompletedWorkouts), tt.completions)
			}
			last := a.CompletedWorkouts[len(a.CompletedWorkouts)-1]
			if last.Week != lastWeek || last.Day != lastDay {
				t.Errorf("returned slot %d/%d does not match recorded %d/%d", lastWeek, lastDay, last.Week, last.Day)
			}
		})
	}
}
