package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mansoorceksport/liftlog/internal/clock"
	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/mansoorceksport/liftlog/internal/timer"
	"github.com/sirupsen/logrus"
)

// Orchestrator drives one user's guided session. It is the only writer of
// the progress record: every mutation is saved before the next phase starts.
type Orchestrator struct {
	mu sync.Mutex

	userID    string
	program   *domain.Program
	workout   *domain.Workout
	exercises map[string]*domain.Exercise
	progress  *domain.WorkoutProgress
	resumed   bool

	phase      domain.Phase
	timer      *timer.Timer
	timerGen   uint64
	transition uint64 // bumped on every phase change, guards delayed callbacks
	grace      clock.Stopper
	finalized  bool
	closed     bool
	record     *domain.HistoryRecord
	historyID  string // allocated on the first finalize attempt, reused on retries

	deps Deps
	cfg  Config
	log  *logrus.Entry
}

func newOrchestrator(userID string, program *domain.Program, workout *domain.Workout, exercises map[string]*domain.Exercise, progress *domain.WorkoutProgress, deps Deps, cfg Config) *Orchestrator {
	o := &Orchestrator{
		userID:    userID,
		program:   program,
		workout:   workout,
		exercises: exercises,
		progress:  progress,
		phase:     domain.PhaseExercise,
		deps:      deps,
		cfg:       cfg,
		log: deps.Logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"program_id": program.ID,
			"workout_id": workout.ID,
		}),
	}

	var player domain.CuePlayer
	if deps.Players != nil {
		player = deps.Players(userID)
	}
	o.timer = timer.New(deps.Clock, player, o.onTimerExpired)
	return o
}

// CompleteSet records the current set and moves to rest, the next exercise
// or finalization.
func (o *Orchestrator) CompleteSet(ctx context.Context, input domain.SetInput) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completeSetLocked(ctx, input)
}

// SkipRest ends the rest period immediately.
func (o *Orchestrator) SkipRest() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.activeLocked(); err != nil {
		return err
	}
	if o.phase != domain.PhaseResting {
		return domain.ErrNotResting
	}
	o.timer.Cancel()
	o.enterPhaseLocked(domain.PhaseExercise)
	return nil
}

// StartExerciseTimer starts the countdown of a timed exercise. A rest in
// progress is skipped; a running countdown is restarted.
func (o *Orchestrator) StartExerciseTimer() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.activeLocked(); err != nil {
		return err
	}
	we := o.currentWorkoutExerciseLocked()
	if !we.IsTimed() {
		return domain.ErrNotTimedExercise
	}

	o.enterPhaseLocked(domain.PhaseTiming)
	o.timerGen = o.timer.Start(timer.KindExercise, time.Duration(we.Duration)*time.Second)
	return nil
}

// StopExerciseTimer stops a timed exercise early and records the seconds
// actually performed.
func (o *Orchestrator) StopExerciseTimer(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.activeLocked(); err != nil {
		return err
	}
	if o.phase != domain.PhaseTiming && o.phase != domain.PhaseTimeUp {
		return domain.ErrTimerNotRunning
	}
	elapsed, ok := o.timer.Stop()
	if !ok {
		return domain.ErrTimerNotRunning
	}
	return o.completeSetLocked(ctx, domain.SetInput{Duration: &elapsed})
}

// AcknowledgeTimeUp confirms an expired timed exercise with its full duration.
func (o *Orchestrator) AcknowledgeTimeUp(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acknowledgeTimeUpLocked(ctx)
}

// Abandon leaves the session without writing history.
func (o *Orchestrator) Abandon(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase == domain.PhaseFinished {
		return domain.ErrSessionFinished
	}
	o.stopTimersLocked()
	o.enterPhaseLocked(domain.PhaseAborted)

	if err := o.deps.Progress.Clear(ctx, o.userID); err != nil {
		o.progressErrorLocked("clear", err)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.CounterSessionsAbandoned.Inc()
	}
	o.log.Info("session abandoned")
	o.navigate(ctx, domain.DestinationProgramList)
	return nil
}

// State returns a snapshot for the client.
func (o *Orchestrator) State() *State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

// Close stops every timer and pending callback.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopTimersLocked()
	o.closed = true
	o.transition++
}

func (o *Orchestrator) completeSetLocked(ctx context.Context, input domain.SetInput) error {
	if err := o.activeLocked(); err != nil {
		return err
	}

	idx := o.progress.CurrentExerciseIndex
	ep := o.progress.Exercises[idx]
	we := o.workout.Exercises[idx]

	// Desynchronized client: the exercise is already done, so move on
	// instead of recording another set.
	if ep.CompletedSets >= we.Sets {
		o.log.WithField("exercise_index", idx).Warn("set completed beyond target, advancing")
		return o.advanceLocked(ctx)
	}

	record, err := buildSetRecord(we, input)
	if err != nil {
		return err
	}

	o.stopTimersLocked()
	ep.SetDetails = append(ep.SetDetails[:ep.CompletedSets], record)
	ep.CompletedSets++
	if o.deps.Metrics != nil {
		kind := "reps"
		if we.IsTimed() {
			kind = "timed"
		}
		o.deps.Metrics.CounterSetsCompleted.WithLabelValues(kind).Inc()
	}

	switch {
	case ep.CompletedSets < we.Sets:
		o.saveLocked(ctx)
		o.restLocked(o.setRestSeconds(we))
		return nil
	case idx+1 < len(o.workout.Exercises):
		o.progress.CurrentExerciseIndex++
		o.saveLocked(ctx)
		o.restLocked(o.program.ExerciseRestSeconds())
		return nil
	default:
		o.saveLocked(ctx)
		return o.finalizeLocked(ctx)
	}
}

// advanceLocked moves to the next exercise without recording a set, or
// finalizes when the current exercise is the last one.
func (o *Orchestrator) advanceLocked(ctx context.Context) error {
	o.stopTimersLocked()
	if o.progress.CurrentExerciseIndex+1 < len(o.workout.Exercises) {
		o.progress.CurrentExerciseIndex++
		o.saveLocked(ctx)
		o.enterPhaseLocked(domain.PhaseExercise)
		return nil
	}
	return o.finalizeLocked(ctx)
}

func (o *Orchestrator) acknowledgeTimeUpLocked(ctx context.Context) error {
	if o.phase != domain.PhaseTimeUp {
		return domain.ErrTimerNotRunning
	}
	o.timer.Acknowledge()
	duration := o.currentWorkoutExerciseLocked().Duration
	return o.completeSetLocked(ctx, domain.SetInput{Duration: &duration})
}

func (o *Orchestrator) finalizeLocked(ctx context.Context) error {
	if o.finalized {
		o.log.Warn("finalize called twice, ignoring")
		if o.deps.Metrics != nil {
			o.deps.Metrics.CounterDuplicateFinalize.Inc()
		}
		return nil
	}
	o.finalized = true
	o.stopTimersLocked()

	now := o.deps.Clock.Now()

	// 1. Resolve the week/day slot
	active, err := o.deps.ActivePrograms.GetByUser(ctx, o.userID)
	switch {
	case errors.Is(err, domain.ErrActiveProgramNotFound):
		active = domain.NewActiveProgram(o.userID, o.program.ID, now)
	case err != nil:
		o.finalized = false
		return fmt.Errorf("failed to load active program: %w", err)
	case active.ProgramID != o.program.ID:
		o.log.WithField("active_program_id", active.ProgramID).Info("workout belongs to another program, restarting active program")
		active = domain.NewActiveProgram(o.userID, o.program.ID, now)
	}
	week, day := active.RecordCompletion(o.program.WorkoutsPerWeek, now)

	// 2. Append history. A failed append may still have been written, so the
	// retry reuses the id and the store treats it as a replay.
	if o.historyID == "" {
		o.historyID = o.deps.IDs()
	}
	record := o.buildHistoryLocked(now, week, day)
	if err := o.deps.History.Append(ctx, record); err != nil {
		o.finalized = false
		return fmt.Errorf("failed to append history: %w", err)
	}

	// 3. Advance the active program and archive; history is already written,
	// so failures here are logged rather than returned
	if err := o.deps.ActivePrograms.Upsert(ctx, active); err != nil {
		o.log.WithError(err).Error("failed to update active program")
	}
	if o.deps.Archive != nil {
		if err := o.deps.Archive.Archive(ctx, record); err != nil {
			o.log.WithError(err).Warn("failed to archive history record")
		}
	}

	// 4. Clear progress
	if err := o.deps.Progress.Clear(ctx, o.userID); err != nil {
		o.progressErrorLocked("clear", err)
	}

	o.record = record
	o.enterPhaseLocked(domain.PhaseFinished)
	if o.deps.Metrics != nil {
		o.deps.Metrics.CounterWorkoutsFinalized.Inc()
		o.deps.Metrics.HistWorkoutDuration.Observe(float64(record.Duration))
	}
	o.log.WithFields(logrus.Fields{
		"history_id": record.ID,
		"week":       week,
		"day":        day,
		"duration":   record.Duration,
	}).Info("workout finalized")

	o.navigate(ctx, domain.DestinationActiveProgram)
	return nil
}

func (o *Orchestrator) buildHistoryLocked(now time.Time, week, day int) *domain.HistoryRecord {
	exercises := make([]*domain.HistoryExercise, len(o.workout.Exercises))
	for i, we := range o.workout.Exercises {
		ep := o.progress.Exercises[i]
		sets := make([]*domain.HistorySet, we.Sets)
		for j := range sets {
			if j < ep.CompletedSets && j < len(ep.SetDetails) && ep.SetDetails[j] != nil {
				rec := ep.SetDetails[j]
				sets[j] = &domain.HistorySet{
					Weight:    rec.Weight,
					Reps:      rec.Reps,
					Duration:  rec.Duration,
					Completed: rec.Completed,
				}
				continue
			}
			sets[j] = &domain.HistorySet{Completed: false}
		}
		exercises[i] = &domain.HistoryExercise{
			ExerciseID: we.ExerciseID,
			Name:       o.exerciseName(we.ExerciseID),
			Sets:       sets,
		}
	}

	started := time.UnixMilli(o.progress.StartTime)
	return &domain.HistoryRecord{
		ID:          o.historyID,
		UserID:      o.userID,
		WorkoutID:   o.workout.ID,
		ProgramID:   o.program.ID,
		ProgramName: o.program.Name,
		WorkoutName: o.workout.Name,
		Date:        now,
		Duration:    int(math.Round(now.Sub(started).Minutes())),
		Exercises:   exercises,
		Week:        week,
		Day:         day,
	}
}

func (o *Orchestrator) restLocked(seconds int) {
	if seconds <= 0 {
		o.enterPhaseLocked(domain.PhaseExercise)
		return
	}
	o.enterPhaseLocked(domain.PhaseResting)
	o.timerGen = o.timer.Start(timer.KindRest, time.Duration(seconds)*time.Second)
}

// onTimerExpired runs on the clock's goroutine once a countdown hits zero.
func (o *Orchestrator) onTimerExpired(gen uint64, kind timer.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.finalized || o.phase == domain.PhaseAborted {
		return
	}
	// a countdown cancelled while this callback was in flight is stale
	if gen != o.timerGen || o.timer.Snapshot().Generation != gen {
		return
	}

	switch kind {
	case timer.KindRest:
		o.scheduleGraceLocked(o.cfg.RestGrace, func(ctx context.Context) {
			if o.phase != domain.PhaseResting {
				return
			}
			o.timer.Acknowledge()
			o.enterPhaseLocked(domain.PhaseExercise)
		})
	case timer.KindExercise:
		o.enterPhaseLocked(domain.PhaseTimeUp)
		if !o.cfg.AutoAdvanceTimed {
			return
		}
		o.scheduleGraceLocked(o.cfg.TimeUpGrace, func(ctx context.Context) {
			if err := o.acknowledgeTimeUpLocked(ctx); err != nil && !errors.Is(err, domain.ErrTimerNotRunning) {
				o.log.WithError(err).Error("failed to auto-complete timed set")
			}
		})
	}
}

// scheduleGraceLocked runs fn after d unless another transition happened in between.
func (o *Orchestrator) scheduleGraceLocked(d time.Duration, fn func(ctx context.Context)) {
	if o.grace != nil {
		o.grace.Stop()
	}
	expected := o.transition
	o.grace = o.deps.Clock.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.transition != expected {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CallbackTimeout)
		defer cancel()
		fn(ctx)
	})
}

func (o *Orchestrator) enterPhaseLocked(phase domain.Phase) {
	o.phase = phase
	o.transition++
}

func (o *Orchestrator) stopTimersLocked() {
	o.timer.Cancel()
	if o.grace != nil {
		o.grace.Stop()
		o.grace = nil
	}
}

func (o *Orchestrator) saveLocked(ctx context.Context) {
	if err := o.deps.Progress.Save(ctx, o.userID, o.progress); err != nil {
		o.progressErrorLocked("save", err)
	}
}

func (o *Orchestrator) progressErrorLocked(op string, err error) {
	o.log.WithError(err).WithField("op", op).Error("progress store failure")
	if o.deps.Metrics != nil {
		o.deps.Metrics.CounterProgressErrors.WithLabelValues(op).Inc()
	}
}

func (o *Orchestrator) activeLocked() error {
	if o.closed {
		return domain.ErrNoActiveSession
	}
	switch o.phase {
	case domain.PhaseFinished, domain.PhaseAborted:
		return domain.ErrSessionFinished
	}
	return nil
}

func (o *Orchestrator) navigate(ctx context.Context, to domain.Destination) {
	if o.deps.Navigator != nil {
		o.deps.Navigator.Navigate(ctx, o.userID, to)
	}
}

func (o *Orchestrator) currentWorkoutExerciseLocked() *domain.WorkoutExercise {
	return o.workout.Exercises[o.progress.CurrentExerciseIndex]
}

func (o *Orchestrator) setRestSeconds(we *domain.WorkoutExercise) int {
	if we.RestTime > 0 {
		return we.RestTime
	}
	if ex, ok := o.exercises[we.ExerciseID]; ok && ex.DefaultRestTime > 0 {
		return ex.DefaultRestTime
	}
	return domain.DefaultSetRestSeconds
}

func (o *Orchestrator) exerciseName(id string) string {
	if ex, ok := o.exercises[id]; ok && ex.Name != "" {
		return ex.Name
	}
	return id
}

func (o *Orchestrator) matches(programID, workoutID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.program.ID == programID && o.workout.ID == workoutID &&
		o.phase != domain.PhaseFinished && o.phase != domain.PhaseAborted
}

// buildSetRecord validates the input; missing values fall back to the targets.
func buildSetRecord(we *domain.WorkoutExercise, input domain.SetInput) (*domain.SetRecord, error) {
	if we.IsTimed() {
		duration := we.Duration
		if input.Duration != nil {
			duration = *input.Duration
		}
		if duration < 0 {
			return nil, fmt.Errorf("%w: negative duration", domain.ErrInvalidSetInput)
		}
		return &domain.SetRecord{Completed: true, Duration: &duration}, nil
	}

	reps := we.Reps
	if input.Reps != nil {
		reps = *input.Reps
	}
	weight := we.Weight
	if input.Weight != nil {
		weight = *input.Weight
	}
	if reps < 0 || weight < 0 {
		return nil, fmt.Errorf("%w: negative reps or weight", domain.ErrInvalidSetInput)
	}
	return &domain.SetRecord{Completed: true, Weight: &weight, Reps: &reps}, nil
}
