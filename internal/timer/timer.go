// Package timer implements the countdown used for timed exercises and rest
// periods. Remaining time is always derived from the wall clock, never from a
// decremented counter, so late or dropped ticks do not skew the countdown.
package timer

import (
	"sync"
	"time"

	"github.com/mansoorceksport/liftlog/internal/clock"
	"github.com/mansoorceksport/liftlog/internal/domain"
)

type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateFinalCountdown State = "final_countdown"
	StateExpired        State = "expired"
)

type Kind string

const (
	KindExercise Kind = "exercise"
	KindRest     Kind = "rest"
)

const (
	TickInterval   = time.Second
	FinalCountdown = 5 * time.Second
)

// ExpireFunc is called once per countdown when it reaches zero.
type ExpireFunc func(generation uint64, kind Kind)

// Snapshot is a read-only view of the timer.
type Snapshot struct {
	State      State  `json:"state"`
	Kind       Kind   `json:"kind,omitempty"`
	Target     int    `json:"target"`    // seconds
	Remaining  int    `json:"remaining"` // seconds, rounded up
	Generation uint64 `json:"generation"`
}

// Timer is a single countdown. Starting a new countdown always cancels the
// previous one; callbacks from a replaced countdown are ignored.
type Timer struct {
	mu       sync.Mutex
	clock    clock.Clock
	cue      domain.CuePlayer
	onExpire ExpireFunc

	state     State
	kind      Kind
	target    time.Duration
	startedAt time.Time
	gen       uint64
	warned    bool // final countdown cue already played for gen
	next      clock.Stopper
}

func New(clk clock.Clock, cue domain.CuePlayer, onExpire ExpireFunc) *Timer {
	return &Timer{
		clock:    clk,
		cue:      cue,
		onExpire: onExpire,
		state:    StateIdle,
	}
}

// Start begins a countdown of target and returns its generation.
func (t *Timer) Start(kind Kind, target time.Duration) uint64 {
	t.mu.Lock()
	t.stopLocked()
	t.gen++
	t.state = StateRunning
	t.kind = kind
	t.target = target
	t.startedAt = t.clock.Now()
	t.warned = false

	warn := t.enterFinalCountdownLocked(target)
	t.scheduleLocked(target)
	gen := t.gen
	t.mu.Unlock()

	if warn {
		t.play(false)
	}
	return gen
}

// Stop ends a running countdown early and returns the whole seconds actually
// elapsed (target minus remaining). An expired countdown reports the full
// target. ok is false when nothing was counting.
func (t *Timer) Stop() (elapsed int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning, StateFinalCountdown:
		remaining := t.remainingLocked(t.clock.Now())
		elapsed = seconds(t.target) - ceilSeconds(remaining)
		if elapsed < 0 {
			elapsed = 0
		}
	case StateExpired:
		elapsed = seconds(t.target)
	default:
		return 0, false
	}

	t.stopLocked()
	t.gen++
	t.state = StateIdle
	return elapsed, true
}

// Cancel drops any countdown without side effects.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	if t.state != StateIdle {
		t.gen++
	}
	t.state = StateIdle
}

// Acknowledge returns an expired countdown to idle.
func (t *Timer) Acknowledge() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateExpired {
		return false
	}
	t.gen++
	t.state = StateIdle
	return true
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		State:      t.state,
		Generation: t.gen,
	}
	if t.state == StateIdle {
		return s
	}
	s.Kind = t.kind
	s.Target = seconds(t.target)
	if t.state != StateExpired {
		s.Remaining = ceilSeconds(t.remainingLocked(t.clock.Now()))
	}
	return s
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || (t.state != StateRunning && t.state != StateFinalCountdown) {
		t.mu.Unlock()
		return
	}

	remaining := t.remainingLocked(t.clock.Now())
	if remaining <= 0 {
		t.stopLocked()
		t.state = StateExpired
		kind := t.kind
		t.mu.Unlock()

		t.play(true)
		if t.onExpire != nil {
			t.onExpire(gen, kind)
		}
		return
	}

	warn := t.enterFinalCountdownLocked(remaining)
	t.scheduleLocked(remaining)
	t.mu.Unlock()

	if warn {
		t.play(false)
	}
}

// scheduleLocked arms the next tick on the next whole second since start, or
// at expiry if that comes first.
func (t *Timer) scheduleLocked(remaining time.Duration) {
	elapsed := t.clock.Now().Sub(t.startedAt)
	delay := TickInterval - elapsed%TickInterval
	if remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}
	gen := t.gen
	t.next = t.clock.AfterFunc(delay, func() { t.tick(gen) })
}

func (t *Timer) enterFinalCountdownLocked(remaining time.Duration) bool {
	if ceilSeconds(remaining) > seconds(FinalCountdown) || remaining <= 0 {
		return false
	}
	t.state = StateFinalCountdown
	if t.warned {
		return false
	}
	t.warned = true
	return true
}

func (t *Timer) remainingLocked(now time.Time) time.Duration {
	remaining := t.target - now.Sub(t.startedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Timer) stopLocked() {
	if t.next != nil {
		t.next.Stop()
		t.next = nil
	}
}

func (t *Timer) play(final bool) {
	if t.cue != nil {
		t.cue.Play(final)
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
