// Package cue delivers audible/vibration cues without ever blocking the
// countdown that triggers them.
package cue

import (
	"sync"

	"github.com/mansoorceksport/liftlog/internal/domain"
	"github.com/sirupsen/logrus"
)

// LogPlayer writes cues to the log.
type LogPlayer struct {
	log *logrus.Entry
}

func NewLogPlayer(log *logrus.Entry) *LogPlayer {
	return &LogPlayer{log: log}
}

func (p *LogPlayer) Play(final bool) {
	if final {
		p.log.Debug("cue: countdown complete")
		return
	}
	p.log.Debug("cue: final seconds")
}

// Multi plays every cue on all players in order.
type Multi []domain.CuePlayer

func (m Multi) Play(final bool) {
	for _, p := range m {
		p.Play(final)
	}
}

type job struct {
	player domain.CuePlayer
	final  bool
}

// Dispatcher runs cue players on a single background goroutine. Wrapped
// players enqueue and return at once; when the queue is full the cue is dropped.
type Dispatcher struct {
	jobs chan job
	log  *logrus.Entry
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex
	done bool
}

func NewDispatcher(buffer int, log *logrus.Entry) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		jobs: make(chan job, buffer),
		log:  log,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.jobs {
		j.player.Play(j.final)
	}
}

// Wrap returns a player that hands cues to the dispatcher.
func (d *Dispatcher) Wrap(p domain.CuePlayer) domain.CuePlayer {
	return &asyncPlayer{d: d, player: p}
}

// Close drains queued cues and stops the goroutine.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.done = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.done {
		return
	}
	select {
	case d.jobs <- j:
	default:
		d.log.WithField("final", j.final).Warn("cue queue full, dropping cue")
	}
}

type asyncPlayer struct {
	d      *Dispatcher
	player domain.CuePlayer
}

func (a *asyncPlayer) Play(final bool) {
	a.d.enqueue(job{player: a.player, final: final})
}
