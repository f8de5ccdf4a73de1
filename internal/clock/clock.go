// Package clock abstracts wall-clock time and delayed callbacks so countdowns
// can be driven deterministically in tests.
package clock

import "time"

// Stopper cancels a scheduled callback. Stop reports whether the call
// prevented the callback from running.
type Stopper interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Real is backed by the time package.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}
