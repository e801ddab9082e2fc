// Package clock abstracts timer scheduling so transports can be tested
// with deterministic time. A scheduled task carries a cancel handle,
// replacing ad hoc timer bookkeeping in the delivery paths.
package clock

import (
	"time"
)

// Timer is the cancel handle of a scheduled task. Stop reports whether
// the call prevented the task from firing.
type Timer interface {
	Stop() bool
}

// Clock supplies current time and deferred execution.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// System returns the wall clock backed by time.AfterFunc.
func System() Clock {
	return systemClock{}
}
