package timer

import "time"

// Clock abstracts wall-clock reads and delayed callbacks so TimerListener
// can be driven by a fake clock in tests instead of real sleeps.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) StoppableTimer
}

// StoppableTimer is the subset of *time.Timer the listener needs.
type StoppableTimer interface {
	Stop() bool
}

// systemClock is the production Clock, backed by the runtime timer wheel.
type systemClock struct{}

// SystemClock is the real-time Clock used outside of tests.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func (systemClock) AfterFunc(d time.Duration, f func()) StoppableTimer {
	return time.AfterFunc(d, f)
}
