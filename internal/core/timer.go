package core

import "time"

// RealTimer implements TimerService with time.AfterFunc. Callbacks
// fire on their own goroutine per the stdlib timer contract, so
// RealTimer's own callers must route them back through Core.Submit —
// RealTimer does not do this itself, since it has no reference to a
// Core (see scheduler.go's killProcess, which wraps fn in Submit).
type RealTimer struct{}

// Schedule arranges for fn to run after d elapses, returning a cancel
// function.
func (RealTimer) Schedule(d time.Duration, fn func()) (cancel func()) {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
