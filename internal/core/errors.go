package core

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced to RPC callers and the scheduler, per
// the error-handling design in spec §7.
var (
	ErrAlreadyStarted   = errors.New("job already has goal start")
	ErrAlreadyStopped   = errors.New("job already has goal stop")
	ErrPermissionDenied = errors.New("session does not own this job")
	ErrUnknownJob       = errors.New("no such job class or instance")
	ErrOutOfMemory      = errors.New("allocation failed")
)

// SpawnFailedError records a hook process that failed to fork/exec.
type SpawnFailedError struct {
	Process ProcessType
	Cause   error
}

func (e *SpawnFailedError) Error() string {
	return fmt.Sprintf("spawn %s failed: %v", e.Process, e.Cause)
}

func (e *SpawnFailedError) Unwrap() error { return e.Cause }

// JobFailedError is the generic failure surface for wait=true RPCs
// whose target job died before satisfying the caller.
type JobFailedError struct {
	JobName string
	Process ProcessType
	Status  int
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %q failed in %s (status %d)", e.JobName, e.Process, e.Status)
}

// EventFailedError is returned to a wait=true emit RPC whose event's
// failed flag became true.
type EventFailedError struct {
	EventName string
}

func (e *EventFailedError) Error() string {
	return fmt.Sprintf("event %q failed", e.EventName)
}

// mustAlloc retries an essential, structurally-required allocation
// until it succeeds. Per spec §7 / §9: allocation failures for
// essential core state (a new Event, Job, or Blocked) are not
// recoverable mid-transition, so we loop rather than scatter recovery
// code through the state machine. fn should be cheap and side-effect
// free until it returns a non-nil value.
func mustAlloc[T any](fatal func(err error), fn func() (T, error)) T {
	for {
		v, err := fn()
		if err == nil {
			return v
		}
		fatal(fmt.Errorf("%w: %v", ErrOutOfMemory, err))
	}
}
