package core

import "testing"

func TestQueueEmitStartsPending(t *testing.T) {
	q := NewQueue()
	e := q.Emit("startup", nil, nil)
	if e.Progress != ProgressPending {
		t.Fatalf("expected new event to start PENDING, got %v", e.Progress)
	}
	if e.Blockers() != 1 {
		t.Fatalf("expected emit to hold one logical blocker, got %d", e.Blockers())
	}
}

func TestQueuePollMonotonicProgress(t *testing.T) {
	q := NewQueue()
	e := q.Emit("startup", nil, nil)
	e.Unblock()

	var seen []Progress
	q.Poll(func(ev *Event) {
		seen = append(seen, ev.Progress)
	}, func(ev *Event) {
		seen = append(seen, ev.Progress)
	})

	if len(seen) == 0 {
		t.Fatalf("expected poll to observe the event at least once")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress regressed: %v then %v", seen[i-1], seen[i])
		}
	}
	if len(q.Events()) != 0 {
		t.Fatalf("expected event to be freed after dispatch, got %d remaining", len(q.Events()))
	}
}

func TestQueuePollHoldsUntilUnblocked(t *testing.T) {
	q := NewQueue()
	e := q.Emit("startup", nil, nil)
	// Do not unblock: blockers stays 1, simulating a job still
	// waiting on this event.
	dispatched := false
	q.Poll(func(ev *Event) {}, func(ev *Event) { dispatched = true })

	if dispatched {
		t.Fatalf("expected event to remain HANDLING while blockers > 0")
	}
	if e.Progress != ProgressHandling {
		t.Fatalf("expected event stuck in HANDLING, got %v", e.Progress)
	}
}

func TestQueueDerivesFailedEvent(t *testing.T) {
	q := NewQueue()
	e := q.Emit("foo", Env{"X=1"}, nil)
	e.MarkFailed()
	e.Unblock()

	var dispatched []string
	q.Poll(func(ev *Event) {}, func(ev *Event) {
		dispatched = append(dispatched, ev.Name)
	})

	var sawDerived bool
	for _, name := range dispatched {
		if name == "foo/failed" {
			sawDerived = true
		}
	}
	if !sawDerived {
		t.Fatalf("expected foo/failed to be dispatched as FINISHED, got dispatches %v", dispatched)
	}
	if len(q.Events()) != 0 {
		t.Fatalf("expected both foo and foo/failed to drain from the queue, got %d remaining", len(q.Events()))
	}
}

func TestQueueDoesNotDeriveFailedFromFailedEvent(t *testing.T) {
	q := NewQueue()
	e := q.Emit("foo/failed", nil, nil)
	e.MarkFailed()
	e.Unblock()

	q.Poll(func(ev *Event) {}, func(ev *Event) {})

	for _, ev := range q.Events() {
		if ev.Name == "foo/failed/failed" {
			t.Fatalf("did not expect a /failed event to derive another /failed event")
		}
	}
}

func TestUnblockPanicsOnUnderflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on blocker underflow")
		}
	}()
	e := NewEvent(1, "x", nil, nil)
	e.Unblock()
}
