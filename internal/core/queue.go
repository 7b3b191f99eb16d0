package core

// Queue is the ordered list of live Events. Ordering is insertion
// order and must be preserved across serialisation (spec §4.B).
type Queue struct {
	events []*Event
	nextID int
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Emit appends a new PENDING event and returns it, holding one
// logical blocker on behalf of the caller, who must eventually call
// Unblock.
func (q *Queue) Emit(name string, env Env, session *Session) *Event {
	q.nextID++
	e := NewEvent(q.nextID, name, env, session)
	e.Block()
	q.events = append(q.events, e)
	return e
}

// restore re-inserts an event during snapshot deserialisation,
// preserving its prior ID so cross-references resolve correctly.
func (q *Queue) restore(e *Event) {
	if e.id >= q.nextID {
		q.nextID = e.id
	}
	q.events = append(q.events, e)
}

// Events returns the live queue contents in insertion order. Callers
// must not retain this slice across a Poll call.
func (q *Queue) Events() []*Event {
	return q.events
}

func (q *Queue) remove(e *Event) {
	for i, cur := range q.events {
		if cur == e {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return
		}
	}
}

// Poll drains the queue to quiescence, per spec §4.B. handlePending
// advances a PENDING event to HANDLING (running class stop/start
// matching against it); dispatch is invoked once an event reaches
// FINISHED, before it is freed.
func (q *Queue) Poll(handlePending func(*Event), dispatch func(*Event)) {
	for {
		progressed := q.pollOnce(handlePending, dispatch)
		if !progressed {
			return
		}
	}
}

func (q *Queue) pollOnce(handlePending func(*Event), dispatch func(*Event)) bool {
	progressed := false
	// Copy the slice: handlers may enqueue more events during this
	// pass, which must be visible to the *next* pass, not this one, and
	// finish removes events from q.events while the pass is running
	// (spec: "safe against mutation, since handlers enqueue more").
	snapshot := append([]*Event(nil), q.events...)
	for _, e := range snapshot {
		switch e.Progress {
		case ProgressPending:
			e.Progress = ProgressHandling
			if handlePending != nil {
				handlePending(e)
			}
			progressed = true
		case ProgressHandling:
			if e.blockers == 0 {
				e.Progress = ProgressFinished
				progressed = true
			}
		case ProgressFinished:
			q.finish(e, dispatch)
			progressed = true
		}
	}
	return progressed
}

func (q *Queue) finish(e *Event, dispatch func(*Event)) {
	if dispatch != nil {
		dispatch(e)
	}
	if e.Failed && !e.IsFailedDerivative() {
		failed := q.Emit(e.Name+"/failed", e.EnvVars.Clone(), e.Session)
		failed.Unblock()
	}
	q.remove(e)
}
