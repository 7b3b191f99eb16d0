package core

// Env is an ordered list of "KEY=VALUE" strings with unique keys,
// matching the ordering discipline spec.md requires for Event.env.
type Env []EnvVar

// Get returns the value bound to key, and whether it was found.
func (e Env) Get(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range e {
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):], true
		}
		if kv == key+"=" {
			return "", true
		}
	}
	return "", false
}

// Set replaces the binding for key if present, else appends it,
// preserving the first-seen position on update.
func (e Env) Set(key, value string) Env {
	prefix := key + "="
	for i, kv := range e {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			out := append(Env{}, e...)
			out[i] = prefix + value
			return out
		}
	}
	return append(append(Env{}, e...), prefix+value)
}

// Clone returns an independent copy.
func (e Env) Clone() Env {
	if e == nil {
		return nil
	}
	out := make(Env, len(e))
	copy(out, e)
	return out
}

// Event is a named occurrence flowing through the queue's three-phase
// lifecycle. See spec §3 "Event".
type Event struct {
	id       int
	Name     string
	EnvVars  Env
	Session  *Session
	Progress Progress
	Failed   bool

	// blockers is the number of Blocked records anywhere that
	// reference this event. Invariant: blockers == len of every
	// Blocked{EVENT(e)} across the whole graph. Maintained solely via
	// Block/Unblock.
	blockers int

	// blocking is the list of Blocked records this event holds —
	// things that will be resolved once this event reaches FINISHED.
	blocking []*Blocked
}

// NewEvent constructs a PENDING event with zero blockers. Callers
// that enqueue it via Queue.Emit receive a held blocker on behalf of
// the caller; they must eventually Unblock it.
func NewEvent(id int, name string, env Env, session *Session) *Event {
	return &Event{
		id:       id,
		Name:     name,
		EnvVars:  env,
		Session:  session,
		Progress: ProgressPending,
	}
}

// ID is the stable integer identity assigned at allocation time, used
// for snapshot references (spec §6.4).
func (e *Event) ID() int { return e.id }

// Blockers reports the current reference count.
func (e *Event) Blockers() int { return e.blockers }

// Block increments the blocker count. The non-negative assertion of
// spec §4.B lives in Unblock, the only place the count can drop.
func (e *Event) Block() {
	e.blockers++
}

// Unblock decrements the blocker count. Panics on underflow: the
// spec requires this assertion, and a violation here means a Blocked
// record was resolved twice or never counted.
func (e *Event) Unblock() {
	if e.blockers <= 0 {
		panic("core: event blocker count went negative")
	}
	e.blockers--
}

// AddBlocking appends a Blocked record that this event is now
// responsible for resolving once it reaches FINISHED.
func (e *Event) AddBlocking(b *Blocked) {
	e.blocking = append(e.blocking, b)
}

// Blocking returns the list of records this event will resolve.
func (e *Event) Blocking() []*Blocked { return e.blocking }

// MarkFailed sets the failed flag. Idempotent.
func (e *Event) MarkFailed() { e.Failed = true }

// IsFailedDerivative reports whether this event's name already ends
// in "/failed", per spec §6.1's derived-event rule.
func (e *Event) IsFailedDerivative() bool {
	return hasFailedSuffix(e.Name)
}

func hasFailedSuffix(name string) bool {
	const suffix = "/failed"
	return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
}
