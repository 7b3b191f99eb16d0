package core

import "strings"

// OperatorKind is the node kind of an EventOperator tree.
type OperatorKind int

const (
	OperatorAnd OperatorKind = iota
	OperatorOr
	OperatorMatch
)

// Matcher is one argument matcher on a MATCH node: either a literal
// string or a reference into the evaluation's reference environment.
type Matcher struct {
	// Literal matchers require equality against the value of the
	// event's argument at the same position. EnvRef matchers look the
	// name up in the reference env passed to Handle.
	EnvRef  bool
	Literal string
	RefName string
}

// EventOperator is one node of an immutable boolean expression tree
// with mutable, transient match state. Trees are built once by the
// class loader and then cloned per job instance (stop_on) or reused
// directly (start_on), per spec §4.A / §4.E.
type EventOperator struct {
	Kind     OperatorKind
	Children []*EventOperator

	// MATCH-only fields.
	EventName string
	Args      []Matcher

	// Transient evaluation state, cleared by Reset.
	value    bool
	matched  *Event
	bindings Env
}

// NewAnd, NewOr, NewMatch build operator nodes.
func NewAnd(children ...*EventOperator) *EventOperator {
	return &EventOperator{Kind: OperatorAnd, Children: children}
}

func NewOr(children ...*EventOperator) *EventOperator {
	return &EventOperator{Kind: OperatorOr, Children: children}
}

func NewMatch(eventName string, args ...Matcher) *EventOperator {
	return &EventOperator{Kind: OperatorMatch, EventName: eventName, Args: args}
}

// Clone deep-copies the tree structure; transient state starts clear.
// Used to give each job instance its own stop_on copy (spec §3: "Jobs
// exclusively own their per-instance operator tree copies").
func (op *EventOperator) Clone() *EventOperator {
	if op == nil {
		return nil
	}
	out := &EventOperator{
		Kind:      op.Kind,
		EventName: op.EventName,
		Args:      append([]Matcher{}, op.Args...),
	}
	for _, c := range op.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Reset clears every node's value and event reference recursively.
// Called once the tree's root value has been consumed by a matching
// transition.
func (op *EventOperator) Reset() {
	if op == nil {
		return
	}
	op.value = false
	op.matched = nil
	op.bindings = nil
	for _, c := range op.Children {
		c.Reset()
	}
}

// Value reports the last Handle's computed result for the root.
func (op *EventOperator) Value() bool {
	if op == nil {
		return false
	}
	return op.value
}

// Handle performs a post-order match of event against the tree. referenceEnv
// is consulted by EnvRef matchers: the stop evaluation passes the job's
// environment, the start evaluation passes nil (spec §4.A).
func (op *EventOperator) Handle(event *Event, referenceEnv Env) bool {
	if op == nil {
		return false
	}
	switch op.Kind {
	case OperatorMatch:
		if matchEvent(op, event, referenceEnv) {
			op.value = true
			op.matched = event
			op.bindings = captureBindings(op, event, referenceEnv)
		}
		return op.value
	case OperatorAnd:
		result := len(op.Children) > 0
		for _, c := range op.Children {
			c.Handle(event, referenceEnv)
			if !c.Value() {
				result = false
			}
		}
		op.value = result
		return op.value
	case OperatorOr:
		result := false
		for _, c := range op.Children {
			c.Handle(event, referenceEnv)
			if c.Value() {
				result = true
			}
		}
		op.value = result
		return op.value
	}
	return false
}

func matchEvent(op *EventOperator, event *Event, referenceEnv Env) bool {
	if op.EventName != event.Name {
		return false
	}
	for i, m := range op.Args {
		var want string
		if m.EnvRef {
			v, ok := referenceEnv.Get(m.RefName)
			if !ok {
				return false
			}
			want = v
		} else {
			want = m.Literal
		}
		if i >= len(event.EnvVars) {
			return false
		}
		if got, _ := positionalArg(event.EnvVars, i); got != want {
			return false
		}
	}
	return true
}

// positionalArg reads the i-th "KEY=VALUE" entry's value portion,
// treating the event's env as an ordered argument list as well as a
// key-value map (both readings are valid per spec §3's "ordered list
// of KEY=VALUE strings").
func positionalArg(env Env, i int) (string, bool) {
	if i < 0 || i >= len(env) {
		return "", false
	}
	kv := env[i]
	if idx := strings.IndexByte(kv, '='); idx >= 0 {
		return kv[idx+1:], true
	}
	return kv, true
}

func captureBindings(op *EventOperator, event *Event, referenceEnv Env) Env {
	var out Env
	for i, m := range op.Args {
		if m.EnvRef || m.RefName == "" {
			continue
		}
		v, ok := positionalArg(event.EnvVars, i)
		if !ok {
			continue
		}
		out = append(out, m.RefName+"="+v)
	}
	return out
}

// Environment walks the subtree that evaluated true and appends one
// variable per matched argument binding, plus a space-separated list
// of all matched event names under extraName (e.g. "UPSTART_EVENTS").
func (op *EventOperator) Environment(env Env, extraName string) Env {
	names := make([]string, 0, 4)
	env = op.collectEnvironment(env, &names)
	if extraName != "" && len(names) > 0 {
		env = append(env, extraName+"="+strings.Join(names, " "))
	}
	return env
}

func (op *EventOperator) collectEnvironment(env Env, names *[]string) Env {
	if op == nil || !op.value {
		return env
	}
	switch op.Kind {
	case OperatorMatch:
		if op.matched != nil {
			env = append(env, op.bindings...)
			*names = append(*names, op.matched.Name)
		}
	default:
		for _, c := range op.Children {
			env = c.collectEnvironment(env, names)
		}
	}
	return env
}

// CollectEvents walks the matched subtree, creates a Blocked{EVENT}
// for each matched event, appends it to job's blocking list, and
// increments each event's blocker count.
func (op *EventOperator) CollectEvents(job *Job) {
	op.collectEvents(job)
}

func (op *EventOperator) collectEvents(job *Job) {
	if op == nil || !op.value {
		return
	}
	switch op.Kind {
	case OperatorMatch:
		if op.matched != nil {
			b := NewEventBlocked(op.matched)
			job.blocking = append(job.blocking, b)
			op.matched.Block()
		}
	default:
		for _, c := range op.Children {
			c.collectEvents(job)
		}
	}
}
