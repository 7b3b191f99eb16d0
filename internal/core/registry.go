package core

// Registry owns the top-level mapping from class name to the chain of
// JobClass definitions competing for that name, ordered by precedence
// (spec §4.E). Exactly one entry per chain is "active" — the one
// consider/reconsider has promoted to visible.
type Registry struct {
	classes  map[string][]*JobClass
	nextID   int
	loadSeq  int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: map[string][]*JobClass{}}
}

// AllActive returns every currently-active class, for the scheduler's
// per-event matching walk.
func (r *Registry) AllActive() []*JobClass {
	out := make([]*JobClass, 0, len(r.classes))
	for _, chain := range r.classes {
		if len(chain) > 0 {
			out = append(out, chain[0])
		}
	}
	return out
}

// Active returns the currently-visible class for name, if any.
func (r *Registry) Active(name string) (*JobClass, bool) {
	chain := r.classes[name]
	if len(chain) == 0 {
		return nil, false
	}
	return chain[0], true
}

func (r *Registry) classRank(c *JobClass) (int, int) {
	return sessionRank(c.Session), c.LoadSeq
}

// Load registers a new class definition from the config loader.
// Precedence is (sessionRank, loadSeq): the system session always
// outranks a per-user session of the same name regardless of load
// order (DESIGN.md Open Question 2). Load assigns LoadSeq if unset.
func (r *Registry) Load(spec *ClassSpec) *JobClass {
	r.loadSeq++
	if spec.LoadSeq == 0 {
		spec.LoadSeq = r.loadSeq
	}
	r.nextID++
	c := newJobClass(r.nextID, spec)

	chain := r.classes[spec.Name]
	chain = append(chain, c)
	r.sortChain(chain)
	r.classes[spec.Name] = chain
	return c
}

func (r *Registry) sortChain(chain []*JobClass) {
	for i := 1; i < len(chain); i++ {
		j := i
		for j > 0 && r.less(chain[j], chain[j-1]) {
			chain[j], chain[j-1] = chain[j-1], chain[j]
			j--
		}
	}
}

func (r *Registry) less(a, b *JobClass) bool {
	ra, la := r.classRank(a)
	rb, lb := r.classRank(b)
	if ra != rb {
		return ra < rb
	}
	return la < lb
}

// Consider promotes the highest-precedence class of its name to
// visible if it is not already, by re-sorting that name's chain.
// Nothing in the repository calls it.
func (r *Registry) Consider(name string) {
	chain := r.classes[name]
	r.sortChain(chain)
	r.classes[name] = chain
}

// Reconsider is called when an instance terminates: if the class was
// displaced by reload but kept alive because it had running
// instances, and it now has none, remove it from the chain so a
// successor (or nothing) becomes active. Returns true if the class
// was removed.
func (r *Registry) Reconsider(c *JobClass) bool {
	if !c.Deleted || len(c.instances) > 0 {
		return false
	}
	chain := r.classes[c.Name]
	for i, cand := range chain {
		if cand == c {
			chain = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(chain) == 0 {
		delete(r.classes, c.Name)
	} else {
		r.classes[c.Name] = chain
	}
	return true
}

// MarkMissing flags every currently-loaded class not present in the
// fresh set (by identity) as deleted, per a reload sweep; classes
// with zero instances are reconsidered (and so removed) immediately.
func (r *Registry) MarkMissing(stillPresent map[*JobClass]bool) {
	for name, chain := range r.classes {
		kept := chain[:0:0]
		for _, c := range chain {
			if !stillPresent[c] {
				c.Deleted = true
				if r.Reconsider(c) {
					continue
				}
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(r.classes, name)
		} else {
			r.classes[name] = kept
		}
	}
}

// handlePending runs the stop-match-then-start-match walk against
// every active class for one event, per spec §4.E. It is installed
// as Queue.Poll's handlePending callback by the scheduler.
func (c *Core) handlePending(event *Event) {
	for _, class := range c.Registry.AllActive() {
		c.matchStop(class, event)
	}
	for _, class := range c.Registry.AllActive() {
		c.matchStart(class, event)
	}
}

func (c *Core) matchStop(class *JobClass, event *Event) {
	for _, job := range class.Instances() {
		if job.StopOn == nil {
			continue
		}
		matched := job.StopOn.Handle(event, job.EnvVars)
		if matched && job.Goal != GoalStop {
			job.StopEnv = append(Env{}, job.StopOn.Environment(nil, "UPSTART_EVENTS")...)
			c.finished(job, false)
			job.StopOn.CollectEvents(job)
			c.ChangeGoal(job, GoalStop)
		}
		if matched {
			job.StopOn.Reset()
		}
	}
}

func (c *Core) matchStart(class *JobClass, event *Event) {
	if class.StartOn == nil {
		return
	}
	matched := class.StartOn.Handle(event, nil)
	if !matched {
		return
	}
	env := append(Env{}, class.StartOn.Environment(nil, "UPSTART_EVENTS")...)
	name := expandInstanceName(class.ClassSpec.Instance, env)

	job, ok := class.Instance(name)
	if !ok {
		c.nextJobID++
		job = newJob(c.nextJobID, class, name)
		class.addInstance(job)
	}
	if job.Goal != GoalStart {
		job.StartEnv = env
		class.StartOn.CollectEvents(job)
		c.ChangeGoal(job, GoalStart)
	}
	class.StartOn.Reset()
}

// expandInstanceName is a minimal ${VAR} expander against env; the
// config loader is responsible for anything richer (spec §6.3 treats
// the template syntax itself as out of scope for the core).
func expandInstanceName(template string, env Env) string {
	if template == "" {
		return ""
	}
	out := make([]byte, 0, len(template))
	for i := 0; i < len(template); i++ {
		if template[i] == '$' && i+1 < len(template) && template[i+1] == '{' {
			end := i + 2
			for end < len(template) && template[end] != '}' {
				end++
			}
			if end < len(template) {
				key := template[i+2 : end]
				if v, ok := env.Get(key); ok {
					out = append(out, v...)
				}
				i = end
				continue
			}
		}
		out = append(out, template[i])
	}
	return string(out)
}
