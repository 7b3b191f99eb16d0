package core

import "fmt"

// JobHandle names one job control RPCs address: a class plus an
// expanded instance name ("" for singletons).
type JobHandle struct {
	Class    string
	Instance string
}

// FindClass looks up an active class by name, for RPC handlers that
// need to validate a job handle before acting on it.
func (c *Core) FindClass(name string) (*JobClass, bool) {
	return c.Registry.Active(name)
}

// FindSession looks up a non-system session by name. "" always means
// the system session (nil).
func (c *Core) FindSession(name string) *Session {
	if name == "" {
		return nil
	}
	for _, s := range c.sessions {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Sessions returns every non-system session currently registered.
func (c *Core) Sessions() []*Session {
	return c.sessions
}

// NewSession registers a fresh per-user/chroot session (spec §3
// "Session"). Nothing in the repository calls it; the control API has
// no session-creation endpoint.
func (c *Core) NewSession(name, chroot string, uid int) *Session {
	c.nextSessionID++
	s := &Session{id: c.nextSessionID, Name: name, Chroot: chroot, UID: uid}
	c.sessions = append(c.sessions, s)
	return s
}

// FindJob looks up a live instance, if one currently exists. It does
// not create one; spec §6.3's control RPCs only create instances on
// start.
func (c *Core) FindJob(h JobHandle) (*Job, error) {
	class, ok := c.Registry.Active(h.Class)
	if !ok {
		return nil, ErrUnknownJob
	}
	job, ok := class.Instance(h.Instance)
	if !ok {
		return nil, ErrUnknownJob
	}
	return job, nil
}

// StartJob implements the "start" control RPC (spec §6.5): find or
// create the named instance, set its goal to START, and park reply
// (if non-nil) on the job's blocking list so the caller is woken once
// the job reaches RUNNING (or fails getting there).
func (c *Core) StartJob(h JobHandle, env Env, reply ReplyHandle) (*Job, error) {
	class, ok := c.Registry.Active(h.Class)
	if !ok {
		return nil, ErrUnknownJob
	}
	job, ok := class.Instance(h.Instance)
	if !ok {
		c.nextJobID++
		job = newJob(c.nextJobID, class, h.Instance)
		class.addInstance(job)
	}
	if job.Goal == GoalStart {
		if reply != nil {
			reply.Resolve(ErrAlreadyStarted)
		}
		return job, ErrAlreadyStarted
	}
	job.StartEnv = env
	if reply != nil {
		job.addBlocking(NewReplyBlocked(BlockedStartReply, reply))
	}
	c.ChangeGoal(job, GoalStart)
	return job, nil
}

// StopJob implements the "stop" control RPC: set goal to STOP and
// park reply on the job's blocking list until it reaches WAITING (or
// the attempt fails).
func (c *Core) StopJob(h JobHandle, reply ReplyHandle) (*Job, error) {
	job, err := c.FindJob(h)
	if err != nil {
		if reply != nil {
			reply.Resolve(err)
		}
		return nil, err
	}
	if job.Goal == GoalStop {
		if reply != nil {
			reply.Resolve(ErrAlreadyStopped)
		}
		return job, ErrAlreadyStopped
	}
	if reply != nil {
		job.addBlocking(NewReplyBlocked(BlockedStopReply, reply))
	}
	c.ChangeGoal(job, GoalStop)
	return job, nil
}

// RestartJob implements the "restart" control RPC: stop the running
// instance and start a fresh one once it reaches WAITING. Because a
// STOP and a subsequent START cannot be expressed as a single
// ChangeGoal call, the reply is parked on the stop leg and the start
// leg is kicked off fire-and-forget from restartAfterStop.
func (c *Core) RestartJob(h JobHandle, env Env, reply ReplyHandle) (*Job, error) {
	job, err := c.FindJob(h)
	if err != nil {
		if reply != nil {
			reply.Resolve(err)
		}
		return nil, err
	}
	pending := &restartReply{handle: h, env: env, core: c, inner: reply}
	if job.Goal == GoalStop {
		return c.StartJob(h, env, reply)
	}
	job.addBlocking(NewReplyBlocked(BlockedStopReply, pending))
	c.ChangeGoal(job, GoalStop)
	return job, nil
}

// restartReply adapts a StopJob completion into the StartJob leg of a
// restart, then forwards the caller's original reply.
type restartReply struct {
	handle JobHandle
	env    Env
	core   *Core
	inner  ReplyHandle
}

func (r *restartReply) Resolve(err error) {
	if err != nil {
		if r.inner != nil {
			r.inner.Resolve(err)
		}
		return
	}
	if _, startErr := r.core.StartJob(r.handle, r.env, r.inner); startErr != nil && r.inner == nil {
		r.core.Log.Warn("restart: start leg failed", "class", r.handle.Class, "instance", r.handle.Instance, "err", startErr)
	}
}

// EmitWait implements the "emit" control RPC's wait=true form: the
// event is queued exactly as Emit does, but reply is parked on the
// event's own blocking list so the caller only hears back once the
// event (and everything chained off it) finishes.
func (c *Core) EmitWait(name string, env Env, session *Session, reply ReplyHandle) *Event {
	ev := c.Queue.Emit(name, env, session)
	if reply != nil {
		ev.AddBlocking(NewEmitReplyBlocked(ev, reply))
	}
	ev.Unblock()
	return ev
}

// ListInstances returns every live instance of the named class, or
// every instance of every active class if className is "".
func (c *Core) ListInstances(className string) ([]*Job, error) {
	if className == "" {
		var out []*Job
		for _, class := range c.Registry.AllActive() {
			out = append(out, class.Instances()...)
		}
		return out, nil
	}
	class, ok := c.Registry.Active(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, className)
	}
	return class.Instances(), nil
}
