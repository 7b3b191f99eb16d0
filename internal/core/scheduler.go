package core

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Spawner is the external collaborator that forks/execs hook scripts
// (spec §6.3 "Spawner"). internal/spawner provides the production
// implementation; tests use an in-memory fake.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (pid int, err error)
	Signal(pid int, sig string) error
}

// SpawnRequest carries everything the spawner needs to run one hook.
type SpawnRequest struct {
	Job     *Job
	Process ProcessType
	Command []string
	Env     Env
	// Stdout, if non-nil, is where the spawner should route the
	// hook's combined stdout/stderr (the Core.Logs sink for this
	// job/process pair). Nil means the spawner picks its own default.
	Stdout io.Writer
}

// LogWriter is the external collaborator accepting a job process's
// output bytes (spec §6.3 "Log writer"); lifecycle is tied to the job.
// Open returns the sink to write that process's stdout/stderr into
// and a close func to release it once the process exits.
type LogWriter interface {
	Open(job *Job, process ProcessType) (w io.Writer, close func(), err error)
}

// TimerService schedules a callback to run on the core's own
// goroutine after duration (spec §6.3 "Timer service").
type TimerService interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// Core is the single process-wide value holding the event queue,
// class registry, and session list (spec §9 "Global state"). Every
// method that mutates it must run on the goroutine that owns it;
// other goroutines communicate via Submit.
type Core struct {
	Queue     *Queue
	Registry  *Registry
	Spawner   Spawner
	Logs      LogWriter
	Timers    TimerService
	Log       *slog.Logger

	// EventSink, if set, is called for every event that reaches
	// FINISHED, after its blocking list has been resolved. It is the
	// tap internal/control uses to feed the websocket event-tail
	// (spec §6.3 "Control RPC") without control importing the queue
	// internals.
	EventSink func(*Event)

	// TransitionSink, if set, is called for every job state change
	// right after it is logged, for the same reason as EventSink: the
	// audit-log and metrics tap internal/control installs, kept out of
	// core's own dependency surface.
	TransitionSink func(j *Job, from, to State)

	// FailureSink, if set, is called whenever a job records its first
	// failure (core.Job.Failed becomes true).
	FailureSink func(j *Job, process ProcessType, status int)

	nextJobID     int
	nextSessionID int
	sessions      []*Session
	fatal        func(error)
	submitCh     chan func()
}

// New constructs a Core ready to run. It installs no fatal handler, so
// FatalExit panics until SetFatalHandler provides one, which is
// appropriate for tests.
func New(spawner Spawner, logs LogWriter, timers TimerService, logger *slog.Logger) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		Queue:    NewQueue(),
		Registry: NewRegistry(),
		Spawner:  spawner,
		Logs:     logs,
		Timers:   timers,
		Log:      logger,
		submitCh: make(chan func(), 64),
	}
}

// Submit enqueues fn to run on the Core's owning goroutine, the
// single-threaded-cooperative boundary required by spec §5 when
// external goroutines (HTTP handlers, the reaper) need to touch core
// state. Safe to call from any goroutine.
func (c *Core) Submit(fn func()) {
	c.submitCh <- fn
}

// Run is the scheduler loop (spec §4.F / §2 component F): drains
// Submit'd work, then polls the event queue to quiescence, repeating
// until ctx is cancelled.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.submitCh:
			fn()
			c.drainSubmitted()
			c.Tick()
		}
	}
}

func (c *Core) drainSubmitted() {
	for {
		select {
		case fn := <-c.submitCh:
			fn()
		default:
			return
		}
	}
}

// Tick drives one full event_poll() pass to quiescence.
func (c *Core) Tick() {
	c.Queue.Poll(c.handlePending, c.dispatchFinished)
}

func (c *Core) dispatchFinished(e *Event) {
	for _, b := range e.Blocking() {
		b.resolve(c, e.Failed, jobNameOf(b))
	}
	if c.EventSink != nil {
		c.EventSink(e)
	}
}

func jobNameOf(b *Blocked) string {
	if b.Job != nil {
		return b.Job.Name
	}
	return ""
}

// Emit is the control-RPC/signal-plumbing entry point for injecting a
// new event (spec §6.3 "Control RPC" calls "emit"). It does not block
// the caller; use AddBlocking on the returned event for wait=true
// semantics.
func (c *Core) Emit(name string, env Env, session *Session) *Event {
	ev := c.Queue.Emit(name, env, session)
	ev.Unblock()
	return ev
}

// OnChildExit is called by the reaper for every reaped pid (spec
// §4.C / §4.F). It locates the owning job by pid, clears the slot,
// and issues the appropriate transition or respawn.
func (c *Core) OnChildExit(pid int, status int) {
	job, pt := c.findByPid(pid)
	if job == nil {
		return
	}
	job.setPid(pt, 0)
	c.closeLog(job, pt)

	if pt == ProcessMain && job.Goal == GoalStart && job.Class.Respawn.Enabled &&
		!job.Class.IsNormalExit(status) && job.State == StateRunning {
		c.maybeRespawn(job, c.now())
		return
	}

	if status != 0 && !job.Class.IsNormalExit(status) {
		c.failed(job, pt, status)
		job.Goal = GoalStop
	}

	switch job.State {
	case StatePreStart, StateSpawned, StatePostStart, StatePreStop, StateKilled, StatePostStop:
		if job.killTimer != nil {
			job.killTimer()
			job.killTimer = nil
		}
		c.ChangeState(job, nextState(job))
	case StateRunning:
		if pt == ProcessMain {
			// MAIN exited on its own while we were RUNNING and
			// weren't respawning it: for a task this is normal
			// completion, for a service it is an unrespawned crash.
			// Either way the job's goal settles to STOP and the
			// machine proceeds to tear it down.
			c.ChangeGoal(job, GoalStop)
		}
	default:
		// A slot exited in a state that no longer cares about it
		// (e.g. a POST_START straggler after the job already moved
		// on); nothing to drive.
	}
}

func (c *Core) now() time.Time { return time.Now() }

func (c *Core) findByPid(pid int) (*Job, ProcessType) {
	for _, class := range c.Registry.AllActive() {
		for _, job := range class.Instances() {
			for pt := ProcessType(0); pt < processTypeCount; pt++ {
				if job.Pid(pt) == pid {
					return job, pt
				}
			}
		}
	}
	return nil, 0
}

func (c *Core) runProcess(j *Job, pt ProcessType) error {
	spec, ok := j.Class.Process[pt]
	if !ok {
		return nil
	}
	var out io.Writer
	if c.Logs != nil {
		w, closeFn, err := c.Logs.Open(j, pt)
		if err != nil {
			c.Log.Warn("open log sink failed", "job", j.Name, "class", j.Class.Name, "process", pt, "err", err)
		} else {
			out = w
			j.logClose[pt] = closeFn
		}
	}
	pid, err := c.Spawner.Spawn(context.Background(), SpawnRequest{
		Job:     j,
		Process: pt,
		Command: spec.Command,
		Env:     j.EnvVars,
		Stdout:  out,
	})
	if err != nil {
		c.Log.Warn("spawn failed", "job", j.Name, "class", j.Class.Name, "process", pt, "err", err)
		c.closeLog(j, pt)
		return &SpawnFailedError{Process: pt, Cause: err}
	}
	j.setPid(pt, pid)
	return nil
}

func (c *Core) closeLog(j *Job, pt ProcessType) {
	if fn := j.logClose[pt]; fn != nil {
		fn()
		j.logClose[pt] = nil
	}
}

func (c *Core) killProcess(j *Job, pt ProcessType) {
	pid := j.Pid(pt)
	if pid == 0 {
		return
	}
	sig := j.Class.KillSignal
	if sig == "" {
		sig = "TERM"
	}
	if err := c.Spawner.Signal(pid, sig); err != nil {
		c.Log.Warn("kill signal failed", "job", j.Name, "pid", pid, "err", err)
	}
	if c.Timers != nil && j.Class.KillTimeout > 0 {
		j.killDeadline = c.now().Add(j.Class.KillTimeout)
		j.killTimer = c.Timers.Schedule(j.Class.KillTimeout, func() {
			c.Submit(func() { c.killTimeout(j) })
		})
	}
}

func (c *Core) killTimeout(j *Job) {
	if j.State != StateKilled || j.Pid(ProcessMain) == 0 {
		return
	}
	_ = c.Spawner.Signal(j.Pid(ProcessMain), "KILL")
}

func (c *Core) logTransition(j *Job, target State) {
	c.Log.Info("job transition", "class", j.Class.Name, "instance", j.Name,
		"from", j.State.String(), "to", target.String(), "goal", j.Goal.String())
	if c.TransitionSink != nil {
		c.TransitionSink(j, j.State, target)
	}
}

func (c *Core) destroyJob(j *Job) {
	class := j.Class
	class.removeInstance(j.Name)
	if class.Deleted && c.Registry.Reconsider(class) {
		return
	}
}

// FatalExit reports an unrecoverable failure (spec §7 OutOfMemory
// policy) to the handler set by SetFatalHandler, panicking when none
// is set. It has the shape of mustAlloc's fatal callback; nothing in
// core calls it at present.
func (c *Core) FatalExit(err error) {
	if c.fatal != nil {
		c.fatal(err)
		return
	}
	panic(err)
}

// SetFatalHandler overrides the default panic-on-fatal behavior, used
// by internal/daemon's NewService to log and os.Exit(1) instead.
func (c *Core) SetFatalHandler(fn func(error)) {
	c.fatal = fn
}
