package core

import "time"

// TraceState tracks the fork-counting tracer used when a class's
// Expect mode requires following forks of MAIN before the deepest
// descendant is treated as the job's real pid (spec §4.C).
type TraceState int

const (
	TraceNotTracing TraceState = iota
	TraceTracing
	TraceDone
)

// Job is a live instantiation of a JobClass. See spec §3 "Job (instance)".
type Job struct {
	id    int
	Class *JobClass
	Name  string // expanded instance name; "" for singleton

	Goal  Goal
	State State
	prevState State

	pid      [int(processTypeCount)]int
	logClose [int(processTypeCount)]func()

	EnvVars  Env
	StartEnv Env
	StopEnv  Env

	StopOn *EventOperator // per-instance clone of class.StopOn

	blocker  *Event
	blocking []*Blocked

	killTimer    func()
	killDeadline time.Time

	Failed        bool
	FailedProcess ProcessType
	failedIsRespawn bool
	ExitStatus    int

	RespawnTime  time.Time
	RespawnCount int
	respawnTimes []time.Time

	TraceForks int
	TraceState TraceState
}

func newJob(id int, class *JobClass, name string) *Job {
	j := &Job{
		id:     id,
		Class:  class,
		Name:   name,
		Goal:   GoalStop,
		State:  StateWaiting,
		StopOn: class.StopOn.Clone(),
	}
	for i := range j.pid {
		j.pid[i] = 0
	}
	return j
}

// ID is the stable integer identity for snapshot references.
func (j *Job) ID() int { return j.id }

// Pid returns the recorded pid for the given process slot, 0 if none.
func (j *Job) Pid(pt ProcessType) int { return j.pid[pt] }

func (j *Job) setPid(pt ProcessType, pid int) { j.pid[pt] = pid }

// MainAlive reports whether the class has a MAIN process and its pid
// slot is occupied.
func (j *Job) MainAlive() bool {
	return j.Class.HasProcess(ProcessMain) && j.pid[ProcessMain] != 0
}

// Blocker is the single Event this job is waiting on, or nil.
func (j *Job) Blocker() *Event { return j.blocker }

// Blocking is the list of Blocked records this job itself holds —
// things it is currently blocking from finishing.
func (j *Job) Blocking() []*Blocked { return j.blocking }

func (j *Job) addBlocking(b *Blocked) {
	j.blocking = append(j.blocking, b)
}

// session returns the job's owning session, taken from its class.
func (j *Job) session() *Session {
	return j.Class.Session
}

// onBlockerFailed is invoked by Blocked.resolve when the event this
// job was waiting on finished with failed=true.
func (j *Job) onBlockerFailed(core *Core) {
	core.resumeJob(j)
}
