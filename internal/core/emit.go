package core

import "strconv"

// signalNames maps the common termination signals to their
// conventional names for EXIT_SIGNAL=, per spec §6.1.
var signalNames = map[int]string{
	1:  "HUP",
	2:  "INT",
	3:  "QUIT",
	6:  "ABRT",
	9:  "KILL",
	11: "SEGV",
	13: "PIPE",
	15: "TERM",
}

// jobEventEnv builds the env for a lifecycle event (starting/started/
// stopping/stopped), per spec §6.1: always JOB=/INSTANCE=; stopping
// and stopped additionally carry RESULT= and, on failure, PROCESS=
// plus EXIT_STATUS= or EXIT_SIGNAL=; every class.Export key that
// resolves in the job env is appended verbatim.
func (c *Core) jobEventEnv(j *Job, name string) Env {
	env := Env{"JOB=" + j.Class.Name, "INSTANCE=" + j.Name}

	if name == StoppingEvent || name == StoppedEvent {
		if j.Failed {
			env = append(env, "RESULT=failed")
			env = append(env, failureEnv(j)...)
		} else {
			env = append(env, "RESULT=ok")
		}
	}

	for _, key := range j.Class.Export {
		if v, ok := j.EnvVars.Get(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

func failureEnv(j *Job) Env {
	var env Env
	if j.failedIsRespawn {
		env = append(env, "PROCESS=respawn")
	} else {
		env = append(env, "PROCESS="+j.FailedProcess.String())
	}
	if j.ExitStatus != -1 {
		if high := j.ExitStatus >> 8; high != 0 {
			if name, ok := signalNames[high]; ok {
				env = append(env, "EXIT_SIGNAL="+name)
			} else {
				env = append(env, "EXIT_SIGNAL="+strconv.Itoa(high))
			}
		} else {
			env = append(env, "EXIT_STATUS="+strconv.Itoa(j.ExitStatus&0xff))
		}
	}
	return env
}

// emitJobEvent emits name with the job's lifecycle env, records
// Blocked{JOB(j)} into the event's blocking list, and returns the
// event (spec §6.2). The caller is expected to assign j.blocker.
func (c *Core) emitJobEvent(j *Job, name string) *Event {
	env := c.jobEventEnv(j, name)
	ev := c.Queue.Emit(name, env, j.session())
	ev.AddBlocking(NewJobBlocked(j))
	ev.Unblock()
	return ev
}

// emitJobEventFireAndForget emits a lifecycle event without blocking
// the job on it (used for "started" and "stopped", which do not
// themselves gate the transition, per spec §4.D.2).
func (c *Core) emitJobEventFireAndForget(j *Job, name string) *Event {
	env := c.jobEventEnv(j, name)
	ev := c.Queue.Emit(name, env, j.session())
	ev.Unblock()
	return ev
}
