package core

import "time"

// respawnFailureProcess is the sentinel ProcessType recorded by
// maybeRespawn when a respawn-rate-limit failure occurs: there is no
// single failing hook, the respawn loop itself is what failed.
const respawnFailureProcess ProcessType = -1

// nextState is the pure function (state, goal, class has MAIN, main
// pid alive) -> next state, per spec §4.D.1's transition table.
func nextState(j *Job) State {
	hasMain := j.Class.HasProcess(ProcessMain)
	mainAlive := hasMain && j.pid[ProcessMain] != 0

	switch j.State {
	case StateWaiting:
		switch j.Goal {
		case GoalStart, GoalRespawn:
			return StateStarting
		default:
			panic("core: invalid transition WAITING with goal STOP")
		}
	case StateStarting:
		if j.Goal == GoalStop {
			return StateStopping
		}
		return StatePreStart
	case StatePreStart:
		if j.Goal == GoalStop {
			return StateStopping
		}
		return StateSpawned
	case StateSpawned:
		if j.Goal == GoalStop {
			return StateStopping
		}
		return StatePostStart
	case StatePostStart:
		if j.Goal == GoalStop {
			return StateStopping
		}
		return StateRunning
	case StateRunning:
		if j.Goal == GoalStop {
			if hasMain && mainAlive {
				return StatePreStop
			}
			return StateStopping
		}
		return StateStopping
	case StatePreStop:
		if j.Goal == GoalStop {
			return StateStopping
		}
		return StateRunning
	case StateStopping:
		return StateKilled
	case StateKilled:
		return StatePostStop
	case StatePostStop:
		if j.Goal == GoalStop {
			return StateWaiting
		}
		return StateStarting
	}
	panic("core: unreachable state in nextState")
}

// flipsGoalToStart reports the two transition-table cells that flip
// goal back to START mid-flight: POST_START/RESPAWN and
// PRE_STOP/RESPAWN, both of which route to STOPPING (see §4.D.1's
// "flip goal→START, STOPPING" cells).
func flipsGoalToStart(state State, goal Goal) bool {
	if goal != GoalRespawn {
		return false
	}
	return state == StatePostStart || state == StatePreStop
}

// ChangeState drives job through change_state's action loop: set
// state, run the entry action, and either loop (action chose a new
// target and did not block) or return having set job.blocker.
func (c *Core) ChangeState(j *Job, target State) {
	for {
		if flipsGoalToStart(j.State, j.Goal) {
			j.Goal = GoalStart
			target = StateStopping
		}
		c.logTransition(j, target)
		j.prevState = j.State
		j.State = target

		next, blocked := c.enterState(j, target)
		if blocked {
			return
		}
		if next == target {
			return
		}
		target = next
	}
}

// enterState runs the entry action for state target. It returns the
// state the loop should continue to (equal to target means "stop
// looping here"), and whether the job blocked on an emitted event.
func (c *Core) enterState(j *Job, target State) (next State, blocked bool) {
	switch target {
	case StateStarting:
		// A respawn cycle ends once it reaches STARTING: from here the
		// job starts again under goal START.
		if j.Goal == GoalRespawn {
			j.Goal = GoalStart
		}
		if len(j.StartEnv) > 0 {
			j.EnvVars = j.StartEnv
		}
		j.StartEnv = nil
		j.StopEnv = nil
		j.Failed = false
		j.FailedProcess = 0
		j.failedIsRespawn = false
		j.ExitStatus = 0
		ev := c.emitJobEvent(j, StartingEvent)
		j.blocker = ev
		return target, true

	case StatePreStart:
		if j.Class.HasProcess(ProcessPreStart) {
			if err := c.runProcess(j, ProcessPreStart); err != nil {
				c.failed(j, ProcessPreStart, -1)
				j.Goal = GoalStop
				return nextState(j), false
			}
			// Blocks until the reaper observes this hook's exit
			// (OnChildExit), matching the other scripted hooks.
			return target, true
		}
		return nextState(j), false

	case StateSpawned:
		if j.Class.HasProcess(ProcessMain) {
			if err := c.runProcess(j, ProcessMain); err != nil {
				c.failed(j, ProcessMain, -1)
				j.Goal = GoalStop
				return nextState(j), false
			}
			if j.Class.Expect != ExpectNone {
				j.TraceState = TraceTracing
				return target, true
			}
			return nextState(j), false
		}
		return nextState(j), false

	case StatePostStart:
		if j.Class.HasProcess(ProcessPostStart) {
			if err := c.runProcess(j, ProcessPostStart); err == nil {
				// POST_START failure is not fatal (spec §4.D.2); only
				// a successful spawn blocks on the hook's exit.
				return target, true
			}
		}
		return nextState(j), false

	case StateRunning:
		if j.prevState == StatePreStop {
			j.StopEnv = nil
			c.finished(j, false)
		} else {
			c.emitJobEventFireAndForget(j, StartedEvent)
			if !j.Class.Task {
				c.finished(j, false)
			}
		}
		return target, false

	case StatePreStop:
		if len(j.StopEnv) > 0 {
			j.EnvVars = j.StopEnv
		}
		j.StopEnv = nil
		if j.Class.HasProcess(ProcessPreStop) {
			if err := c.runProcess(j, ProcessPreStop); err == nil {
				return target, true
			}
		}
		return nextState(j), false

	case StateStopping:
		ev := c.emitJobEvent(j, StoppingEvent)
		j.blocker = ev
		return target, true

	case StateKilled:
		if j.MainAlive() {
			c.killProcess(j, ProcessMain)
			return target, true
		}
		return nextState(j), false

	case StatePostStop:
		if j.Class.HasProcess(ProcessPostStop) {
			if err := c.runProcess(j, ProcessPostStop); err != nil {
				c.failed(j, ProcessPostStop, -1)
				j.Goal = GoalStop
				return nextState(j), false
			}
			return target, true
		}
		return nextState(j), false

	case StateWaiting:
		c.emitJobEventFireAndForget(j, StoppedEvent)
		c.finished(j, false)
		c.destroyJob(j)
		return target, false
	}
	panic("core: unreachable enterState")
}

// ChangeGoal sets job's goal; if the job rests in the state that goal
// moves it out of (WAITING for START, RUNNING for STOP and RESPAWN),
// induct motion by calling ChangeState. Otherwise the
// running script/event completes naturally and re-enters the machine
// under the new goal.
func (c *Core) ChangeGoal(j *Job, goal Goal) {
	j.Goal = goal
	switch {
	case goal == GoalStart && j.State == StateWaiting:
		c.ChangeState(j, nextState(j))
	case goal == GoalStop && j.State == StateRunning:
		c.ChangeState(j, nextState(j))
	case goal == GoalRespawn && j.State == StateRunning:
		c.ChangeState(j, nextState(j))
	}
}

// resumeJob re-enters the state machine after j's blocker resolved.
func (c *Core) resumeJob(j *Job) {
	c.ChangeState(j, nextState(j))
}

// failed records the first failure for a job. Idempotent: only the
// first call sticks.
func (c *Core) failed(j *Job, process ProcessType, status int) {
	if j.Failed {
		return
	}
	j.Failed = true
	j.FailedProcess = process
	j.failedIsRespawn = process == respawnFailureProcess
	j.ExitStatus = status
	if c.FailureSink != nil {
		c.FailureSink(j, process, status)
	}
	c.finished(j, true)
}

// finished walks job.blocking and resolves every entry.
func (c *Core) finished(j *Job, failed bool) {
	blocking := j.blocking
	j.blocking = nil
	for _, b := range blocking {
		b.resolve(c, failed, j.Name)
	}
}

// maybeRespawn is called by the reaper when MAIN exits unexpectedly
// while goal==START and the class is respawnable. It rate-limits per
// class.Respawn.Limit/Interval (spec §4.D.3).
func (c *Core) maybeRespawn(j *Job, now time.Time) {
	if !j.Class.Respawn.Enabled {
		return
	}
	j.respawnTimes = append(j.respawnTimes, now)
	cutoff := now.Add(-j.Class.Respawn.Interval)
	kept := j.respawnTimes[:0]
	for _, t := range j.respawnTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	j.respawnTimes = kept
	j.RespawnCount++
	j.RespawnTime = now

	if j.Class.Respawn.Limit > 0 && len(j.respawnTimes) > j.Class.Respawn.Limit {
		c.failed(j, respawnFailureProcess, -1)
		c.ChangeGoal(j, GoalStop)
		return
	}
	c.ChangeGoal(j, GoalRespawn)
}
