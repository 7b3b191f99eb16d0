package core

import (
	"testing"
	"time"
)

func fixedTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestNextStateTable(t *testing.T) {
	cases := []struct {
		state State
		goal  Goal
		want  State
	}{
		{StateStarting, GoalStop, StateStopping},
		{StateStarting, GoalStart, StatePreStart},
		{StatePreStart, GoalStart, StateSpawned},
		{StateSpawned, GoalStart, StatePostStart},
		{StatePostStart, GoalStart, StateRunning},
		{StateRunning, GoalStop, StateStopping},
		{StatePreStop, GoalStart, StateRunning},
		{StatePreStop, GoalStop, StateStopping},
		{StateStopping, GoalStart, StateKilled},
		{StateKilled, GoalStart, StatePostStop},
		{StatePostStop, GoalStop, StateWaiting},
		{StatePostStop, GoalStart, StateStarting},
	}
	for _, tc := range cases {
		j := &Job{State: tc.state, Goal: tc.goal, Class: &JobClass{ClassSpec: &ClassSpec{}}}
		got := nextState(j)
		if got != tc.want {
			t.Errorf("nextState(%v, %v) = %v, want %v", tc.state, tc.goal, got, tc.want)
		}
	}
}

func TestNextStateRunningWithoutMainGoesStraightToStopping(t *testing.T) {
	j := &Job{State: StateRunning, Goal: GoalStop, Class: &JobClass{ClassSpec: &ClassSpec{}}}
	if got := nextState(j); got != StateStopping {
		t.Fatalf("expected RUNNING/STOP without MAIN to go straight to STOPPING, got %v", got)
	}
}

func TestNextStateWaitingStopIsInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for WAITING with goal STOP")
		}
	}()
	j := &Job{State: StateWaiting, Goal: GoalStop, Class: &JobClass{ClassSpec: &ClassSpec{}}}
	nextState(j)
}

func TestFlipsGoalToStart(t *testing.T) {
	if !flipsGoalToStart(StatePostStart, GoalRespawn) {
		t.Fatalf("expected POST_START/RESPAWN to flip goal")
	}
	if !flipsGoalToStart(StatePreStop, GoalRespawn) {
		t.Fatalf("expected PRE_STOP/RESPAWN to flip goal")
	}
	if flipsGoalToStart(StateRunning, GoalRespawn) {
		t.Fatalf("did not expect RUNNING/RESPAWN to flip goal")
	}
	if flipsGoalToStart(StatePostStart, GoalStart) {
		t.Fatalf("did not expect POST_START/START to flip goal")
	}
}

func TestFailedIsIdempotent(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := newTestClass(c, "svc")
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	c.failed(job, ProcessMain, 7)
	c.failed(job, ProcessPreStart, 99)

	if job.ExitStatus != 7 || job.FailedProcess != ProcessMain {
		t.Fatalf("expected first failed() call to stick, got process=%v status=%d", job.FailedProcess, job.ExitStatus)
	}
}

func TestRespawnRateLimitSettlesToStop(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := newTestClass(c, "svc")
	class.Respawn.Enabled = true
	class.Respawn.Limit = 1
	class.Respawn.Interval = 1_000_000_000 // 1s, plenty for a synchronous test
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	now := fixedTime()
	c.maybeRespawn(job, now)
	c.maybeRespawn(job, now)
	c.maybeRespawn(job, now)

	if !job.Failed {
		t.Fatalf("expected respawn rate limit to mark job failed")
	}
	if job.Goal != GoalStop {
		t.Fatalf("expected respawn rate limit to settle to STOP, got %v", job.Goal)
	}
}

// TestRespawnWithinLimitRestartsMain drives the real OnChildExit ->
// maybeRespawn -> ChangeGoal path for an under-limit respawn and
// checks the job actually cycles back to RUNNING with a fresh MAIN
// pid, rather than sticking at RUNNING with goal RESPAWN and no
// process.
func TestRespawnWithinLimitRestartsMain(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := newTestClass(c, "svc")
	class.Respawn.Enabled = true
	class.Respawn.Limit = 5
	class.Respawn.Interval = 1_000_000_000 // 1s

	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	c.ChangeGoal(job, GoalStart)
	c.Tick()
	if job.State != StateRunning {
		t.Fatalf("precondition: expected RUNNING, got %v", job.State)
	}
	firstPid := job.Pid(ProcessMain)
	if firstPid == 0 {
		t.Fatalf("precondition: expected a MAIN pid")
	}

	c.OnChildExit(firstPid, 1)
	c.Tick()

	// The STOPPING/.../STARTING cycle hands the goal back to START at
	// STARTING entry, so the restart settles with goal START, not
	// RESPAWN.
	if job.Goal != GoalStart {
		t.Fatalf("expected goal to settle to START after the respawn cycle, got %v", job.Goal)
	}
	if job.State != StateRunning {
		t.Fatalf("expected the respawn cycle to land back on RUNNING, got %v", job.State)
	}
	if job.Pid(ProcessMain) == 0 {
		t.Fatalf("expected a new MAIN pid after respawn")
	}
	if job.Pid(ProcessMain) == firstPid {
		t.Fatalf("expected respawn to spawn a fresh pid, got the same one (%d)", firstPid)
	}
	if job.RespawnCount != 1 {
		t.Fatalf("expected RespawnCount to be 1, got %d", job.RespawnCount)
	}
}
