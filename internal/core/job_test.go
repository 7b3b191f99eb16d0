package core

import (
	"context"
	"log/slog"
	"testing"
)

// fakeSpawner is a minimal in-memory Spawner for core's own unit
// tests, internal/core/scenario_test.go included;
// internal/spawner.FakeSpawner (richer, call-recording) is what other
// packages' tests use.
type fakeSpawner struct {
	nextPid int
	fail    map[ProcessType]bool
	signals []signalCall
	envs    map[ProcessType]Env
}

type signalCall struct {
	pid int
	sig string
}

func (f *fakeSpawner) Spawn(ctx context.Context, req SpawnRequest) (int, error) {
	if f.fail[req.Process] {
		return 0, errSpawnRefused
	}
	if f.envs == nil {
		f.envs = map[ProcessType]Env{}
	}
	f.envs[req.Process] = req.Env
	f.nextPid++
	return f.nextPid, nil
}

func (f *fakeSpawner) Signal(pid int, sig string) error {
	f.signals = append(f.signals, signalCall{pid, sig})
	return nil
}

var errSpawnRefused = errStr("refused")

type errStr string

func (e errStr) Error() string { return string(e) }

func newTestCore(spawner Spawner) *Core {
	c := New(spawner, nil, nil, slog.New(slog.DiscardHandler))
	return c
}

func newTestClass(c *Core, name string) *JobClass {
	spec := &ClassSpec{
		Name:    name,
		Process: map[ProcessType]ProcessSpec{ProcessMain: {Command: []string{"/bin/sleep", "100"}}},
	}
	return c.Registry.Load(spec)
}

func TestJobStartReachesRunning(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := newTestClass(c, "svc")
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	c.ChangeGoal(job, GoalStart)
	c.Tick()

	if job.State != StateRunning {
		t.Fatalf("expected RUNNING, got %v", job.State)
	}
	if job.Pid(ProcessMain) == 0 {
		t.Fatalf("expected MAIN pid to be recorded")
	}
}

func TestJobSpawnFailureStopsGoal(t *testing.T) {
	c := newTestCore(&fakeSpawner{fail: map[ProcessType]bool{ProcessMain: true}})
	class := newTestClass(c, "svc")
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	c.ChangeGoal(job, GoalStart)
	c.Tick()

	if !job.Failed {
		t.Fatalf("expected job to be marked failed after spawn error")
	}
	if job.Goal != GoalStop {
		t.Fatalf("expected goal to flip to STOP after spawn failure, got %v", job.Goal)
	}
}

func TestJobStopFromRunningReachesWaitingAndIsRemoved(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := newTestClass(c, "svc")
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	c.ChangeGoal(job, GoalStart)
	c.Tick()
	if job.State != StateRunning {
		t.Fatalf("precondition: expected RUNNING, got %v", job.State)
	}

	c.ChangeGoal(job, GoalStop)
	c.Tick()
	c.OnChildExit(job.Pid(ProcessMain), 0)
	c.Tick()

	if _, ok := class.Instance(""); ok {
		t.Fatalf("expected job to be removed from instance registry at WAITING")
	}
}
