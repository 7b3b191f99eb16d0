package core

import "testing"

// TestScenarioSimpleTask covers spec §8 scenario 1: a task class whose
// MAIN process exits with status 0 runs
// starting/started/stopping/stopped and leaves zero instances behind.
func TestScenarioSimpleTask(t *testing.T) {
	spawner := &fakeSpawner{}
	c := newTestCore(spawner)
	class := c.Registry.Load(&ClassSpec{
		Name:    "hello",
		Task:    true,
		StartOn: NewMatch("startup"),
		Process: map[ProcessType]ProcessSpec{ProcessMain: {Command: []string{"/bin/true"}}},
	})

	var names []string
	record := func(e *Event) { names = append(names, e.Name) }

	c.Queue.Emit("startup", nil, nil).Unblock()
	c.Queue.Poll(func(e *Event) { record(e); c.handlePending(e) }, c.dispatchFinished)

	job, ok := class.Instance("")
	if !ok {
		t.Fatalf("expected hello instance to exist after startup")
	}
	if job.State != StateRunning {
		t.Fatalf("expected RUNNING, got %v", job.State)
	}

	// /bin/true exits immediately; the reaper observes it while the
	// job is RUNNING, which for a task means normal completion.
	c.OnChildExit(job.Pid(ProcessMain), 0)
	c.Queue.Poll(func(e *Event) { record(e); c.handlePending(e) }, c.dispatchFinished)

	if _, ok := class.Instance(""); ok {
		t.Fatalf("expected the task instance to be gone once WAITING is reached")
	}

	want := []string{"starting", "started", "stopping", "stopped"}
	var got []string
	for _, n := range names {
		if n != "startup" {
			got = append(got, n)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sequence %v, got %v", want, got)
		}
	}
}

// TestScenarioServiceWithPreStart covers spec §8 scenario 2: a
// non-task service reaches RUNNING with MAIN alive after started is
// observed, without waiting for process exit.
func TestScenarioServiceWithPreStart(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := c.Registry.Load(&ClassSpec{
		Name:    "svc",
		StartOn: NewMatch("startup"),
		Process: map[ProcessType]ProcessSpec{
			ProcessPreStart: {Command: []string{"/bin/true"}},
			ProcessMain:     {Command: []string{"/bin/sleep", "100"}},
		},
	})

	c.Queue.Emit("startup", nil, nil).Unblock()
	c.Tick()

	job, ok := class.Instance("")
	if !ok {
		t.Fatalf("expected svc instance to exist")
	}
	if job.State != StatePreStart {
		t.Fatalf("expected job to block in PRE_START awaiting reap, got %v", job.State)
	}

	// The pre-start hook exits; the reaper drives the rest of the
	// chain (SPAWNED -> POST_START -> RUNNING) synchronously since
	// this class has no POST_START hook and expect=NONE.
	c.OnChildExit(job.Pid(ProcessPreStart), 0)

	if job.Goal != GoalStart || job.State != StateRunning {
		t.Fatalf("expected goal=START state=RUNNING, got %v/%v", job.Goal, job.State)
	}
	if job.Pid(ProcessMain) <= 0 {
		t.Fatalf("expected MAIN pid to be recorded while still running")
	}
}

// TestScenarioPreStopAbort covers spec §8 scenario 4: a START goal
// change during PRE_STOP resumes RUNNING without emitting stopping.
func TestScenarioPreStopAbort(t *testing.T) {
	c := newTestCore(&fakeSpawner{})
	class := c.Registry.Load(&ClassSpec{
		Name: "db",
		Process: map[ProcessType]ProcessSpec{
			ProcessPreStop: {Command: []string{"/bin/true"}},
			ProcessMain:    {Command: []string{"/bin/sleep", "100"}},
		},
	})
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	class.addInstance(job)

	c.ChangeGoal(job, GoalStart)
	c.Tick()
	if job.State != StateRunning {
		t.Fatalf("precondition: expected RUNNING, got %v", job.State)
	}

	c.ChangeGoal(job, GoalStop)
	if job.State != StatePreStop {
		t.Fatalf("expected job to block in PRE_STOP awaiting the hook's exit, got %v", job.State)
	}

	stoppingEventsBefore := countEvents(c, "stopping")

	// The pre-stop script's condition fails: its wrapper calls
	// change_goal(START) before the transition resumes.
	c.ChangeGoal(job, GoalStart)
	c.OnChildExit(job.Pid(ProcessPreStop), 0)

	if job.State != StateRunning {
		t.Fatalf("expected pre-stop abort to resume RUNNING, got %v", job.State)
	}
	if countEvents(c, "stopping") != stoppingEventsBefore {
		t.Fatalf("did not expect an additional stopping event once pre-stop was aborted")
	}
}

func countEvents(c *Core, name string) int {
	n := 0
	for _, e := range c.Queue.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}
