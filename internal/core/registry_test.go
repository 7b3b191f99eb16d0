package core

import "testing"

func TestRegistryLoadOrdersByPrecedence(t *testing.T) {
	r := NewRegistry()
	userSession := &Session{id: 1, Name: "alice"}

	user := r.Load(&ClassSpec{Name: "svc", Session: userSession})
	system := r.Load(&ClassSpec{Name: "svc"})

	active, ok := r.Active("svc")
	if !ok {
		t.Fatalf("expected an active class for svc")
	}
	if active != system {
		t.Fatalf("expected system session class to outrank per-user class regardless of load order")
	}
	_ = user
}

func TestRegistryReconsiderPromotesSuccessor(t *testing.T) {
	r := NewRegistry()
	first := r.Load(&ClassSpec{Name: "svc"})
	second := r.Load(&ClassSpec{Name: "svc"})

	active, _ := r.Active("svc")
	if active != first {
		t.Fatalf("expected first-loaded class active when ranks tie")
	}

	job := newJob(1, first, "")
	first.addInstance(job)
	first.Deleted = true

	if r.Reconsider(first) {
		t.Fatalf("did not expect reconsider to remove a class with running instances")
	}

	first.removeInstance("")
	if !r.Reconsider(first) {
		t.Fatalf("expected reconsider to remove a deleted class with no instances")
	}

	active, ok := r.Active("svc")
	if !ok || active != second {
		t.Fatalf("expected successor to become active after displaced class was reconsidered")
	}
}

func TestRegistryMarkMissingFlagsDeleted(t *testing.T) {
	r := NewRegistry()
	c := r.Load(&ClassSpec{Name: "svc"})
	j := newJob(1, c, "")
	c.addInstance(j)

	r.MarkMissing(map[*JobClass]bool{})

	if !c.Deleted {
		t.Fatalf("expected class absent from the fresh set to be marked deleted")
	}
	if _, ok := r.Active("svc"); !ok {
		t.Fatalf("expected class with a running instance to remain active despite deletion")
	}
}

func TestMatchStopSwapsCapturedEnvIntoPreStop(t *testing.T) {
	spawner := &fakeSpawner{}
	c := newTestCore(spawner)
	spec := &ClassSpec{
		Name: "svc",
		Process: map[ProcessType]ProcessSpec{
			ProcessMain:    {Command: []string{"/bin/sleep", "100"}},
			ProcessPreStop: {Command: []string{"/bin/true"}},
		},
	}
	class := c.Registry.Load(spec)
	c.nextJobID++
	job := newJob(c.nextJobID, class, "")
	job.StopOn = NewMatch("stopit", Matcher{Literal: "now", RefName: "REASON"})
	class.addInstance(job)

	c.ChangeGoal(job, GoalStart)
	c.Tick()
	if job.State != StateRunning {
		t.Fatalf("precondition: expected RUNNING, got %v", job.State)
	}

	c.Emit("stopit", Env{"ARG0=now"}, nil)
	c.Tick()

	if job.State != StatePreStop {
		t.Fatalf("expected job to be waiting on its PRE_STOP hook, got %v", job.State)
	}
	if v, ok := job.EnvVars.Get("REASON"); !ok || v != "now" {
		t.Fatalf("expected stop_on bindings to be swapped into EnvVars at PRE_STOP entry, got %v", job.EnvVars)
	}
	if len(job.StopEnv) != 0 {
		t.Fatalf("expected StopEnv to be cleared once swapped in, got %v", job.StopEnv)
	}
	env := spawner.envs[ProcessPreStop]
	if v, ok := env.Get("REASON"); !ok || v != "now" {
		t.Fatalf("expected the PRE_STOP hook to run with the swapped environment, got %v", env)
	}
}

func TestExpandInstanceName(t *testing.T) {
	got := expandInstanceName("tty${TTY}", Env{"TTY=1"})
	if got != "tty1" {
		t.Fatalf("expected tty1, got %q", got)
	}
	if expandInstanceName("", nil) != "" {
		t.Fatalf("expected empty template to stay empty (singleton)")
	}
}
