package spawner

import (
	"context"
	"sync"

	"github.com/initcore/initd/internal/core"
)

// Call records one Spawn invocation for assertions in other
// packages' tests (internal/core has its own minimal fakeSpawner to
// avoid an import cycle; this one is used by internal/control's
// tests and this package's own).
type Call struct {
	Job     string
	Process core.ProcessType
	Command []string
	Env     core.Env
}

// FakeSpawner is an in-memory core.Spawner: Spawn returns a fresh
// incrementing pid without forking anything, and Signal records the
// signal instead of delivering it. FailOn lets a test make a specific
// (job, process) pair fail to spawn.
type FakeSpawner struct {
	mu      sync.Mutex
	nextPid int
	Calls   []Call
	Signals []struct {
		Pid int
		Sig string
	}
	FailOn map[string]bool
}

// NewFakeSpawner constructs a FakeSpawner with pids starting at 100.
func NewFakeSpawner() *FakeSpawner {
	return &FakeSpawner{nextPid: 100, FailOn: make(map[string]bool)}
}

var _ core.Spawner = (*FakeSpawner)(nil)

func (f *FakeSpawner) Spawn(ctx context.Context, req core.SpawnRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{
		Job:     req.Job.Name,
		Process: req.Process,
		Command: req.Command,
		Env:     req.Env,
	})
	key := req.Job.Class.Name + ":" + req.Process.String()
	if f.FailOn[key] {
		return 0, errFakeSpawnFailed
	}
	f.nextPid++
	return f.nextPid, nil
}

func (f *FakeSpawner) Signal(pid int, sig string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Signals = append(f.Signals, struct{ Pid int; Sig string }{pid, sig})
	return nil
}

type fakeSpawnError string

func (e fakeSpawnError) Error() string { return string(e) }

const errFakeSpawnFailed = fakeSpawnError("fake spawner: configured to fail")
