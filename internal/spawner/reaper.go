package spawner

import (
	"context"
	"log/slog"
	"syscall"

	"github.com/initcore/initd/internal/core"
)

// Reaper collects SIGCHLD and, for every exited child, pushes the
// (pid, status) pair onto the core's goroutine via Submit. Running as
// pid 1 means orphaned grandchildren get reparented here too, so the
// wait loop is -1 (any child), not limited to pids the Exec spawner
// itself started.
type Reaper struct {
	Core *core.Core
	Log  *slog.Logger
}

// NewReaper wires a Reaper to deliver exits to c.
func NewReaper(c *core.Core, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{Core: c, Log: logger}
}

// Run installs the SIGCHLD handler and blocks, draining child exits
// until ctx is cancelled. It is meant to run in its own goroutine
// alongside Core.Run.
func (r *Reaper) Run(ctx context.Context) {
	ch := make(chan struct{}, 1)
	notifyChild(ch)
	defer stopChild(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			r.drain()
		}
	}
}

// drain wait4(-1, WNOHANG)s every exited child currently reapable and
// submits each one to the core. WNOHANG is essential: without it a
// single Wait4 call blocks until some child exits, starving the
// select loop above of the ability to notice ctx cancellation.
func (r *Reaper) drain() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		status := exitStatus(ws)
		r.Log.Debug("reaped child", "pid", pid, "status", status)
		r.Core.Submit(func() {
			r.Core.OnChildExit(pid, status)
		})
	}
}

// exitStatus packs a wait status into the (signal<<8|code) or plain
// exit-code form that core.FailureEnv/IsNormalExit expect, matching
// the POSIX wait(2) low-byte/high-byte convention spec §4.D documents.
func exitStatus(ws syscall.WaitStatus) int {
	if ws.Signaled() {
		return int(ws.Signal()) << 8
	}
	return ws.ExitStatus()
}
