package spawner

import (
	"os"
	"os/signal"
	"syscall"
)

var sigchldCh chan os.Signal

// notifyChild arms ch to tick once per SIGCHLD delivery. Bursts of
// near-simultaneous exits coalesce into a single wakeup since ch is
// buffered size 1 and drain() loops until wait4 reports none left.
func notifyChild(ch chan struct{}) {
	sigchldCh = make(chan os.Signal, 1)
	signal.Notify(sigchldCh, syscall.SIGCHLD)
	go func() {
		for range sigchldCh {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
}

func stopChild(ch chan struct{}) {
	if sigchldCh != nil {
		signal.Stop(sigchldCh)
	}
}
