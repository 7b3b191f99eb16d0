// Command initd is the supervisor binary: it loads job class
// definitions from disk, runs the scheduler, and serves the control
// API over a unix socket until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/initcore/initd/internal/buildinfo"
	"github.com/initcore/initd/internal/config"
	"github.com/initcore/initd/internal/daemon"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion    bool
		confDir        string
		logDir         string
		defaultConsole string
		noLog          bool
		noSessions     bool
		noStartupEvent bool
		restart        bool
		stateFD        int
		session        bool
		startupEvent   string
	)

	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&confDir, "confdir", "", "directory of job class definitions")
	flag.StringVar(&logDir, "logdir", "", "directory for per-job log files")
	flag.StringVar(&defaultConsole, "default-console", "", "default console disposition for jobs that don't set one")
	flag.BoolVar(&noLog, "no-log", false, "disable per-job log files")
	flag.BoolVar(&noSessions, "no-sessions", false, "disable per-user session confdirs")
	flag.BoolVar(&noStartupEvent, "no-startup-event", false, "do not emit the startup event on boot")
	flag.BoolVar(&restart, "restart", false, "this process was re-exec'd; restore state")
	flag.IntVar(&stateFD, "state-fd", 0, "file descriptor carrying a serialized state blob (with --restart)")
	flag.BoolVar(&session, "session", false, "run as a per-user session supervisor instead of the system one")
	flag.StringVar(&startupEvent, "startup-event", "", "name of the event to emit once boot-time classes are loaded")
	flag.Parse()

	if showVersion {
		fmt.Println(buildinfo.String())
		return 0
	}

	cfg, err := config.Load(confDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initd: %v\n", err)
		return 1
	}
	cfg.ApplyFlags(confDir, logDir, defaultConsole, noLog, noSessions, noStartupEvent, restart, stateFD, session, startupEvent)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "initd: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := daemon.Run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "initd: %v\n", err)
		return 1
	}
	return 0
}
