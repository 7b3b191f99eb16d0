// Package daemon wires internal/core up to its external collaborators
// (spawner, reaper, config loader, control API, audit log, metrics)
// into one running process, the way the teacher's daemon.go wires its
// sandbox/workspace managers up to its own listeners.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/initcore/initd/internal/classdef"
	"github.com/initcore/initd/internal/config"
	"github.com/initcore/initd/internal/control"
	"github.com/initcore/initd/internal/core"
	"github.com/initcore/initd/internal/db"
	"github.com/initcore/initd/internal/kmsg"
	"github.com/initcore/initd/internal/metrics"
	"github.com/initcore/initd/internal/spawner"
)

const (
	shutdownTimeout = 5 * time.Second
	socketPerms     = 0o660
	runDirPerms     = 0o750
)

// Service wires the core scheduler to its spawner, reaper, class
// registry, control API, audit store, and optional metrics listener.
type Service struct {
	cfg    config.Config
	core   *core.Core
	store  *db.Store
	kmsg   kmsg.Writer
	reaper *spawner.Reaper

	controlListener net.Listener
	controlServer   *http.Server
	metricsListener net.Listener
	metricsServer   *http.Server
}

// Run loads configuration-driven state and serves until ctx is
// canceled. It is the top-level entry point cmd/initd calls.
func Run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := slog.Default()
	kw := kmsg.OpenOrNoOp()

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}

	svc, err := NewService(cfg, logger, store, kw)
	if err != nil {
		_ = store.Close()
		return err
	}

	if cfg.Restart {
		svc.restoreFromStateFD(cfg.StateFD)
	} else {
		svc.boot()
	}

	return svc.Serve(ctx)
}

// NewService constructs a Service with its core wired up but not yet
// booted: callers choose between a fresh boot and a --restart/
// --state-fd restore before calling Serve.
func NewService(cfg config.Config, logger *slog.Logger, store *db.Store, kw kmsg.Writer) (*Service, error) {
	sp := spawner.NewExec()
	var logs core.LogWriter
	if cfg.NoLog {
		logs = NoOpLogWriter{}
	} else {
		logs = NewFileLogWriter(cfg.LogDir, NewRedactor(nil))
	}

	c := core.New(sp, logs, core.RealTimer{}, logger)
	c.SetFatalHandler(func(err error) {
		logger.Error("fatal core error, terminating", "err", err)
		_ = kw.Write(kmsg.LevelCrit, err.Error())
		os.Exit(1)
	})

	reaper := spawner.NewReaper(c, logger)

	m := metrics.New()
	var auth *control.Auth
	if cfg.AuthToken != "" {
		a, err := control.NewAuth(cfg.AuthToken, cfg.AuthAllowCIDR)
		if err != nil {
			return nil, fmt.Errorf("control auth: %w", err)
		}
		auth = a
	}
	api := control.NewAPI(c, store, m, auth, logger)

	router := mux.NewRouter()
	api.Register(router)
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	controlListener, err := listenUnix(cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	controlServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	svc := &Service{
		cfg:             cfg,
		core:            c,
		store:           store,
		kmsg:            kw,
		reaper:          reaper,
		controlListener: controlListener,
		controlServer:   controlServer,
	}

	if cfg.MetricsListen != "" {
		ml, err := net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			_ = controlListener.Close()
			return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsListen, err)
		}
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", m.Handler())
		svc.metricsListener = ml
		svc.metricsServer = &http.Server{Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	}

	return svc, nil
}

// boot loads every *.yaml/*.yml class file directly in cfg.ConfDir,
// all into the system session, and emits the configured startup
// event, implementing a fresh (non-restart) boot. It loads no
// per-user confdirs, so cfg.NoSessions changes nothing here.
func (s *Service) boot() {
	specs, err := classdef.LoadDir(s.cfg.ConfDir, nil)
	if err != nil {
		s.core.Log.Error("load class definitions failed", "dir", s.cfg.ConfDir, "err", err)
	}
	for _, spec := range specs {
		s.core.Registry.Load(spec)
	}
	if !s.cfg.NoStartupEvent {
		s.core.Submit(func() {
			s.core.Emit(s.cfg.StartupEvent, nil, nil)
		})
	}
}

// restoreFromStateFD attempts to decode and restore a snapshot handed
// down fd by the process that re-exec'd us. Per spec §7's recovery
// strategy, any failure here falls back to a fresh boot rather than
// aborting startup.
func (s *Service) restoreFromStateFD(fd int) {
	f := os.NewFile(uintptr(fd), "state-fd")
	if f == nil {
		s.core.Log.Warn("--restart given but state fd is invalid, falling back to fresh boot", "fd", fd)
		s.boot()
		return
	}
	defer f.Close()

	data, err := readAll(f)
	if err != nil {
		s.core.Log.Warn("read state fd failed, falling back to fresh boot", "err", err)
		s.boot()
		return
	}
	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		s.core.Log.Warn("decode snapshot failed, falling back to fresh boot", "err", err)
		s.boot()
		return
	}
	restored, err := core.Restore(snap, s.core.Spawner, s.core.Logs, s.core.Timers)
	if err != nil {
		s.core.Log.Warn("restore snapshot failed, falling back to fresh boot", "err", err)
		s.boot()
		return
	}
	restored.Log = s.core.Log
	restored.EventSink = s.core.EventSink
	restored.TransitionSink = s.core.TransitionSink
	restored.FailureSink = s.core.FailureSink
	*s.core = *restored
	s.core.Log.Info("restored state from fd", "fd", fd)
}

func readAll(f *os.File) ([]byte, error) {
	var out []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if err.Error() == "EOF" {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// Serve runs the core scheduler and control listener until ctx is
// canceled, then shuts both down.
func (s *Service) Serve(ctx context.Context) error {
	s.core.Log.Info("initd: control socket", "path", s.cfg.SocketPath)
	coreCtx, cancelCore := context.WithCancel(ctx)
	defer cancelCore()

	go s.reaper.Run(coreCtx)

	errCh := make(chan error, 2)
	go func() { s.core.Run(coreCtx); errCh <- nil }()
	go func() { errCh <- s.controlServer.Serve(s.controlListener) }()
	if s.metricsServer != nil {
		go func() { errCh <- s.metricsServer.Serve(s.metricsListener) }()
	}

	remaining := 2
	if s.metricsServer != nil {
		remaining = 3
	}
	var serveErr error

	select {
	case <-ctx.Done():
	case err := <-errCh:
		remaining--
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	s.shutdown()
	for i := 0; i < remaining; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) && serveErr == nil {
			serveErr = err
		}
	}

	_ = os.Remove(s.cfg.SocketPath)
	return serveErr
}

func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.controlServer.Shutdown(ctx)
	if s.metricsServer != nil {
		_ = s.metricsServer.Shutdown(ctx)
	}
	_ = s.kmsg.Close()
	if s.store != nil {
		_ = s.store.Close()
	}
}

func listenUnix(socketPath string) (net.Listener, error) {
	if socketPath == "" {
		return nil, errors.New("socket_path is required")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), runDirPerms); err != nil {
		return nil, fmt.Errorf("create socket dir %s: %w", filepath.Dir(socketPath), err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", socketPath, err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, socketPerms); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket %s: %w", socketPath, err)
	}
	return listener, nil
}
