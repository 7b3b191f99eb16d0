package control

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/initcore/initd/internal/core"
	"github.com/initcore/initd/internal/db"
	"github.com/initcore/initd/internal/metrics"
)

type requestIDKey struct{}

// requestIDFrom returns the request ID stamped by requestIDMiddleware,
// or "" if none is present (e.g. in a unit test that calls a handler
// directly).
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware stamps every request with a UUID, logs it
// alongside the method and path, and echoes it back on the response
// so a caller can correlate a control command with the daemon's log.
func requestIDMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.New().String()
			w.Header().Set("X-Request-Id", id)
			logger.Debug("control request", "request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// API is the HTTP+JSON control plane fronting one core.Core (spec
// §6.3 "Control RPC"). Every handler submits its work onto the
// Core's own goroutine via core.Submit rather than touching Core
// state directly, per spec §5's single-threaded-cooperative model.
type API struct {
	Core    *core.Core
	Store   *db.Store
	Metrics *metrics.Metrics
	Auth    *Auth
	Log     *slog.Logger

	subMu sync.Mutex
	subs  map[chan []byte]struct{}
}

// NewAPI constructs an API. auth may be nil, disabling bearer/CIDR
// checks (e.g. for a unix socket already restricted by file perms).
// m may be nil, disabling Prometheus instrumentation.
func NewAPI(c *core.Core, store *db.Store, m *metrics.Metrics, auth *Auth, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{Core: c, Store: store, Metrics: m, Auth: auth, Log: logger, subs: map[chan []byte]struct{}{}}
	c.EventSink = api.onEventFinished
	c.TransitionSink = api.onTransition
	c.FailureSink = api.onFailure
	return api
}

// Register wires every v1 endpoint onto router, wrapping the whole
// thing in bearer/CIDR auth if configured.
func (api *API) Register(router *mux.Router) {
	router.Use(requestIDMiddleware(api.Log))
	router.HandleFunc("/healthz", api.handleHealthz)
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/jobs", api.handleListJobs).Methods("GET")
	v1.HandleFunc("/jobs/start", api.handleStart).Methods("POST")
	v1.HandleFunc("/jobs/stop", api.handleStop).Methods("POST")
	v1.HandleFunc("/jobs/restart", api.handleRestart).Methods("POST")
	v1.HandleFunc("/events/emit", api.handleEmit).Methods("POST")
	v1.HandleFunc("/events/history", api.handleEventHistory).Methods("GET")
	v1.HandleFunc("/jobs/history", api.handleJobHistory).Methods("GET")
	v1.HandleFunc("/status", api.handleStatus).Methods("GET")
	v1.HandleFunc("/events", api.handleEventsWS).Methods("GET")

	if api.Auth != nil {
		router.Use(api.Auth.Wrap)
	}
}

func (api *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
