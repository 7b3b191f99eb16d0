package control

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/initcore/initd/internal/core"
	"github.com/initcore/initd/internal/spawner"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	c := core.New(spawner.NewFakeSpawner(), nil, nil, slog.New(slog.DiscardHandler))
	return NewAPI(c, nil, nil, nil, slog.New(slog.DiscardHandler))
}

func TestHealthzIsReachableWithoutAuth(t *testing.T) {
	api := newTestAPI(t)
	router := mux.NewRouter()
	api.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequestIDMiddlewareStampsEveryResponse(t *testing.T) {
	api := newTestAPI(t)
	router := mux.NewRouter()
	api.Register(router)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	id := rec.Header().Get("X-Request-Id")
	if id == "" {
		t.Fatalf("expected a non-empty X-Request-Id header")
	}
}

func TestRequestIDsAreUniquePerRequest(t *testing.T) {
	api := newTestAPI(t)
	router := mux.NewRouter()
	api.Register(router)

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		id := rec.Header().Get("X-Request-Id")
		if ids[id] {
			t.Fatalf("expected unique request ids, saw %q twice", id)
		}
		ids[id] = true
	}
}
