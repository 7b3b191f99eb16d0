package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/initcore/initd/internal/core"
)

// jobView is the wire shape of one instance returned by /v1/jobs.
type jobView struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
	Goal     string `json:"goal"`
	State    string `json:"state"`
	Pid      int    `json:"pid"`
	Failed   bool   `json:"failed"`
}

func newJobView(j *core.Job) jobView {
	return jobView{
		Class:    j.Class.Name,
		Instance: j.Name,
		Goal:     j.Goal.String(),
		State:    j.State.String(),
		Pid:      j.Pid(core.ProcessMain),
		Failed:   j.Failed,
	}
}

type listJobsResult struct {
	jobs []*core.Job
	err  error
}

// handleListJobs implements GET /v1/jobs?class=NAME (class optional).
func (api *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")
	result := make(chan listJobsResult, 1)
	api.Core.Submit(func() {
		jobs, err := api.Core.ListInstances(class)
		result <- listJobsResult{jobs, err}
	})
	res := <-result
	if res.err != nil {
		writeError(w, http.StatusNotFound, res.err.Error())
		return
	}
	views := make([]jobView, 0, len(res.jobs))
	for _, j := range res.jobs {
		views = append(views, newJobView(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

// jobRequest is the shared request body for start/stop/restart.
type jobRequest struct {
	Class    string   `json:"class"`
	Instance string   `json:"instance"`
	Env      []string `json:"env"`
	Wait     bool     `json:"wait"`
	Session  string   `json:"session"`
}

func decodeJobRequest(r *http.Request) (jobRequest, error) {
	var req jobRequest
	if r.Body == nil {
		return req, nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

// handleStart implements POST /v1/jobs/start (spec §6.3 "start").
func (api *API) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJobRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Class == "" {
		writeError(w, http.StatusBadRequest, "class is required")
		return
	}
	h := core.JobHandle{Class: req.Class, Instance: req.Instance}
	env := core.Env(req.Env)

	if !req.Wait {
		api.Core.Submit(func() {
			_, _ = api.Core.StartJob(h, env, nil)
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	reply := newChanReply()
	api.Core.Submit(func() {
		_, _ = api.Core.StartJob(h, env, reply)
	})
	api.awaitReply(w, r, reply)
}

// handleStop implements POST /v1/jobs/stop (spec §6.3 "stop").
func (api *API) handleStop(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJobRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Class == "" {
		writeError(w, http.StatusBadRequest, "class is required")
		return
	}
	h := core.JobHandle{Class: req.Class, Instance: req.Instance}

	if !req.Wait {
		api.Core.Submit(func() {
			_, _ = api.Core.StopJob(h, nil)
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	reply := newChanReply()
	api.Core.Submit(func() {
		_, _ = api.Core.StopJob(h, reply)
	})
	api.awaitReply(w, r, reply)
}

// handleRestart implements POST /v1/jobs/restart (spec §6.3 "restart").
func (api *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJobRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Class == "" {
		writeError(w, http.StatusBadRequest, "class is required")
		return
	}
	h := core.JobHandle{Class: req.Class, Instance: req.Instance}
	env := core.Env(req.Env)

	if !req.Wait {
		api.Core.Submit(func() {
			_, _ = api.Core.RestartJob(h, env, nil)
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	reply := newChanReply()
	api.Core.Submit(func() {
		_, _ = api.Core.RestartJob(h, env, reply)
	})
	api.awaitReply(w, r, reply)
}

// emitRequest is the request body for POST /v1/events/emit.
type emitRequest struct {
	Name    string   `json:"name"`
	Env     []string `json:"env"`
	Session string   `json:"session"`
	Wait    bool     `json:"wait"`
}

// handleEmit implements POST /v1/events/emit (spec §6.3 "emit").
func (api *API) handleEmit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	env := core.Env(req.Env)

	if !req.Wait {
		api.Core.Submit(func() {
			var session *core.Session
			if req.Session != "" {
				session = api.Core.FindSession(req.Session)
			}
			api.Core.Emit(req.Name, env, session)
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	reply := newChanReply()
	api.Core.Submit(func() {
		var session *core.Session
		if req.Session != "" {
			session = api.Core.FindSession(req.Session)
		}
		api.Core.EmitWait(req.Name, env, session, reply)
	})
	api.awaitReply(w, r, reply)
}

// handleEventHistory implements GET /v1/events/history, the audit
// log tap backed by internal/db rather than the live (ephemeral)
// event queue.
func (api *API) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if api.Store == nil {
		writeError(w, http.StatusNotImplemented, "event history is not available without a database")
		return
	}
	name := r.URL.Query().Get("name")
	events, err := api.Store.ListEvents(r.Context(), name, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleJobHistory implements GET /v1/jobs/history?class=X&instance=Y.
func (api *API) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	if api.Store == nil {
		writeError(w, http.StatusNotImplemented, "job history is not available without a database")
		return
	}
	class := r.URL.Query().Get("class")
	if class == "" {
		writeError(w, http.StatusBadRequest, "class is required")
		return
	}
	instance := r.URL.Query().Get("instance")
	transitions, err := api.Store.ListTransitions(r.Context(), class, instance, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

// handleStatus implements GET /v1/status: a lightweight overall
// snapshot of job counts by state, used for health dashboards.
func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	result := make(chan []*core.Job, 1)
	api.Core.Submit(func() {
		jobs, _ := api.Core.ListInstances("")
		result <- jobs
	})
	jobs := <-result
	counts := map[string]int{}
	for _, j := range jobs {
		counts[j.State.String()]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(jobs), "by_state": counts})
}

// awaitReply waits for a chanReply to resolve or for the request
// context to be cancelled, and writes the appropriate JSON response.
func (api *API) awaitReply(w http.ResponseWriter, r *http.Request, reply *chanReply) {
	select {
	case err := <-reply.done:
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case <-r.Context().Done():
		writeError(w, http.StatusGatewayTimeout, "client disconnected before job settled")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventsWS implements GET /v1/events: a websocket that streams
// every finished event as JSON, fed by onEventFinished via Core's
// EventSink tap (spec §6.3 "Control RPC" live event tail).
func (api *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		api.Log.Warn("events websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan []byte, 64)
	api.subMu.Lock()
	api.subs[ch] = struct{}{}
	api.subMu.Unlock()
	defer func() {
		api.subMu.Lock()
		delete(api.subs, ch)
		api.subMu.Unlock()
		close(ch)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go api.drainClientReads(conn, cancel)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainClientReads keeps the websocket's read side pumping (required
// by gorilla/websocket to process control frames) and cancels ctx once
// the client disconnects.
func (api *API) drainClientReads(conn *websocket.Conn, cancel func()) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// eventWireRecord is the JSON shape pushed to websocket subscribers.
type eventWireRecord struct {
	Name   string   `json:"name"`
	Env    []string `json:"env"`
	Failed bool     `json:"failed"`
}

// onEventFinished is installed as Core.EventSink: it persists the
// event to the audit log and fans it out to every live websocket
// subscriber.
func (api *API) onEventFinished(e *core.Event) {
	rec := eventWireRecord{Name: e.Name, Env: []string(e.EnvVars), Failed: e.Failed}
	msg, err := json.Marshal(rec)
	if err != nil {
		return
	}

	if api.Store != nil {
		session := ""
		if e.Session != nil {
			session = e.Session.Name
		}
		envJSON, _ := json.Marshal([]string(e.EnvVars))
		_ = api.Store.RecordEvent(context.Background(), e.Name, session, string(envJSON), e.Failed)
	}
	if api.Metrics != nil {
		api.Metrics.IncEvent(e.Name, e.Failed)
	}

	api.subMu.Lock()
	defer api.subMu.Unlock()
	for ch := range api.subs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber: drop rather than block the core goroutine.
		}
	}
}

// onTransition is installed as Core.TransitionSink: every job state
// change is persisted to the audit log.
func (api *API) onTransition(j *core.Job, from, to core.State) {
	if api.Store != nil {
		_ = api.Store.RecordTransition(context.Background(), j.Class.Name, j.Name, from.String(), to.String(), j.Goal.String())
	}
	if api.Metrics != nil {
		api.Metrics.IncTransition(j.Class.Name, from.String(), to.String())
		if to == core.StateStarting && j.Goal == core.GoalRespawn {
			api.Metrics.IncRespawn(j.Class.Name)
		}
	}
}

// onFailure is installed as Core.FailureSink: a job's first recorded
// failure is persisted to the audit log.
func (api *API) onFailure(j *core.Job, process core.ProcessType, status int) {
	respawn := process < 0
	processName := process.String()
	if respawn {
		processName = "respawn"
	}
	if api.Store != nil {
		_ = api.Store.RecordFailure(context.Background(), j.Class.Name, j.Name, processName, status, respawn)
	}
	if api.Metrics != nil {
		api.Metrics.IncFailure(j.Class.Name, processName)
	}
}
