package core

import (
	"encoding/json"
	"fmt"
)

// EncodeSnapshot renders snap as the self-describing JSON format
// spec §6.4 permits ("any self-describing format is acceptable").
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// DecodeSnapshot parses the format produced by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Snapshot is the self-describing serialisation of the whole live
// graph (spec §6.4). References between objects are stable integer
// indices assigned at encode time, resolved back into pointers at
// decode time.
type Snapshot struct {
	Sessions []sessionSnap `json:"sessions"`
	Classes  []classSnap   `json:"classes"`
	Events   []eventSnap   `json:"events"`
	Jobs     []jobSnap     `json:"jobs"`
}

type sessionSnap struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Chroot string `json:"chroot"`
	UID    int    `json:"uid"`
}

type classSnap struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	LoadSeq    int    `json:"load_seq"`
	SessionID  int    `json:"session_id"` // 0 = system session
	Deleted    bool   `json:"deleted"`
}

// blockedSnap is a type-tagged reference into either an event or a
// job, per spec §6.4's "blocking list as type-tagged references".
type blockedSnap struct {
	Kind  string `json:"kind"` // "job" | "event"
	JobID int    `json:"job_id,omitempty"`
	EventID int  `json:"event_id,omitempty"`
}

type eventSnap struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Env       Env           `json:"env"`
	SessionID int           `json:"session_id"`
	Progress  Progress      `json:"progress"`
	Failed    bool          `json:"failed"`
	Blockers  int           `json:"blockers"`
	Blocking  []blockedSnap `json:"blocking"`
}

type jobSnap struct {
	ID            int           `json:"id"`
	ClassID       int           `json:"class_id"`
	Name          string        `json:"name"`
	Goal          Goal          `json:"goal"`
	State         State         `json:"state"`
	Pid           [5]int        `json:"pid"`
	Env           Env           `json:"env"`
	StartEnv      Env           `json:"start_env,omitempty"`
	StopEnv       Env           `json:"stop_env,omitempty"`
	BlockerID     int           `json:"blocker_id,omitempty"` // 0 = none
	Blocking      []blockedSnap `json:"blocking"`
	Failed        bool          `json:"failed"`
	FailedProcess int           `json:"failed_process"`
	ExitStatus    int           `json:"exit_status"`
	RespawnCount  int           `json:"respawn_count"`
}

// Snapshot encodes the whole live graph. Only classes with >=1
// instance are included, per spec §6.4.
func (c *Core) Snapshot() *Snapshot {
	snap := &Snapshot{}
	sessionID := map[*Session]int{}
	for _, s := range c.sessions {
		sessionID[s] = s.id
		snap.Sessions = append(snap.Sessions, sessionSnap{
			ID: s.id, Name: s.Name, Chroot: s.Chroot, UID: s.UID,
		})
	}

	eventID := map[*Event]int{}
	for _, e := range c.Queue.Events() {
		eventID[e] = e.id
	}

	for _, chain := range c.Registry.classes {
		for _, class := range chain {
			if len(class.instances) == 0 {
				continue
			}
			sid := 0
			if class.Session != nil {
				sid = sessionID[class.Session]
			}
			snap.Classes = append(snap.Classes, classSnap{
				ID: class.id, Name: class.Name, SourcePath: class.SourcePath,
				LoadSeq: class.LoadSeq, SessionID: sid, Deleted: class.Deleted,
			})
			for _, job := range class.instances {
				snap.Jobs = append(snap.Jobs, encodeJob(job, eventID))
			}
		}
	}

	for _, e := range c.Queue.Events() {
		sid := 0
		if e.Session != nil {
			sid = sessionID[e.Session]
		}
		snap.Events = append(snap.Events, eventSnap{
			ID: e.id, Name: e.Name, Env: e.EnvVars, SessionID: sid,
			Progress: e.Progress, Failed: e.Failed, Blockers: e.blockers,
			Blocking: encodeBlocking(e.blocking),
		})
	}

	return snap
}

func encodeJob(j *Job, eventID map[*Event]int) jobSnap {
	js := jobSnap{
		ID: j.id, ClassID: j.Class.id, Name: j.Name, Goal: j.Goal, State: j.State,
		Env: j.EnvVars, StartEnv: j.StartEnv, StopEnv: j.StopEnv,
		Failed: j.Failed, FailedProcess: int(j.FailedProcess),
		ExitStatus: j.ExitStatus, RespawnCount: j.RespawnCount,
		Blocking: encodeBlocking(j.blocking),
	}
	for pt := 0; pt < int(processTypeCount); pt++ {
		js.Pid[pt] = j.pid[pt]
	}
	if j.blocker != nil {
		js.BlockerID = eventID[j.blocker]
	}
	return js
}

func encodeBlocking(list []*Blocked) []blockedSnap {
	out := make([]blockedSnap, 0, len(list))
	for _, b := range list {
		switch b.Kind {
		case BlockedJob:
			out = append(out, blockedSnap{Kind: "job", JobID: b.Job.id})
		case BlockedEvent:
			out = append(out, blockedSnap{Kind: "event", EventID: b.Event.id})
		default:
			// RPC-reply variants never survive a re-exec: the
			// process holding the connection is gone. The caller
			// observes a connection reset and may retry with wait=true
			// against the new instance.
		}
	}
	return out
}

// Restore decodes snap into a fresh Core graph. Per spec's Open
// Question 1 (see DESIGN.md), serialised blocking edges are restored
// as live references, not dropped: every Blocked record is
// reconstructed and re-registers its target's blocker count so the
// invariant in spec §8 ("blockers == count of referencing Blocked
// records") holds immediately after restore.
func Restore(snap *Snapshot, spawner Spawner, logs LogWriter, timers TimerService) (*Core, error) {
	c := New(spawner, logs, timers, nil)

	sessionByID := map[int]*Session{0: nil}
	for _, ss := range snap.Sessions {
		s := &Session{id: ss.ID, Name: ss.Name, Chroot: ss.Chroot, UID: ss.UID}
		sessionByID[ss.ID] = s
		c.sessions = append(c.sessions, s)
		if ss.ID >= c.nextSessionID {
			c.nextSessionID = ss.ID
		}
	}

	classByID := map[int]*JobClass{}
	for _, cs := range snap.Classes {
		class := &JobClass{id: cs.ID, ClassSpec: &ClassSpec{
			Name: cs.Name, SourcePath: cs.SourcePath, LoadSeq: cs.LoadSeq,
			Session: sessionByID[cs.SessionID],
		}, instances: map[string]*Job{}, Deleted: cs.Deleted}
		classByID[cs.ID] = class
		c.Registry.classes[cs.Name] = append(c.Registry.classes[cs.Name], class)
		if cs.ID >= c.Registry.nextID {
			c.Registry.nextID = cs.ID
		}
	}
	for name, chain := range c.Registry.classes {
		c.Registry.sortChain(chain)
		c.Registry.classes[name] = chain
	}

	eventByID := map[int]*Event{}
	for _, es := range snap.Events {
		e := &Event{
			id: es.ID, Name: es.Name, EnvVars: es.Env, Session: sessionByID[es.SessionID],
			Progress: es.Progress, Failed: es.Failed,
		}
		eventByID[es.ID] = e
		c.Queue.restore(e)
	}

	jobByID := map[int]*Job{}
	for _, js := range snap.Jobs {
		class, ok := classByID[js.ClassID]
		if !ok {
			return nil, fmt.Errorf("core: snapshot job %d references unknown class %d", js.ID, js.ClassID)
		}
		j := &Job{
			id: js.ID, Class: class, Name: js.Name, Goal: js.Goal, State: js.State,
			EnvVars: js.Env, StartEnv: js.StartEnv, StopEnv: js.StopEnv,
			Failed: js.Failed, FailedProcess: ProcessType(js.FailedProcess),
			ExitStatus: js.ExitStatus, RespawnCount: js.RespawnCount,
			StopOn: class.StopOn.Clone(),
		}
		for pt := 0; pt < len(js.Pid); pt++ {
			j.pid[pt] = js.Pid[pt]
		}
		jobByID[js.ID] = j
		class.addInstance(j)
		if j.id >= c.nextJobID {
			c.nextJobID = j.id
		}
	}

	// Second pass: resolve cross-references now every Event/Job
	// exists, restoring blocking edges as live Blocked records and
	// re-registering each target's blocker count.
	for _, js := range snap.Jobs {
		j := jobByID[js.ID]
		if js.BlockerID != 0 {
			j.blocker = eventByID[js.BlockerID]
		}
		j.blocking = decodeBlocking(js.Blocking, jobByID, eventByID)
	}
	for _, es := range snap.Events {
		e := eventByID[es.ID]
		e.blocking = decodeBlocking(es.Blocking, jobByID, eventByID)
		e.blockers = 0
	}
	// blockers is derived, not trusted from the wire: recompute by
	// walking every blocking list and counting EVENT-kind targets,
	// so the count invariant holds even if the encoder and decoder
	// versions disagree on bookkeeping.
	recomputeBlockers(c, jobByID, eventByID)

	return c, nil
}

func decodeBlocking(snaps []blockedSnap, jobByID map[int]*Job, eventByID map[int]*Event) []*Blocked {
	out := make([]*Blocked, 0, len(snaps))
	for _, bs := range snaps {
		switch bs.Kind {
		case "job":
			if j, ok := jobByID[bs.JobID]; ok {
				out = append(out, NewJobBlocked(j))
			}
		case "event":
			if e, ok := eventByID[bs.EventID]; ok {
				out = append(out, NewEventBlocked(e))
			}
		}
	}
	return out
}

func recomputeBlockers(c *Core, jobByID map[int]*Job, eventByID map[int]*Event) {
	for _, j := range jobByID {
		for _, b := range j.blocking {
			if b.Kind == BlockedEvent {
				b.Event.blockers++
			}
		}
	}
	for _, e := range eventByID {
		for _, b := range e.blocking {
			if b.Kind == BlockedEvent {
				b.Event.blockers++
			}
		}
	}
}
