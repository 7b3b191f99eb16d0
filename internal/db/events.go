package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventRecord is one audit-log row for an emitted event, independent
// of the live core.Event which is gone as soon as it reaches FINISHED.
type EventRecord struct {
	ID        int64
	Name      string
	Session   string
	EnvJSON   string
	Failed    bool
	EmittedAt time.Time
}

// RecordEvent appends one emitted event to the audit log.
func (s *Store) RecordEvent(ctx context.Context, name, session, envJSON string, failed bool) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("event name is required")
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO events (name, session, env_json, failed, emitted_at)
		VALUES (?, ?, ?, ?, ?)`, name, session, envJSON, boolToInt(failed), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events, newest first, optionally
// filtered by name. limit <= 0 defaults to 100.
func (s *Store) ListEvents(ctx context.Context, name string, limit int) ([]EventRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if strings.TrimSpace(name) == "" {
		rows, err = s.DB.QueryContext(ctx, `SELECT id, name, session, env_json, failed, emitted_at
			FROM events ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT id, name, session, env_json, failed, emitted_at
			FROM events WHERE name = ? ORDER BY id DESC LIMIT ?`, name, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var session sql.NullString
		var failed int
		var emittedAt string
		if err := rows.Scan(&rec.ID, &rec.Name, &session, &rec.EnvJSON, &failed, &emittedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Session = session.String
		rec.Failed = failed != 0
		ts, err := time.Parse(time.RFC3339Nano, emittedAt)
		if err != nil {
			return nil, fmt.Errorf("parse emitted_at: %w", err)
		}
		rec.EmittedAt = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// TransitionRecord is one audit-log row for a job state change.
type TransitionRecord struct {
	ID        int64
	Class     string
	Instance  string
	FromState string
	ToState   string
	Goal      string
	At        time.Time
}

// RecordTransition appends one job state transition to the audit log.
func (s *Store) RecordTransition(ctx context.Context, class, instance, fromState, toState, goal string) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO job_transitions (class, instance, from_state, to_state, goal, at)
		VALUES (?, ?, ?, ?, ?, ?)`, class, instance, fromState, toState, goal, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// ListTransitions returns the most recent transitions for a class,
// newest first. instance == "" matches the singleton instance only
// (pass "*" is not supported; callers filter by class elsewhere).
func (s *Store) ListTransitions(ctx context.Context, class, instance string, limit int) ([]TransitionRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("db store is nil")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, class, instance, from_state, to_state, goal, at
		FROM job_transitions WHERE class = ? AND instance = ? ORDER BY id DESC LIMIT ?`, class, instance, limit)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()
	var out []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var at string
		if err := rows.Scan(&rec.ID, &rec.Class, &rec.Instance, &rec.FromState, &rec.ToState, &rec.Goal, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse at: %w", err)
		}
		rec.At = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// RecordFailure appends one job failure to the audit log.
func (s *Store) RecordFailure(ctx context.Context, class, instance, process string, exitStatus int, respawn bool) error {
	if s == nil || s.DB == nil {
		return errors.New("db store is nil")
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO job_failures (class, instance, process, exit_status, respawn, at)
		VALUES (?, ?, ?, ?, ?, ?)`, class, instance, process, exitStatus, boolToInt(respawn), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
