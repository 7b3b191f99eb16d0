// Package testing provides shared test utilities and helper functions
// for initd.
//
// Key utilities:
//   - core factories: NewTestClassSpec, NewTestEvent
//   - test helpers: TempFile, OpenTestDB, AssertJSONEqual
//
// The package is designed to work with github.com/stretchr/testify for
// assertions and follows Go testing best practices.
package testing

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initcore/initd/internal/core"
)

// FixedTime is a fixed timestamp for deterministic tests.
var FixedTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// AssertJSONEqual asserts that two JSON values are semantically equal.
func AssertJSONEqual(t *testing.T, want, got any, msgAndArgs ...interface{}) {
	t.Helper()
	wantBytes, err := json.Marshal(want)
	require.NoError(t, err, "failed to marshal 'want' to JSON")
	gotBytes, err := json.Marshal(got)
	require.NoError(t, err, "failed to marshal 'got' to JSON")

	var wantAny, gotAny any
	require.NoError(t, json.Unmarshal(wantBytes, &wantAny), "failed to unmarshal 'want'")
	require.NoError(t, json.Unmarshal(gotBytes, &gotAny), "failed to unmarshal 'got'")

	assert.Equal(t, wantAny, gotAny, msgAndArgs...)
}

// TempFile creates a temporary file with the given content and returns its path.
func TempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "testfile")
	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err, "failed to write temp file")
	return path
}

// MkdirTempInDir creates a temporary directory under the given parent directory.
func MkdirTempInDir(t *testing.T, parentDir string) string {
	t.Helper()
	path, err := os.MkdirTemp(parentDir, "testdir*")
	require.NoError(t, err, "failed to create temp dir")
	t.Cleanup(func() {
		_ = os.RemoveAll(path)
	})
	return path
}

// ParseTime parses an RFC3339 timestamp.
func ParseTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err, "failed to parse time %q", s)
	return ts
}

// RequireNoError asserts that err is nil, with a more descriptive message.
func RequireNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// RequireEqual asserts that two values are equal, with a more descriptive message.
func RequireEqual(t *testing.T, expected, actual any, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, expected, actual, msgAndArgs...)
}

// ============================================================================
// core factory functions
// ============================================================================

// ClassOpts holds optional parameters for creating a test ClassSpec.
// Empty fields use sensible defaults defined in NewTestClassSpec.
type ClassOpts struct {
	Name    string
	Task    bool
	StartOn *core.EventOperator
	StopOn  *core.EventOperator
	Process map[core.ProcessType]core.ProcessSpec
	Respawn core.RespawnPolicy
	Session *core.Session
}

// NewTestClassSpec builds a *core.ClassSpec with sensible defaults,
// suitable for registering against a core.Registry in tests.
func NewTestClassSpec(opts ClassOpts) *core.ClassSpec {
	if opts.Name == "" {
		opts.Name = "test-svc"
	}
	if opts.Process == nil {
		opts.Process = map[core.ProcessType]core.ProcessSpec{
			core.ProcessMain: {Command: []string{"/bin/sleep", "100"}},
		}
	}
	return &core.ClassSpec{
		Name:    opts.Name,
		Task:    opts.Task,
		StartOn: opts.StartOn,
		StopOn:  opts.StopOn,
		Process: opts.Process,
		Respawn: opts.Respawn,
		Session: opts.Session,
	}
}

// NewTestEvent builds a *core.Event directly (bypassing the queue) for
// tests that only need a value to hand to an operator or matcher.
func NewTestEvent(id int, name string, env core.Env) *core.Event {
	return core.NewEvent(id, name, env, nil)
}

// ============================================================================
// Database test helpers
// ============================================================================

// OpenTestDB opens a test SQLite database in a temporary directory.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// RequireRowsAffected asserts that the expected number of rows were affected.
func RequireRowsAffected(t *testing.T, res sql.Result, expected int64) {
	t.Helper()
	n, err := res.RowsAffected()
	require.NoError(t, err, "failed to get rows affected")
	require.Equal(t, expected, n, "rows affected mismatch")
}

// RequireNoRows asserts that no rows exist in the table for the given query.
func RequireNoRows(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	var count int
	err := db.QueryRow(query, args...).Scan(&count)
	require.NoError(t, err, "failed to query rows")
	require.Equal(t, 0, count, "expected no rows")
}
