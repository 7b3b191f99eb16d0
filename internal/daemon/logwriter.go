package daemon

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/initcore/initd/internal/core"
)

const logFilePerms = 0o640
const logDirPerms = 0o750

// FileLogWriter implements core.LogWriter: one append-only file per
// (job, process) under dir, scrubbed through a Redactor before
// anything hits disk, since a job's env can carry API tokens.
type FileLogWriter struct {
	dir      string
	redactor *Redactor
}

// NewFileLogWriter returns a LogWriter rooted at dir. redactor may be
// nil, disabling scrubbing.
func NewFileLogWriter(dir string, redactor *Redactor) *FileLogWriter {
	return &FileLogWriter{dir: dir, redactor: redactor}
}

// Open implements core.LogWriter.
func (w *FileLogWriter) Open(job *core.Job, process core.ProcessType) (io.Writer, func(), error) {
	if err := os.MkdirAll(w.dir, logDirPerms); err != nil {
		return nil, nil, fmt.Errorf("create log dir %s: %w", w.dir, err)
	}
	name := job.Class.Name
	if job.Name != "" {
		name = name + "-" + job.Name
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s.%s.log", name, process.String()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerms)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	if w.redactor != nil {
		w.redactor.AddKeys(envKeys(job.EnvVars)...)
	}
	return &redactingWriter{f: f, redactor: w.redactor}, func() { _ = f.Close() }, nil
}

// redactingWriter scrubs each write through Redactor before it
// reaches the underlying file. Redaction is regex-based over whatever
// chunk the process wrote, which is good enough for the key=value and
// JSON-field shapes Redactor targets; it does not attempt to
// reassemble values split across two writes.
type redactingWriter struct {
	f        *os.File
	redactor *Redactor
}

func (r *redactingWriter) Write(p []byte) (int, error) {
	if r.redactor == nil {
		return r.f.Write(p)
	}
	scrubbed := r.redactor.Redact(string(p))
	if _, err := r.f.WriteString(scrubbed); err != nil {
		return 0, err
	}
	return len(p), nil
}

// envKeys extracts the KEY half of every "KEY=VALUE" entry in env.
func envKeys(env core.Env) []string {
	keys := make([]string, 0, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				keys = append(keys, kv[:i])
				break
			}
		}
	}
	return keys
}

// NoOpLogWriter discards every write, used when --no-log is set.
type NoOpLogWriter struct{}

func (NoOpLogWriter) Open(*core.Job, core.ProcessType) (io.Writer, func(), error) {
	return discardWriter{}, func() {}, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
