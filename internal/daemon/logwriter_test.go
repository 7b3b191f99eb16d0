package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/initcore/initd/internal/core"
)

func testJob(name string, env core.Env) *core.Job {
	class := &core.JobClass{ClassSpec: &core.ClassSpec{Name: "web"}}
	return &core.Job{Class: class, Name: name, EnvVars: env}
}

func TestFileLogWriterWritesToPerProcessFile(t *testing.T) {
	dir := t.TempDir()
	w := NewFileLogWriter(dir, nil)
	job := testJob("", nil)

	out, closeFn, err := w.Open(job, core.ProcessMain)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if _, err := out.Write([]byte("listening on :8080\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	closeFn()

	path := filepath.Join(dir, "web.main.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if string(data) != "listening on :8080\n" {
		t.Fatalf("unexpected log contents: %q", data)
	}
}

func TestFileLogWriterNamesInstancesDistinctly(t *testing.T) {
	dir := t.TempDir()
	w := NewFileLogWriter(dir, nil)
	job := testJob("worker-1", nil)

	_, closeFn, err := w.Open(job, core.ProcessMain)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if _, err := os.Stat(filepath.Join(dir, "web-worker-1.main.log")); err != nil {
		t.Fatalf("expected instance-qualified log file: %v", err)
	}
}

func TestFileLogWriterRedactsSensitiveEnvValues(t *testing.T) {
	dir := t.TempDir()
	redactor := NewRedactor(nil)
	w := NewFileLogWriter(dir, redactor)
	job := testJob("", core.Env{"API_TOKEN=sekrit-value-123"})

	out, closeFn, err := w.Open(job, core.ProcessMain)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if _, err := out.Write([]byte(`api_token="sekrit-value-123"` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	closeFn()

	data, err := os.ReadFile(filepath.Join(dir, "web.main.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if contains(string(data), "sekrit-value-123") {
		t.Fatalf("expected token to be redacted, got %q", data)
	}
}

func TestNoOpLogWriterDiscardsWrites(t *testing.T) {
	w := NoOpLogWriter{}
	out, closeFn, err := w.Open(testJob("", nil), core.ProcessMain)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	n, err := out.Write([]byte("anything"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len("anything") {
		t.Fatalf("expected discard writer to report full write, got %d", n)
	}
}

func TestEnvKeysExtractsKeyHalf(t *testing.T) {
	keys := envKeys(core.Env{"FOO=bar", "TOKEN=abc", "EMPTY="})
	want := []string{"FOO", "TOKEN", "EMPTY"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d (%v)", len(want), len(keys), keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("key %d: expected %q, got %q", i, k, keys[i])
		}
	}
}

func contains(haystack, needle string) bool {
	return len(needle) > 0 && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
