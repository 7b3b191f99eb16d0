package classdef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/initcore/initd/internal/core"
)

func writeClass(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDirParsesProcessTableAndOperators(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "sshd.yaml", `
name: sshd
start_on: started network-manager
stop_on: stopping network-manager
process:
  pre-start: ["/bin/true"]
  main: ["/usr/sbin/sshd", "-D"]
respawn:
  enabled: true
  limit: 5
  interval: 60s
normal_exit: [0]
`)

	specs, err := LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected 1 class, got %d", len(specs))
	}
	spec := specs[0]
	if spec.Name != "sshd" {
		t.Fatalf("expected name sshd, got %q", spec.Name)
	}
	if spec.StartOn == nil || spec.StopOn == nil {
		t.Fatalf("expected both operator trees to be parsed")
	}
	if len(spec.Process) != 2 {
		t.Fatalf("expected 2 process entries, got %d", len(spec.Process))
	}
	if !spec.Respawn.Enabled || spec.Respawn.Limit != 5 {
		t.Fatalf("expected respawn policy to be parsed, got %+v", spec.Respawn)
	}
	if !spec.NormalExit[0] {
		t.Fatalf("expected normal_exit to include 0")
	}
}

func TestLoadDirRejectsUnknownProcessSlot(t *testing.T) {
	dir := t.TempDir()
	writeClass(t, dir, "bad.yaml", `
name: bad
process:
  bogus: ["/bin/true"]
`)
	if _, err := LoadDir(dir, nil); err == nil {
		t.Fatalf("expected an error for an unknown process slot")
	}
}

func TestParseExprBuildsMatchTree(t *testing.T) {
	op, err := parseExpr("started network-manager or (stopped foo and started bar)")
	if err != nil {
		t.Fatalf("parseExpr: %v", err)
	}
	ev := core.NewEvent(1, "started", core.Env{"network-manager"}, nil)
	if !op.Handle(ev, nil) {
		t.Fatalf("expected the first disjunct to match")
	}
}

func TestParseArgBindingForms(t *testing.T) {
	m := parseArg("JOB=hello")
	if m.EnvRef || m.Literal != "hello" || m.RefName != "JOB" {
		t.Fatalf("unexpected literal-with-binding matcher: %+v", m)
	}
	ref := parseArg("JOB=$INSTANCE")
	if !ref.EnvRef || ref.RefName != "INSTANCE" {
		t.Fatalf("unexpected env-ref matcher: %+v", ref)
	}
	bare := parseArg("plain")
	if bare.EnvRef || bare.Literal != "plain" || bare.RefName != "" {
		t.Fatalf("unexpected bare matcher: %+v", bare)
	}
}
