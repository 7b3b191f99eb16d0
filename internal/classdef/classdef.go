// Package classdef implements the "Config loader" external
// collaborator (spec §6.3): it turns job class YAML files on disk
// into core.ClassSpec values, respecting confdir precedence.
package classdef

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/initcore/initd/internal/core"
	"gopkg.in/yaml.v3"
)

type rlimitSpec struct {
	Resource string `yaml:"resource"`
	Soft     int64  `yaml:"soft"`
	Hard     int64  `yaml:"hard"`
}

type respawnSpec struct {
	Enabled  bool          `yaml:"enabled"`
	Limit    int           `yaml:"limit"`
	Interval time.Duration `yaml:"interval"`
}

type classFile struct {
	Name        string              `yaml:"name"`
	Instance    string              `yaml:"instance"`
	StartOn     string              `yaml:"start_on"`
	StopOn      string              `yaml:"stop_on"`
	Process     map[string][]string `yaml:"process"`
	Expect      string              `yaml:"expect"`
	KillSignal  string              `yaml:"kill_signal"`
	KillTimeout time.Duration       `yaml:"kill_timeout"`
	Respawn     respawnSpec         `yaml:"respawn"`
	NormalExit  []int               `yaml:"normal_exit"`
	Umask       int                 `yaml:"umask"`
	Nice        int                 `yaml:"nice"`
	OOMScore    int                 `yaml:"oom_score"`
	Rlimits     []rlimitSpec        `yaml:"rlimits"`
	Chroot      string              `yaml:"chroot"`
	Chdir       string              `yaml:"chdir"`
	UID         int                 `yaml:"uid"`
	GID         int                 `yaml:"gid"`
	Export      []string            `yaml:"export"`
	Emits       []string            `yaml:"emits"`
	Task        bool                `yaml:"task"`
	Console     string              `yaml:"console"`
}

var processNames = map[string]core.ProcessType{
	"pre-start":  core.ProcessPreStart,
	"main":       core.ProcessMain,
	"post-start": core.ProcessPostStart,
	"pre-stop":   core.ProcessPreStop,
	"post-stop":  core.ProcessPostStop,
}

var expectModes = map[string]core.ExpectMode{
	"":       core.ExpectNone,
	"none":   core.ExpectNone,
	"daemon": core.ExpectDaemon,
	"fork":   core.ExpectFork,
	"stop":   core.ExpectStop,
}

// LoadDir reads every *.yaml/*.yml file in dir (in file-name order;
// core.Registry.Load later assigns LoadSeq in the order the specs are
// loaded) and parses it into a core.ClassSpec. session, if non-nil, is attached
// to every class loaded from this directory (per-user confdirs load
// with a non-nil session; the system confdir loads with nil).
func LoadDir(dir string, session *core.Session) ([]*core.ClassSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("classdef: read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	specs := make([]*core.ClassSpec, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		spec, err := loadFile(path, session)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func loadFile(path string, session *core.Session) (*core.ClassSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classdef: read %s: %w", path, err)
	}
	var f classFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("classdef: parse %s: %w", path, err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("classdef: %s missing name", path)
	}

	spec := &core.ClassSpec{
		Name:        f.Name,
		Instance:    f.Instance,
		KillSignal:  f.KillSignal,
		KillTimeout: f.KillTimeout,
		Respawn: core.RespawnPolicy{
			Enabled:  f.Respawn.Enabled,
			Limit:    f.Respawn.Limit,
			Interval: f.Respawn.Interval,
		},
		Umask:      f.Umask,
		Nice:       f.Nice,
		OOMScore:   f.OOMScore,
		Chroot:     f.Chroot,
		Chdir:      f.Chdir,
		UID:        f.UID,
		GID:        f.GID,
		Export:     f.Export,
		Emits:      f.Emits,
		Task:       f.Task,
		Console:    f.Console,
		Session:    session,
		SourcePath: path,
	}

	if err := applyOperators(spec, f); err != nil {
		return nil, err
	}
	if err := applyProcesses(spec, f, path); err != nil {
		return nil, err
	}

	mode, ok := expectModes[strings.ToLower(f.Expect)]
	if !ok {
		return nil, fmt.Errorf("classdef: %s unknown expect mode %q", path, f.Expect)
	}
	spec.Expect = mode

	if len(f.NormalExit) > 0 {
		spec.NormalExit = make(map[int]bool, len(f.NormalExit))
		for _, code := range f.NormalExit {
			spec.NormalExit[code] = true
		}
	}
	for _, r := range f.Rlimits {
		spec.Rlimits = append(spec.Rlimits, core.RlimitSpec{Resource: r.Resource, Soft: r.Soft, Hard: r.Hard})
	}

	return spec, nil
}

func applyOperators(spec *core.ClassSpec, f classFile) error {
	if f.StartOn != "" {
		op, err := parseExpr(f.StartOn)
		if err != nil {
			return fmt.Errorf("classdef: %s start_on: %w", spec.SourcePath, err)
		}
		spec.StartOn = op
	}
	if f.StopOn != "" {
		op, err := parseExpr(f.StopOn)
		if err != nil {
			return fmt.Errorf("classdef: %s stop_on: %w", spec.SourcePath, err)
		}
		spec.StopOn = op
	}
	return nil
}

func applyProcesses(spec *core.ClassSpec, f classFile, path string) error {
	if len(f.Process) == 0 {
		return nil
	}
	spec.Process = make(map[core.ProcessType]core.ProcessSpec, len(f.Process))
	for key, cmd := range f.Process {
		pt, ok := processNames[strings.ToLower(key)]
		if !ok {
			return fmt.Errorf("classdef: %s unknown process slot %q", path, key)
		}
		if len(cmd) == 0 {
			return fmt.Errorf("classdef: %s process %q has an empty command", path, key)
		}
		spec.Process[pt] = core.ProcessSpec{Command: cmd}
	}
	return nil
}

func isYAML(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
