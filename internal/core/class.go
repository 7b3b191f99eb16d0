package core

import "time"

// ProcessSpec is one entry of a class's process command table.
type ProcessSpec struct {
	Command []string
}

// RlimitSpec records a single rlimit entry (resource name -> soft/hard).
type RlimitSpec struct {
	Resource string
	Soft     int64
	Hard     int64
}

// RespawnPolicy controls automatic restart of a job's main process.
type RespawnPolicy struct {
	Enabled  bool
	Limit    int
	Interval time.Duration
}

// ClassSpec is the immutable definition produced by the config
// loader collaborator (spec §6.3 "Config loader"). It is consumed by
// the registry to build/refresh a JobClass.
type ClassSpec struct {
	Name         string
	Instance     string // instance name template; empty => singleton
	StartOn      *EventOperator
	StopOn       *EventOperator
	Process      map[ProcessType]ProcessSpec
	Expect       ExpectMode
	KillSignal   string
	KillTimeout  time.Duration
	Respawn      RespawnPolicy
	NormalExit   map[int]bool
	Umask        int
	Nice         int
	OOMScore     int
	Rlimits      []RlimitSpec
	Chroot       string
	Chdir        string
	UID          int
	GID          int
	Export       []string
	Emits        []string
	Task         bool
	Console      string
	Session      *Session

	// Precedence fields used by the registry's consider/reconsider
	// walk (spec §4.E). SourcePath is the confdir-relative file the
	// class was loaded from; LoadSeq is assigned at load time and
	// breaks ties within the same session.
	SourcePath string
	LoadSeq    int
}

// JobClass is a loaded, possibly-displaced job template plus its
// instance hash. See spec §3 "JobClass".
type JobClass struct {
	id int
	*ClassSpec

	instances map[string]*Job
	Deleted   bool
}

func newJobClass(id int, spec *ClassSpec) *JobClass {
	return &JobClass{id: id, ClassSpec: spec, instances: map[string]*Job{}}
}

// ID is the stable integer identity for snapshot references.
func (c *JobClass) ID() int { return c.id }

// Instance looks up an existing job instance by its expanded name.
func (c *JobClass) Instance(name string) (*Job, bool) {
	j, ok := c.instances[name]
	return j, ok
}

// Instances returns all live instances, in no particular order.
func (c *JobClass) Instances() []*Job {
	out := make([]*Job, 0, len(c.instances))
	for _, j := range c.instances {
		out = append(out, j)
	}
	return out
}

func (c *JobClass) addInstance(j *Job) {
	c.instances[j.Name] = j
}

func (c *JobClass) removeInstance(name string) {
	delete(c.instances, name)
}

// HasProcess reports whether the class defines a hook for pt.
func (c *JobClass) HasProcess(pt ProcessType) bool {
	_, ok := c.Process[pt]
	return ok
}

// IsNormalExit reports whether status is in the class's configured
// set of exit codes that do not count as a failure.
func (c *JobClass) IsNormalExit(status int) bool {
	return c.NormalExit[status]
}
