// Package procstat samples live resource usage for a job's main pid,
// feeding the numbers the control API's list/status RPCs and
// internal/metrics want but core has no business computing itself.
package procstat

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is one point-in-time reading of a process's resource usage.
type Sample struct {
	PID        int32
	CPUPercent float64
	RSSBytes   uint64
	VMSBytes   uint64
	NumThreads int32
	CreateTime time.Time
}

// Sampler samples a pid's resource usage via gopsutil, caching the
// *process.Process handle per pid so repeated CPUPercent calls report
// deltas instead of lifetime averages.
type Sampler struct {
	procs map[int32]*process.Process
}

// NewSampler returns an empty Sampler.
func NewSampler() *Sampler {
	return &Sampler{procs: map[int32]*process.Process{}}
}

// Sample reports pid's current CPU/memory/thread usage. A pid that
// has already exited returns an error; callers should drop the
// instance from their view rather than retry.
func (s *Sampler) Sample(pid int) (Sample, error) {
	p32 := int32(pid)
	p, ok := s.procs[p32]
	if !ok {
		found, err := process.NewProcess(p32)
		if err != nil {
			return Sample{}, err
		}
		p = found
		s.procs[p32] = p
	}

	cpuPct, err := p.CPUPercent()
	if err != nil {
		delete(s.procs, p32)
		return Sample{}, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		delete(s.procs, p32)
		return Sample{}, err
	}
	threads, err := p.NumThreads()
	if err != nil {
		threads = 0
	}
	createMs, err := p.CreateTime()
	if err != nil {
		createMs = 0
	}

	return Sample{
		PID:        p32,
		CPUPercent: cpuPct,
		RSSBytes:   mem.RSS,
		VMSBytes:   mem.VMS,
		NumThreads: threads,
		CreateTime: time.UnixMilli(createMs),
	}, nil
}

// Forget drops any cached handle for pid, e.g. once the reaper
// observes its exit. Sampling a forgotten pid simply re-resolves it,
// which is harmless but loses the CPU-delta baseline.
func (s *Sampler) Forget(pid int) {
	delete(s.procs, int32(pid))
}
