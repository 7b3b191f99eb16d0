package procstat

import (
	"os"
	"testing"
)

func TestSamplerSamplesOwnProcess(t *testing.T) {
	s := NewSampler()
	sample, err := s.Sample(os.Getpid())
	if err != nil {
		t.Fatalf("sample own pid: %v", err)
	}
	if sample.PID != int32(os.Getpid()) {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), sample.PID)
	}
	if sample.RSSBytes == 0 {
		t.Fatalf("expected nonzero RSS for a live process")
	}
	if sample.CreateTime.IsZero() {
		t.Fatalf("expected a nonzero create time")
	}
}

func TestSamplerCachesProcessHandle(t *testing.T) {
	s := NewSampler()
	pid := os.Getpid()
	if _, err := s.Sample(pid); err != nil {
		t.Fatalf("first sample: %v", err)
	}
	if _, ok := s.procs[int32(pid)]; !ok {
		t.Fatalf("expected pid to be cached after first sample")
	}
	if _, err := s.Sample(pid); err != nil {
		t.Fatalf("second sample: %v", err)
	}
}

func TestSamplerErrorsOnUnknownPid(t *testing.T) {
	s := NewSampler()
	// PID 1 << 30 is far outside any live process table.
	if _, err := s.Sample(1 << 30); err == nil {
		t.Fatalf("expected an error sampling a nonexistent pid")
	}
}

func TestForgetDropsCachedHandle(t *testing.T) {
	s := NewSampler()
	pid := os.Getpid()
	if _, err := s.Sample(pid); err != nil {
		t.Fatalf("sample: %v", err)
	}
	s.Forget(pid)
	if _, ok := s.procs[int32(pid)]; ok {
		t.Fatalf("expected Forget to drop the cached handle")
	}
}
