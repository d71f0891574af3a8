package runner

import "sync"

// RunStats counts request outcomes. Safe for concurrent use.
type RunStats struct {
	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64
}

// StatsSnapshot is a point-in-time copy of RunStats.
type StatsSnapshot struct {
	Total     int64 `json:"total" yaml:"total"`
	Succeeded int64 `json:"succeeded" yaml:"succeeded"`
	Failed    int64 `json:"failed" yaml:"failed"`
}

// Record counts one finished request.
func (s *RunStats) Record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err == nil {
		s.succeeded++
	} else {
		s.failed++
	}
}

// Snapshot returns the current counters.
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{Total: s.total, Succeeded: s.succeeded, Failed: s.failed}
}
