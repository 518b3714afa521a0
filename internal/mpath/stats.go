package mpath

import (
	"sync"
	"time"

	"github.com/vietddude/mpath/internal/core/domain"
)

// PathStatsSnapshot is a point-in-time copy of a path's counters.
type PathStatsSnapshot struct {
	Completions    int           `json:"completions"`
	Failures       int           `json:"failures"`
	Failovers      int           `json:"failovers"`
	ErrorRate      float64       `json:"error_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	LastStatus     string        `json:"last_status,omitempty"`
	LastSuccessAt  time.Time     `json:"last_success_at"`
	LastFailureAt  time.Time     `json:"last_failure_at"`
}

// PathStats tracks completion outcomes and latency for a path.
type PathStats struct {
	mu sync.Mutex

	recentLatencies  []time.Duration
	maxLatencyWindow int

	completions   int
	failures      int
	failovers     int
	lastStatus    domain.Status
	lastSuccessAt time.Time
	lastFailureAt time.Time
}

// NewPathStats creates empty stats with a 100 sample latency window.
func NewPathStats() *PathStats {
	return &PathStats{
		recentLatencies:  make([]time.Duration, 0, 100),
		maxLatencyWindow: 100,
	}
}

// RecordSuccess records a successful completion.
func (s *PathStats) RecordSuccess(latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completions++
	s.lastStatus = domain.StatusSuccess
	s.lastSuccessAt = time.Now()

	s.recentLatencies = append(s.recentLatencies, latency)
	if len(s.recentLatencies) > s.maxLatencyWindow {
		s.recentLatencies = s.recentLatencies[1:]
	}
}

// RecordFailure records a failed completion. failover tells whether the
// request was rerouted instead of surfaced.
func (s *PathStats) RecordFailure(status domain.Status, failover bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completions++
	s.failures++
	if failover {
		s.failovers++
	}
	s.lastStatus = status
	s.lastFailureAt = time.Now()
}

// Snapshot returns the current counters.
func (s *PathStats) Snapshot() PathStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := PathStatsSnapshot{
		Completions:   s.completions,
		Failures:      s.failures,
		Failovers:     s.failovers,
		LastSuccessAt: s.lastSuccessAt,
		LastFailureAt: s.lastFailureAt,
	}
	if s.completions > 0 {
		snap.ErrorRate = float64(s.failures) / float64(s.completions)
		snap.LastStatus = s.lastStatus.String()
	}
	if len(s.recentLatencies) > 0 {
		var total time.Duration
		for _, lat := range s.recentLatencies {
			total += lat
		}
		snap.AverageLatency = total / time.Duration(len(s.recentLatencies))
	}
	return snap
}
