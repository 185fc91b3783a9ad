// Package stats holds the run statistics shared by the engine, the supervisor
// and the health monitor.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts processed and answered messages and tracks connection health.
// The zero value is ready to use.
type Stats struct {
	processed atomic.Int64
	responded atomic.Int64

	mu              sync.Mutex
	running         bool
	restarts        int
	lastHealthCheck time.Time
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Running           bool
	RestartCount      int
	MessagesProcessed int64
	MessagesResponded int64
	LastHealthCheck   time.Time
}

// New creates Stats with the health check clock started at now, as the
// process considers itself checked at startup.
func New(now time.Time) *Stats {
	return &Stats{lastHealthCheck: now}
}

// IncProcessed counts a message that entered the handler.
func (s *Stats) IncProcessed() { s.processed.Add(1) }

// IncResponded counts a reply that was actually sent.
func (s *Stats) IncResponded() { s.responded.Add(1) }

// SetRunning records whether a session is currently live.
func (s *Stats) SetRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// SetRestarts records the current restart count.
func (s *Stats) SetRestarts(n int) {
	s.mu.Lock()
	s.restarts = n
	s.mu.Unlock()
}

// MarkHealthy records a successful health check at now.
func (s *Stats) MarkHealthy(now time.Time) {
	s.mu.Lock()
	s.lastHealthCheck = now
	s.mu.Unlock()
}

// Snapshot returns a copy of the current values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Running:           s.running,
		RestartCount:      s.restarts,
		MessagesProcessed: s.processed.Load(),
		MessagesResponded: s.responded.Load(),
		LastHealthCheck:   s.lastHealthCheck,
	}
}

// LogAttrs returns the snapshot as slog key/value pairs.
func (s Snapshot) LogAttrs() []any {
	last := ""
	if !s.LastHealthCheck.IsZero() {
		last = s.LastHealthCheck.Format(time.RFC3339)
	}
	return []any{
		"running", s.Running,
		"restart_count", s.RestartCount,
		"messages_processed", s.MessagesProcessed,
		"messages_responded", s.MessagesResponded,
		"last_health_check", last,
	}
}
