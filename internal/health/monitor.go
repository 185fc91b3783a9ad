// Package health periodically checks the session and logs run statistics.
package health

import (
	"context"
	"log/slog"
	"time"

	"auto_responder/internal/stats"
)

// Checker is implemented by the connection supervisor.
type Checker interface {
	HealthCheck(ctx context.Context) bool
	Stats() stats.Snapshot
}

// Monitor polls a Checker on a fixed interval.
type Monitor struct {
	checker  Checker
	interval time.Duration
	log      *slog.Logger
}

// New creates a Monitor that checks every interval.
func New(checker Checker, interval time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{
		checker:  checker,
		interval: interval,
		log:      log,
	}
}

// Run checks health once per interval, blocking until ctx is cancelled.
// The first check happens one interval after start.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	if !m.checker.HealthCheck(ctx) {
		m.log.Warn("health check failed, may need restart")
	}
	m.log.Info("bot stats", m.checker.Stats().LogAttrs()...)
}
