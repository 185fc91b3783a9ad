package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSnapshot(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	s := New(start)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncProcessed()
		}()
	}
	wg.Wait()
	s.IncResponded()
	s.SetRunning(true)
	s.SetRestarts(2)

	want := Snapshot{
		Running:           true,
		RestartCount:      2,
		MessagesProcessed: 20,
		MessagesResponded: 1,
		LastHealthCheck:   start,
	}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}

	later := start.Add(5 * time.Minute)
	s.MarkHealthy(later)
	if diff := cmp.Diff(later, s.Snapshot().LastHealthCheck); diff != "" {
		t.Errorf("LastHealthCheck mismatch (-want +got):\n%s", diff)
	}
}

func TestLogAttrs(t *testing.T) {
	snap := Snapshot{
		Running:           false,
		RestartCount:      1,
		MessagesProcessed: 4,
		MessagesResponded: 3,
		LastHealthCheck:   time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}
	want := []any{
		"running", false,
		"restart_count", 1,
		"messages_processed", int64(4),
		"messages_responded", int64(3),
		"last_health_check", "2025-06-15T10:30:00Z",
	}
	if diff := cmp.Diff(want, snap.LogAttrs()); diff != "" {
		t.Errorf("LogAttrs() mismatch (-want +got):\n%s", diff)
	}

	if got := (Snapshot{}).LogAttrs()[9]; got != "" {
		t.Errorf("zero health check time should render empty, got %v", got)
	}
}
