package cooldown

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func TestReserveWindows(t *testing.T) {
	tests := []struct {
		name   string
		chat   int64
		user   int64
		offset time.Duration
		want   bool
	}{
		{name: "same user and chat inside window", chat: 1, user: 10, offset: 30 * time.Second, want: false},
		{name: "other user same chat inside chat window", chat: 1, user: 11, offset: 31 * time.Second, want: false},
		{name: "same user other chat inside user window", chat: 2, user: 10, offset: 120 * time.Second, want: false},
		{name: "other user same chat at chat boundary", chat: 1, user: 11, offset: 60 * time.Second, want: true},
		{name: "just before chat boundary", chat: 1, user: 11, offset: 60*time.Second - time.Nanosecond, want: false},
		{name: "same user at user boundary", chat: 2, user: 10, offset: 300 * time.Second, want: true},
		{name: "fresh chat and user", chat: 3, user: 12, offset: time.Second, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(60*time.Second, 300*time.Second)
			if !tr.Reserve(1, 10, t0) {
				t.Fatal("first reservation must succeed")
			}
			got := tr.Reserve(tt.chat, tt.user, t0.Add(tt.offset))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Reserve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestActiveDoesNotWrite(t *testing.T) {
	tr := NewTracker(60*time.Second, 300*time.Second)

	if tr.active(1, 10, t0) {
		t.Fatal("empty tracker must not be active")
	}
	chats, users := tr.Len()
	if diff := cmp.Diff([2]int{0, 0}, [2]int{chats, users}); diff != "" {
		t.Errorf("active() must not create entries (-want +got):\n%s", diff)
	}

	tr.Reserve(1, 10, t0)
	if !tr.active(1, 99, t0.Add(10*time.Second)) {
		t.Error("chat should be cooling down")
	}
	if !tr.active(99, 10, t0.Add(10*time.Second)) {
		t.Error("user should be cooling down")
	}
}

func TestRejectedReserveKeepsTimestamps(t *testing.T) {
	tr := NewTracker(60*time.Second, 60*time.Second)
	tr.Reserve(1, 10, t0)

	if tr.Reserve(1, 10, t0.Add(50*time.Second)) {
		t.Fatal("reservation inside window must fail")
	}
	// The rejected attempt must not extend the window.
	if !tr.Reserve(1, 10, t0.Add(60*time.Second)) {
		t.Error("reservation at the original boundary must succeed")
	}
}

func TestPurge(t *testing.T) {
	tr := NewTracker(60*time.Second, 300*time.Second)
	tr.Reserve(1, 10, t0)
	tr.Reserve(2, 20, t0.Add(100*time.Second))

	// maxAge is 2 x 300s: entries from t0 are exactly 600s old here.
	tr.Reserve(3, 30, t0.Add(600*time.Second))

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.chats[1]; ok {
		t.Error("chat 1 should have been purged")
	}
	if _, ok := tr.users[10]; ok {
		t.Error("user 10 should have been purged")
	}
	if _, ok := tr.chats[2]; !ok {
		t.Error("chat 2 should still be tracked")
	}
	if diff := cmp.Diff(2, len(tr.users)); diff != "" {
		t.Errorf("user table size (-want +got):\n%s", diff)
	}
}

func TestReserveConcurrent(t *testing.T) {
	tr := NewTracker(time.Minute, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Reserve(1, 10, t0) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if diff := cmp.Diff(1, granted); diff != "" {
		t.Errorf("only one concurrent reservation may win (-want +got):\n%s", diff)
	}
}
