// Package cooldown tracks when the last response went to each chat and user.
package cooldown

import (
	"sync"
	"time"
)

// Tracker holds the per-chat and per-user last-response tables.
// Stale entries are purged opportunistically on every write, so expiry is
// approximate rather than an exact TTL.
type Tracker struct {
	mu         sync.Mutex
	chats      map[int64]time.Time
	users      map[int64]time.Time
	chatWindow time.Duration
	userWindow time.Duration
}

// NewTracker creates a Tracker with the given cooldown windows.
func NewTracker(chatWindow, userWindow time.Duration) *Tracker {
	return &Tracker{
		chats:      make(map[int64]time.Time),
		users:      make(map[int64]time.Time),
		chatWindow: chatWindow,
		userWindow: userWindow,
	}
}

// active reports whether the chat or the user is still cooling down at now.
// It never modifies the tables.
func (t *Tracker) active(chatID, userID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(chatID, userID, now)
}

// Reserve records a response to chatID and userID at now unless either is
// still cooling down. The check and the update happen under one lock.
func (t *Tracker) Reserve(chatID, userID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.activeLocked(chatID, userID, now) {
		return false
	}
	t.chats[chatID] = now
	t.users[userID] = now
	t.purgeLocked(now)
	return true
}

// Len returns the number of tracked chats and users.
func (t *Tracker) Len() (chats, users int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chats), len(t.users)
}

func (t *Tracker) activeLocked(chatID, userID int64, now time.Time) bool {
	if last, ok := t.chats[chatID]; ok && now.Sub(last) < t.chatWindow {
		return true
	}
	if last, ok := t.users[userID]; ok && now.Sub(last) < t.userWindow {
		return true
	}
	return false
}

// purgeLocked drops entries older than twice the larger window.
func (t *Tracker) purgeLocked(now time.Time) {
	maxAge := 2 * max(t.chatWindow, t.userWindow)
	for id, last := range t.chats {
		if now.Sub(last) >= maxAge {
			delete(t.chats, id)
		}
	}
	for id, last := range t.users {
		if now.Sub(last) >= maxAge {
			delete(t.users, id)
		}
	}
}
