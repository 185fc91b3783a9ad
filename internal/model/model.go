// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the authenticated account's own user record.
type Identity struct {
	ID        int64
	FirstName string
	Username  string
}

// MessageRef points at the message an event replies to.
type MessageRef struct {
	MessageID int
	SenderID  int64
}

// Event is a single inbound message.
type Event struct {
	MessageID       int
	ChatID          int64
	SenderID        int64
	SenderFirstName string
	SenderUsername  string
	Text            string
	IsPrivate       bool
	IsReply         bool
	// ReplyTo is nil when the replied-to message could not be looked up.
	ReplyTo *MessageRef
}

// DisplayName returns the name used to address the sender in a reply.
func (e Event) DisplayName() string {
	switch {
	case e.SenderFirstName != "":
		return e.SenderFirstName
	case e.SenderUsername != "":
		return e.SenderUsername
	default:
		return "User"
	}
}

// Trigger is a condition class that makes an event eligible for a response.
type Trigger string

// Supported triggers, in priority order.
const (
	TriggerDM      Trigger = "dm"
	TriggerMention Trigger = "mention"
	TriggerReply   Trigger = "reply"
)

// TriggerPriority lists triggers in the order they are evaluated.
var TriggerPriority = []Trigger{TriggerDM, TriggerMention, TriggerReply}

// TriggerSet is the set of triggers enabled by configuration.
type TriggerSet map[Trigger]bool

// ParseTriggerSet parses a comma-separated list such as "dm,mention,reply".
func ParseTriggerSet(raw string) (TriggerSet, error) {
	set := TriggerSet{}
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		switch t := Trigger(s); t {
		case TriggerDM, TriggerMention, TriggerReply:
			set[t] = true
		default:
			return nil, fmt.Errorf("unknown trigger %q, use: dm, mention, reply", s)
		}
	}
	return set, nil
}

// Enabled reports whether t is in the set.
func (s TriggerSet) Enabled(t Trigger) bool {
	return s[t]
}

// OutcomeKind classifies the result of handling one event.
type OutcomeKind string

// Possible outcomes of handling an event.
const (
	OutcomeIgnored    OutcomeKind = "ignored"
	OutcomeSuppressed OutcomeKind = "suppressed"
	OutcomeResponded  OutcomeKind = "responded"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome is the result of handling one event.
type Outcome struct {
	Kind    OutcomeKind
	Trigger Trigger
	Reason  string
	Err     error
}

// State is the connection lifecycle state.
type State string

// Lifecycle states.
const (
	StateIdle           State = "idle"
	StateInitializing   State = "initializing"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateDisconnected   State = "disconnected"
	StateFailed         State = "failed"
)

// Session is the persisted state of the transport session for one account.
type Session struct {
	Name         string
	UpdateOffset int
	Identity     Identity
	UpdatedAt    time.Time
}
