package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhaustedRestarts is returned once the restart budget is used up.
	ErrExhaustedRestarts = errors.New("restart attempts exhausted")
	// ErrPasswordNeeded is returned by SignIn when the account has 2FA enabled.
	ErrPasswordNeeded = errors.New("two-factor password required")
	// ErrNotConnected is returned by transport calls made without a session.
	ErrNotConnected = errors.New("not connected")
)

// AuthenticationError is fatal to a single connection attempt.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication: %s: %v", e.Reason, e.Err)
	}
	return "authentication: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransientNetworkError marks a link failure that should lead to a restart.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RateLimitError is a transient error carrying the server-imposed wait.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// HandlerError wraps any failure raised while processing one inbound event.
type HandlerError struct {
	ChatID int64
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle message in chat %d: %v", e.ChatID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// RetryAfter returns the wait requested by a RateLimitError in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
