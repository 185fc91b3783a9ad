// Package session persists transport session state between restarts.
package session

import (
	"context"
	"errors"

	"auto_responder/internal/model"
)

// ErrNotFound is returned when no session with the given name exists.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	Load(ctx context.Context, name string) (*model.Session, error)
	SaveOffset(ctx context.Context, name string, offset int) error
	SaveIdentity(ctx context.Context, name string, id model.Identity) error
	Close() error
}
