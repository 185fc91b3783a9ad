package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"auto_responder/internal/model"
	"auto_responder/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// errPermanent stops the retrier for errors other than lock contention.
var errPermanent = errors.New("permanent")

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load returns the session stored under name.
func (s *SQLite) Load(ctx context.Context, name string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, update_offset, user_id, first_name, username, updated_at
		 FROM sessions WHERE name = ?`, name,
	)

	var sess model.Session
	var updated string
	err := row.Scan(&sess.Name, &sess.UpdateOffset, &sess.Identity.ID,
		&sess.Identity.FirstName, &sess.Identity.Username, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &sess, nil
}

// SaveOffset records the next update offset to request.
func (s *SQLite) SaveOffset(ctx context.Context, name string, offset int) error {
	return s.exec(ctx, "save offset",
		`INSERT INTO sessions (name, update_offset, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET update_offset = excluded.update_offset, updated_at = excluded.updated_at`,
		name, offset, now(),
	)
}

// SaveIdentity records the account identity the session belongs to.
func (s *SQLite) SaveIdentity(ctx context.Context, name string, id model.Identity) error {
	return s.exec(ctx, "save identity",
		`INSERT INTO sessions (name, user_id, first_name, username, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET user_id = excluded.user_id, first_name = excluded.first_name,
		     username = excluded.username, updated_at = excluded.updated_at`,
		name, id.ID, id.FirstName, id.Username, now(),
	)
}

// exec runs a write, retrying while the database is locked by another writer.
func (s *SQLite) exec(ctx context.Context, op, query string, args ...any) error {
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	err := retrier.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err != nil && !isLockError(err) {
			return fmt.Errorf("%w: %w", errPermanent, err)
		}
		return err
	}, errPermanent)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
