package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"auto_responder/internal/model"
)

var ignoreUpdatedAt = cmpopts.IgnoreFields(model.Session{}, "UpdatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadMissing(t *testing.T) {
	s := newTestDB(t)
	_, err := s.Load(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		apply func(t *testing.T, s *SQLite)
		want  model.Session
	}{
		{
			name: "offset only",
			apply: func(t *testing.T, s *SQLite) {
				if err := s.SaveOffset(ctx, "acc", 42); err != nil {
					t.Fatalf("save offset: %v", err)
				}
			},
			want: model.Session{Name: "acc", UpdateOffset: 42},
		},
		{
			name: "identity only",
			apply: func(t *testing.T, s *SQLite) {
				if err := s.SaveIdentity(ctx, "acc", model.Identity{ID: 7, FirstName: "Bot", Username: "mybot"}); err != nil {
					t.Fatalf("save identity: %v", err)
				}
			},
			want: model.Session{Name: "acc", Identity: model.Identity{ID: 7, FirstName: "Bot", Username: "mybot"}},
		},
		{
			name: "identity then offsets keep identity",
			apply: func(t *testing.T, s *SQLite) {
				if err := s.SaveIdentity(ctx, "acc", model.Identity{ID: 7, FirstName: "Bot"}); err != nil {
					t.Fatalf("save identity: %v", err)
				}
				for _, off := range []int{10, 11, 15} {
					if err := s.SaveOffset(ctx, "acc", off); err != nil {
						t.Fatalf("save offset: %v", err)
					}
				}
			},
			want: model.Session{Name: "acc", UpdateOffset: 15, Identity: model.Identity{ID: 7, FirstName: "Bot"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestDB(t)
			tt.apply(t, s)

			got, err := s.Load(ctx, "acc")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(tt.want, *got, ignoreUpdatedAt); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
			if got.UpdatedAt.IsZero() {
				t.Error("UpdatedAt should be set")
			}
		})
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if err := s.SaveOffset(ctx, "a", 1); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := s.SaveOffset(ctx, "b", 2); err != nil {
		t.Fatalf("save b: %v", err)
	}

	a, _ := s.Load(ctx, "a")
	b, _ := s.Load(ctx, "b")
	if diff := cmp.Diff([2]int{1, 2}, [2]int{a.UpdateOffset, b.UpdateOffset}); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
}

func TestReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "my_account.session")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveOffset(ctx, "my_account", 900); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = s.Close()

	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := s.Load(ctx, "my_account")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(900, got.UpdateOffset); diff != "" {
		t.Errorf("offset after reopen (-want +got):\n%s", diff)
	}
}

func TestSaveAfterCloseFails(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()

	if err := s.SaveOffset(context.Background(), "acc", 1); err == nil {
		t.Fatal("expected error writing to a closed database")
	}
}
