package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "bot.db"), logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkHandled_AtomicInsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	handled, err := s.IsHandled(ctx, "$ev1")
	if err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Fatal("fresh event should not be handled")
	}

	inserted, err := s.MarkHandled(ctx, "$ev1")
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("first MarkHandled should insert")
	}

	inserted, err = s.MarkHandled(ctx, "$ev1")
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("second MarkHandled must report an existing record")
	}

	handled, err = s.IsHandled(ctx, "$ev1")
	if err != nil {
		t.Fatal(err)
	}
	if !handled {
		t.Fatal("event should be handled after MarkHandled")
	}
}

func TestPutMapping_Upsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutMapping(ctx, "!a:x", "!b:x"); err != nil {
		t.Fatal(err)
	}
	if err := s.PutMapping(ctx, "!a:x", "!c:x"); err != nil {
		t.Fatal(err)
	}

	m, err := s.Mapping(ctx, "!a:x")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("mapping should exist")
	}
	if m.TargetRoomID != "!c:x" {
		t.Fatalf("upsert should replace target: got %q", m.TargetRoomID)
	}
}

func TestMapping_AbsentIsNil(t *testing.T) {
	s := testStore(t)

	m, err := s.Mapping(context.Background(), "!nope:x")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Fatalf("expected nil mapping, got %+v", m)
	}
}

func TestDeleteMapping(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.PutMapping(ctx, "!a:x", "!b:x"); err != nil {
		t.Fatal(err)
	}

	existed, err := s.DeleteMapping(ctx, "!a:x")
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Fatal("delete should report the mapping existed")
	}

	existed, err = s.DeleteMapping(ctx, "!a:x")
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Fatal("second delete should report not found")
	}
}
