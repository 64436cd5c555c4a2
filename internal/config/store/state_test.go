package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestGetStateMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	s, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	_, err = s.GetState(ctx, StateLastEndpoint)
	if !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got: %v", err)
	}
}

func TestSetStateUpserts(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	s, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.SetState(ctx, StateLastEndpoint, "http://127.0.0.1:22140"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := s.SetState(ctx, StateLastEndpoint, "http://127.0.0.1:8000"); err != nil {
		t.Fatalf("overwrite state: %v", err)
	}

	got, err := s.GetState(ctx, StateLastEndpoint)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got != "http://127.0.0.1:8000" {
		t.Fatalf("expected overwritten value, got %q", got)
	}
}

func TestEnsureInstanceIDStable(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	store1, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	first, err := store1.EnsureInstanceID(ctx)
	if err != nil {
		t.Fatalf("ensure instance id: %v", err)
	}
	if first == "" {
		t.Fatal("expected non-empty instance id")
	}

	second, err := store1.EnsureInstanceID(ctx)
	if err != nil {
		t.Fatalf("ensure instance id again: %v", err)
	}
	if second != first {
		t.Fatalf("instance id changed within one store: %s vs %s", first, second)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	// Survives reopen.
	store2, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { store2.Close() })

	third, err := store2.EnsureInstanceID(ctx)
	if err != nil {
		t.Fatalf("ensure instance id after reopen: %v", err)
	}
	if third != first {
		t.Fatalf("instance id changed across reopen: %s vs %s", first, third)
	}
}
