package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	t.Parallel()

	withKey := NotFoundError{Entity: "setting", Key: "theme"}
	if got := withKey.Error(); got != "setting theme not found" {
		t.Errorf("Error() = %q", got)
	}
	if got := (NotFoundError{Entity: "document"}).Error(); got != "document not found" {
		t.Errorf("Error() without key = %q", got)
	}

	wrapped := fmt.Errorf("load: %w", withKey)
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if IsNotFound(errors.New("unrelated")) {
		t.Error("IsNotFound matched an unrelated error")
	}
	if IsNotFound(nil) {
		t.Error("IsNotFound matched nil")
	}
}

func TestOpenTwiceSharesDatabase(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	first, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := first.SetState(ctx, "engine.endpoint", "http://127.0.0.1:22140"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	second, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	got, err := second.GetState(ctx, "engine.endpoint")
	if err != nil {
		t.Fatalf("get state after reopen: %v", err)
	}
	if got != "http://127.0.0.1:22140" {
		t.Fatalf("state did not survive reopen, got %q", got)
	}
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "settings.db")

	// Create the database first so the read-only open succeeds.
	rw, err := Open(Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	ro, err := Open(Options{DBPath: dbPath, ReadOnly: true})
	if err != nil {
		t.Fatalf("open read-only store: %v", err)
	}
	t.Cleanup(func() { ro.Close() })

	if err := ro.SaveDocument(context.Background(), `{}`); err == nil {
		t.Fatal("expected write to read-only store to fail")
	}
}

func TestCloseNilStore(t *testing.T) {
	t.Parallel()

	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("closing a nil store should be a no-op, got %v", err)
	}
}
