package haven

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty value for missing key, got %q", got)
	}

	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite returned error: %v", err)
	}

	got, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected v2, got %q", got)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offline.db")

	store, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore returned error: %v", err)
	}
	defer store.Close()

	got, err := store.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty value for missing key, got %q", got)
	}

	if err := store.Set(ctx, "queue", `[{"type":"post"}]`); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Set(ctx, "queue", `[]`); err != nil {
		t.Fatalf("Set overwrite returned error: %v", err)
	}

	got, err = store.Get(ctx, "queue")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != `[]` {
		t.Errorf("expected [], got %q", got)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offline.db")

	store, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore returned error: %v", err)
	}
	if err := store.Set(ctx, "k", "survives"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	store, err = OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer store.Close()

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "survives" {
		t.Errorf("expected value to survive reopen, got %q", got)
	}
}
