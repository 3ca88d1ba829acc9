package config

import (
	"path/filepath"
	"testing"
)

func TestContextStoreRoundTrip(t *testing.T) {
	store := NewContextStore(filepath.Join(t.TempDir(), "nested", "context.yaml"))

	ctx, err := store.Load()
	if err != nil {
		t.Fatalf("Load on missing file failed: %v", err)
	}
	if !ctx.IsEmpty() {
		t.Fatalf("expected empty context, got %v", ctx)
	}

	ctx.SetAccount("acct-123456789", "alice@example.social")
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.AccountID != "acct-123456789" || loaded.String() != "account:alice@example.social" {
		t.Fatalf("unexpected context: %+v", loaded)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear should be a no-op: %v", err)
	}
}

func TestContextStringFallsBackToShortID(t *testing.T) {
	ctx := Context{AccountID: "0123456789abcdef"}
	if got := ctx.String(); got != "account:01234567" {
		t.Fatalf("unexpected string %q", got)
	}
}
