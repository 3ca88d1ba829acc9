package account

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveCredential_EnvPrefix(t *testing.T) {
	t.Setenv("FEDISTREAM_TEST_TOKEN", "value")

	got, err := ResolveCredential("env:FEDISTREAM_TEST_TOKEN")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestResolveCredential_DollarVar(t *testing.T) {
	t.Setenv("FEDISTREAM_TEST_TOKEN", "value")

	got, err := ResolveCredential("$FEDISTREAM_TEST_TOKEN")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestResolveCredential_DollarVarBraced(t *testing.T) {
	t.Setenv("FEDISTREAM_TEST_TOKEN", " value ")

	got, err := ResolveCredential("${FEDISTREAM_TEST_TOKEN}")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestResolveCredential_MissingEnv(t *testing.T) {
	if _, err := ResolveCredential("env:FEDISTREAM_TEST_UNSET_VARIABLE"); err == nil {
		t.Fatal("expected error for unset variable")
	}

	t.Setenv("FEDISTREAM_TEST_TOKEN", "  ")
	if _, err := ResolveCredential("$FEDISTREAM_TEST_TOKEN"); !errors.Is(err, ErrEmptyCredential) {
		t.Fatalf("expected ErrEmptyCredential, got %v", err)
	}
}

func TestResolveCredential_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.txt")
	if err := os.WriteFile(path, []byte("secret\n"), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	got, err := ResolveCredential("file:" + path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "secret" {
		t.Fatalf("expected secret, got %q", got)
	}

	if _, err := ResolveCredential("file:" + filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolveCredential_Literal(t *testing.T) {
	got, err := ResolveCredential("literal")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "literal" {
		t.Fatalf("expected literal, got %q", got)
	}

	if _, err := ResolveCredential("   "); !errors.Is(err, ErrEmptyCredential) {
		t.Fatalf("expected ErrEmptyCredential, got %v", err)
	}
}
