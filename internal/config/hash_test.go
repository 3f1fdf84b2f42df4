package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.yaml")
	if err := os.WriteFile(path, []byte("log_level: INFO\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatalf("ComputeBlake3Hash() error = %v", err)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}

	// Stable for identical content.
	h2, err := ComputeBlake3Hash(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("hash not stable across reads")
	}

	if err := VerifyFileHash(path, h1); err != nil {
		t.Errorf("VerifyFileHash() error = %v", err)
	}

	// Changed content must fail verification.
	if err := os.WriteFile(path, []byte("log_level: DEBUG\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyFileHash(path, h1); err == nil {
		t.Error("expected mismatch after modification")
	}
}

func TestComputeBlake3HashMissingFile(t *testing.T) {
	if _, err := ComputeBlake3Hash(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
