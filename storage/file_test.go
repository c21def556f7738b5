package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}

	if _, ok, err := f.GetItem("auth-store"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := f.SetItem("auth-store", "payload"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.SetItem("auth-store", "payload-2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := f.GetItem("auth-store")
	if err != nil || !ok || v != "payload-2" {
		t.Fatalf("unexpected get result %q ok=%v err=%v", v, ok, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}

	if err := f.RemoveItem("auth-store"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.RemoveItem("auth-store"); err != nil {
		t.Fatalf("second remove must be idempotent: %v", err)
	}
}

func TestFileBackendEscapesKeys(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file backend: %v", err)
	}
	if err := f.SetItem("../escape/attempt", "x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if filepath.Dir(f.path("../escape/attempt")) != f.Dir {
		t.Fatalf("key must stay inside the storage directory")
	}
}

func TestNewFileRequiresDir(t *testing.T) {
	if _, err := NewFile(""); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
