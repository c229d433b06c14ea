package scratch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "base"), nil)
	if err := m.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}

	d, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	info, err := os.Stat(d.Path())
	if err != nil || !info.IsDir() {
		t.Fatalf("scratch dir not created: %v", err)
	}

	// Dirs must be usable for arbitrary request content.
	if err := os.WriteFile(filepath.Join(d.Path(), "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write into scratch dir: %v", err)
	}

	d.Release()
	if _, err := os.Stat(d.Path()); !os.IsNotExist(err) {
		t.Fatalf("scratch dir still present after Release")
	}

	// Double release must be a no-op.
	d.Release()
}

func TestAcquireIsExclusive(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "base"), nil)
	if err := m.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	a, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	b, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if a.Path() == b.Path() {
		t.Fatalf("two acquisitions share a directory: %s", a.Path())
	}
}

func TestStartupClearsLeftovers(t *testing.T) {
	base := filepath.Join(t.TempDir(), "base")
	if err := os.MkdirAll(filepath.Join(base, "stale"), 0o755); err != nil {
		t.Fatal(err)
	}
	m := NewManager(base, nil)
	if err := m.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("read base: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("stale content survived startup: %v", entries)
	}
}

func TestShutdownRemovesBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "base")
	m := NewManager(base, nil)
	if err := m.Startup(); err != nil {
		t.Fatalf("Startup() error = %v", err)
	}
	m.Shutdown()
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Fatalf("base dir still present after Shutdown")
	}
}
