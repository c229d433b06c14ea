// Package scratch manages per-request temporary directories under a
// process-wide base area. Each request gets an exclusively owned
// subdirectory that is always removed when the request ends.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/wudi/ocrkit/observability"
)

type Manager struct {
	base string
	log  observability.Logger
}

func NewManager(base string, log observability.Logger) *Manager {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Manager{base: base, log: log}
}

// Base returns the base scratch directory path.
func (m *Manager) Base() string { return m.base }

// Startup clears and recreates the base area, reclaiming space left by
// a previous unclean shutdown.
func (m *Manager) Startup() error {
	if err := os.RemoveAll(m.base); err != nil {
		return fmt.Errorf("clear scratch base %s: %w", m.base, err)
	}
	if err := os.MkdirAll(m.base, 0o755); err != nil {
		return fmt.Errorf("create scratch base %s: %w", m.base, err)
	}
	m.log.Info("scratch base ready", observability.String("dir", m.base))
	return nil
}

// Shutdown removes the base area and everything under it.
func (m *Manager) Shutdown() {
	if err := os.RemoveAll(m.base); err != nil {
		m.log.Error("clear scratch base failed",
			observability.String("dir", m.base), observability.Error("err", err))
		return
	}
	m.log.Info("scratch base cleared", observability.String("dir", m.base))
}

// Dir is an exclusively owned scratch directory bound to one request.
type Dir struct {
	path string
	log  observability.Logger
}

// Acquire creates a uniquely named empty directory under the base.
// Callers must pair it with a deferred Release.
func (m *Manager) Acquire() (*Dir, error) {
	path := filepath.Join(m.base, "temp_"+uuid.New().String())
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Dir{path: path, log: m.log}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// Release removes the directory tree. Removal failure is logged, never
// returned; releasing twice is harmless.
func (d *Dir) Release() {
	if err := os.RemoveAll(d.path); err != nil {
		d.log.Error("scratch cleanup failed",
			observability.String("dir", d.path), observability.Error("err", err))
		return
	}
	d.log.Debug("scratch dir removed", observability.String("dir", d.path))
}
