// Package handles persists file-system access grants in a store that is
// deliberately separate from the entity database. A grant row carries only
// the descriptor needed to re-materialise a live Handle at load time; the
// capability itself is never serialized.
package handles

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/aarnphm/morph/internal/storage"
)

// Handle is a live, non-serializable capability scoped to a single path.
// It is owned by the runtime tree (or a Reference) and must never be
// written back to durable storage.
type Handle struct {
	VaultID string
	FileID  string
	Path    string // absolute
}

// ReadFile returns the full content of the granted path.
func (h *Handle) ReadFile() ([]byte, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, fmt.Errorf("handles: read %s: %w", h.FileID, err)
	}
	return data, nil
}

// WriteFile atomically replaces the content of the granted path.
func (h *Handle) WriteFile(content []byte) error {
	if err := storage.WriteAtomic(h.Path, content); err != nil {
		return fmt.Errorf("handles: write %s: %w", h.FileID, err)
	}
	return nil
}

// Stat reports whether the granted path is still reachable on disk.
func (h *Handle) Stat() (fs.FileInfo, error) {
	info, err := os.Stat(h.Path)
	if err != nil {
		return nil, fmt.Errorf("handles: stat %s: %w", h.FileID, err)
	}
	return info, nil
}
