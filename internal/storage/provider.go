// Package storage defines the vault file-system abstraction: enumeration
// filtered by ignore globs, whole-file reads, and atomic writes.
package storage

import "time"

// FileMeta is the metadata returned for one vault file.
type FileMeta struct {
	Path      string // relative to the vault root, forward slashes
	Name      string // base name without extension
	Extension string // extension without the dot
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every non-ignored file under dir
	// (relative to vault root).
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Abs resolves a vault-relative path to an absolute one, rejecting
	// traversal outside the root.
	Abs(path string) (string, error)
}
