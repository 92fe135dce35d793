// Package models defines the domain types for Morph.
package models

import "time"

// NodeKind distinguishes file and directory tree nodes.
type NodeKind string

// Tree node kinds.
const (
	KindFile      NodeKind = "file"
	KindDirectory NodeKind = "directory"
)

// EmbeddingStatus tracks the lifecycle of a background embedding task for a
// note or a file. The empty string means no embedding has been requested yet.
type EmbeddingStatus string

// Embedding statuses. Transitions only move forward:
// "" -> in_progress -> {success, failure, cancelled}.
const (
	EmbeddingNone       EmbeddingStatus = ""
	EmbeddingInProgress EmbeddingStatus = "in_progress"
	EmbeddingSuccess    EmbeddingStatus = "success"
	EmbeddingFailure    EmbeddingStatus = "failure"
	EmbeddingCancelled  EmbeddingStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s EmbeddingStatus) Terminal() bool {
	switch s {
	case EmbeddingSuccess, EmbeddingFailure, EmbeddingCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Terminal states never regress.
func (s EmbeddingStatus) CanTransition(next EmbeddingStatus) bool {
	switch s {
	case EmbeddingNone:
		return next == EmbeddingInProgress || next.Terminal()
	case EmbeddingInProgress:
		return next.Terminal()
	}
	return false
}

// CitationFormat is the format of a citation database file.
type CitationFormat string

// Supported citation formats.
const (
	FormatBibLaTeX CitationFormat = "biblatex"
	FormatCSLJSON  CitationFormat = "csl-json"
)

// TreeNode is the durable (DB-safe) representation of a file-system node.
// IDs are path-derived ("vaultId:/relative/path", directories keep a trailing
// slash) so they stay referentially stable across reloads without depending
// on any live handle.
type TreeNode struct {
	Name      string      `json:"name"`
	Extension string      `json:"extension"`
	Kind      NodeKind    `json:"kind"`
	ID        string      `json:"id"`
	Path      string      `json:"path"`
	IsOpen    bool        `json:"isOpen,omitempty"`
	Children  []*TreeNode `json:"children,omitempty"`
}

// Walk calls fn for the node and every descendant, depth-first.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Files returns every file node in the subtree.
func (n *TreeNode) Files() []*TreeNode {
	var out []*TreeNode
	n.Walk(func(node *TreeNode) {
		if node.Kind == KindFile {
			out = append(out, node)
		}
	})
	return out
}

// Vault is a named root directory a user has opened, together with its
// durable tree and per-vault settings.
type Vault struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RootPath   string    `json:"rootPath"`
	LastOpened time.Time `json:"lastOpened"`
	Tree       *TreeNode `json:"tree"`
	Settings   Settings  `json:"settings"`
}

// FileRecord tracks per-file embedding state, keyed by the path-derived
// file id from the vault tree.
type FileRecord struct {
	ID              string          `json:"id"`
	VaultID         string          `json:"vaultId"`
	Name            string          `json:"name"`
	Extension       string          `json:"extension"`
	Checksum        string          `json:"checksum"`
	LastModified    time.Time       `json:"lastModified"`
	EmbeddingStatus EmbeddingStatus `json:"embeddingStatus"`
	EmbeddingTaskID string          `json:"embeddingTaskId,omitempty"`
}

// Position is a note's placement inside the editor canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Steering is a snapshot of the generation parameters used to produce a
// note or reasoning trace.
type Steering struct {
	Authors        []string           `json:"authors,omitempty"`
	Tonality       map[string]float64 `json:"tonality,omitempty"`
	Temperature    float64            `json:"temperature,omitempty"`
	NumSuggestions int                `json:"numSuggestions,omitempty"`
}

// Note is a user- or LLM-authored text fragment scoped to one vault and one
// file. A note is "in the editor" when IsInEditor is set; Position is only
// meaningful then, but stale position data is left inert on removal so the
// note re-enters where it was dropped last.
type Note struct {
	ID              string          `json:"id"`
	Content         string          `json:"content"`
	Color           string          `json:"color"`
	FileID          string          `json:"fileId"`
	VaultID         string          `json:"vaultId"`
	ReasoningID     string          `json:"reasoningId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	AccessedAt      time.Time       `json:"accessedAt"`
	Dropped         bool            `json:"dropped"`
	IsInEditor      bool            `json:"isInEditor"`
	Position        *Position       `json:"position,omitempty"`
	Steering        *Steering       `json:"steering,omitempty"`
	EmbeddingStatus EmbeddingStatus `json:"embeddingStatus"`
	EmbeddingTaskID string          `json:"embeddingTaskId,omitempty"`
}

// Reasoning is a durable record of one LLM generation episode. It records
// the ids of the notes it spawned, but those notes persist independently
// once created.
type Reasoning struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	FileID     string        `json:"fileId"`
	VaultID    string        `json:"vaultId"`
	NoteIDs    []string      `json:"noteIds"`
	CreatedAt  time.Time     `json:"createdAt"`
	AccessedAt time.Time     `json:"accessedAt"`
	Duration   time.Duration `json:"duration"`
	Steering   *Steering     `json:"steering,omitempty"`
}

// Reference is a citation-source file tracked per vault. Its live handle is
// owned by the reference and resolved through the handle store, never
// persisted inline.
type Reference struct {
	ID           string         `json:"id"`
	VaultID      string         `json:"vaultId"`
	FileID       string         `json:"fileId,omitempty"`
	Format       CitationFormat `json:"format"`
	Path         string         `json:"path"`
	LastModified time.Time      `json:"lastModified"`
}
