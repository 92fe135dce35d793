package api

import (
	"github.com/aarnphm/morph/internal/models"
)

// CreateVaultRequest is the request body for registering a vault.
type CreateVaultRequest struct {
	Name string `json:"name" example:"journal" validate:"required"`
	Path string `json:"path" example:"/home/me/journal" validate:"required"`
}

// AddNoteRequest is the request body for attaching a note to a file.
type AddNoteRequest struct {
	VaultID  string           `json:"vault_id" example:"a1b2c3d4" validate:"required"`
	FileID   string           `json:"file_id" example:"a1b2c3d4:/essay.md" validate:"required"`
	Content  string           `json:"content" example:"tighten the opening" validate:"required"`
	Steering *models.Steering `json:"steering,omitempty"`
}

// MoveToEditorRequest places a note on the editor canvas.
type MoveToEditorRequest struct {
	X float64 `json:"x" example:"120"`
	Y float64 `json:"y" example:"340"`
}

// SuggestRequest asks the agent for suggestions against a file.
type SuggestRequest struct {
	VaultID  string          `json:"vault_id" example:"a1b2c3d4" validate:"required"`
	FileID   string          `json:"file_id" example:"a1b2c3d4:/essay.md" validate:"required"`
	Steering models.Steering `json:"steering"`
}

// SuggestResponse carries the notes produced by one generation round plus
// the reasoning trace that links them.
type SuggestResponse struct {
	Notes     []models.Note    `json:"notes" validate:"required"`
	Reasoning models.Reasoning `json:"reasoning" validate:"required"`
}

// FileEmbedRequest submits a file's content for embedding.
type FileEmbedRequest struct {
	VaultID string `json:"vault_id" example:"a1b2c3d4" validate:"required"`
	FileID  string `json:"file_id" example:"a1b2c3d4:/essay.md" validate:"required"`
}

// ToggleFolderRequest flips the open state of a directory node.
type ToggleFolderRequest struct {
	NodeID string `json:"node_id" example:"a1b2c3d4:/topics/" validate:"required"`
}

// NoteListResponse wraps the notes attached to a file.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
}

// VaultListResponse wraps the known vaults, most recently opened first.
type VaultListResponse struct {
	Vaults []models.Vault `json:"vaults" validate:"required"`
}

// TaskListResponse lists the ids of tasks still being polled.
type TaskListResponse struct {
	Tasks []string `json:"tasks" validate:"required"`
}

// NormalizeTonalityRequest rebalances tonality weights after one axis edit.
type NormalizeTonalityRequest struct {
	Tonality map[string]float64 `json:"tonality" validate:"required"`
	Edited   string             `json:"edited" example:"formal" validate:"required"`
	Value    float64            `json:"value" example:"0.5"`
}

// SteeringDefaultsResponse carries the default steering parameters plus the
// label for the default temperature.
type SteeringDefaultsResponse struct {
	Steering         models.Steering `json:"steering" validate:"required"`
	TemperatureLabel string          `json:"temperature_label" example:"Balanced" validate:"required"`
}

// ReferenceUploadResponse is returned after a citation database upload.
type ReferenceUploadResponse struct {
	Reference models.Reference `json:"reference" validate:"required"`
}
