package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aarnphm/morph/internal/apperr"
	"github.com/aarnphm/morph/internal/models"
)

// AddReasoning inserts a reasoning trace.
func (db *DB) AddReasoning(r models.Reasoning) error {
	noteIDs, err := json.Marshal(r.NoteIDs)
	if err != nil {
		return fmt.Errorf("store: marshal note ids: %w", err)
	}
	steeringJSON, err := marshalSteering(r.Steering)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		INSERT INTO reasonings (id, content, file_id, vault_id, note_ids,
			created_at, accessed_at, duration_ms, steering)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Content, r.FileID, r.VaultID, string(noteIDs),
		r.CreatedAt, r.AccessedAt, r.Duration.Milliseconds(), steeringJSON)
	if err != nil {
		return fmt.Errorf("store: add reasoning: %w", err)
	}
	return nil
}

// GetReasoning returns a reasoning trace by id, bumping accessed_at.
func (db *DB) GetReasoning(id string) (*models.Reasoning, error) {
	row := db.conn.QueryRow(reasoningSelect+` WHERE id = ?`, id)
	r, err := scanReasoning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_, _ = db.conn.Exec(`UPDATE reasonings SET accessed_at = ? WHERE id = ?`, time.Now(), id)
	return r, nil
}

// ListReasonings returns a snapshot of reasoning traces for a file, newest first.
func (db *DB) ListReasonings(fileID string) ([]models.Reasoning, error) {
	rows, err := db.conn.Query(reasoningSelect+` WHERE file_id = ? ORDER BY created_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("store: list reasonings: %w", err)
	}
	defer rows.Close()

	var out []models.Reasoning
	for rows.Next() {
		r, err := scanReasoning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const reasoningSelect = `
	SELECT id, content, file_id, vault_id, note_ids,
	       created_at, accessed_at, duration_ms, steering
	FROM reasonings`

func scanReasoning(row rowScanner) (*models.Reasoning, error) {
	var r models.Reasoning
	var noteIDsJSON string
	var durationMs int64
	var steeringJSON sql.NullString
	err := row.Scan(&r.ID, &r.Content, &r.FileID, &r.VaultID, &noteIDsJSON,
		&r.CreatedAt, &r.AccessedAt, &durationMs, &steeringJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(noteIDsJSON), &r.NoteIDs); err != nil {
		return nil, fmt.Errorf("store: unmarshal note ids: %w", err)
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	if steeringJSON.Valid && steeringJSON.String != "" {
		var st models.Steering
		if err := json.Unmarshal([]byte(steeringJSON.String), &st); err != nil {
			return nil, fmt.Errorf("store: unmarshal steering: %w", err)
		}
		r.Steering = &st
	}
	return &r, nil
}
