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

// AddNote inserts a new note and its FTS entry in one transaction.
func (db *DB) AddNote(n models.Note) error {
	steeringJSON, err := marshalSteering(n.Steering)
	if err != nil {
		return err
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var posX, posY any
	if n.Position != nil {
		posX, posY = n.Position.X, n.Position.Y
	}
	_, err = tx.Exec(`
		INSERT INTO notes (id, content, color, file_id, vault_id, reasoning_id,
			created_at, accessed_at, dropped, in_editor, pos_x, pos_y,
			steering, embedding_status, embedding_task_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Content, n.Color, n.FileID, n.VaultID, n.ReasoningID,
		n.CreatedAt, n.AccessedAt, n.Dropped, n.IsInEditor, posX, posY,
		steeringJSON, string(n.EmbeddingStatus), n.EmbeddingTaskID)
	if err != nil {
		return fmt.Errorf("store: add note: %w", err)
	}
	if err := ftsUpsert(tx, n.ID, n.VaultID, n.Content); err != nil {
		return err
	}
	return tx.Commit()
}

// GetNote returns a single note by id.
func (db *DB) GetNote(id string) (*models.Note, error) {
	row := db.conn.QueryRow(noteSelect+` WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return n, err
}

// ListNotes returns a snapshot of every note scoped to a file. Callers
// needing fresh data after a mutation re-invoke; this is not a live cursor.
func (db *DB) ListNotes(fileID string) ([]models.Note, error) {
	return db.queryNotes(noteSelect+` WHERE file_id = ? ORDER BY created_at`, fileID)
}

// ListEditorNotes returns the notes currently placed in the editor for a file.
func (db *DB) ListEditorNotes(fileID string) ([]models.Note, error) {
	return db.queryNotes(noteSelect+` WHERE file_id = ? AND in_editor = 1 ORDER BY created_at`, fileID)
}

// NotesByTask returns the notes whose pending embedding task is taskID.
func (db *DB) NotesByTask(taskID string) ([]models.Note, error) {
	return db.queryNotes(noteSelect+` WHERE embedding_task_id = ?`, taskID)
}

// MoveNoteToEditor marks a note as placed in the editor at the given
// position. Flag and position land in a single UPDATE so a concurrent
// reader never observes one without the other.
func (db *DB) MoveNoteToEditor(id string, pos models.Position) error {
	res, err := db.conn.Exec(`
		UPDATE notes SET in_editor = 1, pos_x = ?, pos_y = ?, accessed_at = ?
		WHERE id = ?
	`, pos.X, pos.Y, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: move note to editor: %w", err)
	}
	return requireRow(res)
}

// RemoveNoteFromEditor clears the in-editor flag. The stored position is
// left in place deliberately: it is inert while the flag is off and lets
// the note re-enter where it last sat.
func (db *DB) RemoveNoteFromEditor(id string) error {
	res, err := db.conn.Exec(`
		UPDATE notes SET in_editor = 0, accessed_at = ? WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: remove note from editor: %w", err)
	}
	return requireRow(res)
}

// DropNote marks a note as dropped (kept for history, hidden from panels).
func (db *DB) DropNote(id string) error {
	res, err := db.conn.Exec(`
		UPDATE notes SET dropped = 1, in_editor = 0, accessed_at = ? WHERE id = ?
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: drop note: %w", err)
	}
	return requireRow(res)
}

// SetNoteEmbedding advances a note's embedding status. Illegal transitions
// (any regression out of a terminal state) are rejected with ErrConflict.
func (db *DB) SetNoteEmbedding(id string, status models.EmbeddingStatus, taskID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRow(`SELECT embedding_status FROM notes WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read embedding status: %w", err)
	}
	if models.EmbeddingStatus(current) == status {
		return tx.Commit() // idempotent
	}
	if !models.EmbeddingStatus(current).CanTransition(status) {
		return fmt.Errorf("store: embedding %s -> %s: %w", current, status, apperr.ErrConflict)
	}
	if _, err := tx.Exec(
		`UPDATE notes SET embedding_status = ?, embedding_task_id = ? WHERE id = ?`,
		string(status), taskID, id,
	); err != nil {
		return fmt.Errorf("store: set embedding status: %w", err)
	}
	return tx.Commit()
}

// DeleteNote removes a note, its FTS entry, and its embedding.
func (db *DB) DeleteNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	_, _ = tx.Exec(`DELETE FROM note_embeddings WHERE note_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM notes WHERE id = ?`, id)

	return tx.Commit()
}

const noteSelect = `
	SELECT id, content, color, file_id, vault_id, reasoning_id,
	       created_at, accessed_at, dropped, in_editor, pos_x, pos_y,
	       steering, embedding_status, embedding_task_id
	FROM notes`

func (db *DB) queryNotes(query string, args ...any) ([]models.Note, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanNote(row rowScanner) (*models.Note, error) {
	var n models.Note
	var status, taskID string
	var steeringJSON sql.NullString
	var posX, posY sql.NullFloat64
	err := row.Scan(&n.ID, &n.Content, &n.Color, &n.FileID, &n.VaultID, &n.ReasoningID,
		&n.CreatedAt, &n.AccessedAt, &n.Dropped, &n.IsInEditor, &posX, &posY,
		&steeringJSON, &status, &taskID)
	if err != nil {
		return nil, err
	}
	if posX.Valid && posY.Valid {
		n.Position = &models.Position{X: posX.Float64, Y: posY.Float64}
	}
	if steeringJSON.Valid && steeringJSON.String != "" {
		var st models.Steering
		if err := json.Unmarshal([]byte(steeringJSON.String), &st); err != nil {
			return nil, fmt.Errorf("store: unmarshal steering: %w", err)
		}
		n.Steering = &st
	}
	n.EmbeddingStatus = models.EmbeddingStatus(status)
	n.EmbeddingTaskID = taskID
	return &n, nil
}

func marshalSteering(st *models.Steering) (any, error) {
	if st == nil {
		return nil, nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("store: marshal steering: %w", err)
	}
	return string(b), nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
