package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aarnphm/morph/internal/apperr"
	"github.com/aarnphm/morph/internal/models"
)

// UpsertFile inserts or refreshes a per-file record. Embedding state is
// preserved on refresh unless the content checksum changed, in which case
// it resets so the file can be re-embedded.
func (db *DB) UpsertFile(f models.FileRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (id, vault_id, name, extension, checksum, last_modified,
			embedding_status, embedding_task_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name          = excluded.name,
			extension     = excluded.extension,
			last_modified = excluded.last_modified,
			embedding_status = CASE
				WHEN files.checksum = excluded.checksum THEN files.embedding_status
				ELSE ''
			END,
			embedding_task_id = CASE
				WHEN files.checksum = excluded.checksum THEN files.embedding_task_id
				ELSE ''
			END,
			checksum = excluded.checksum
	`, f.ID, f.VaultID, f.Name, f.Extension, f.Checksum, f.LastModified,
		string(f.EmbeddingStatus), f.EmbeddingTaskID)
	if err != nil {
		return fmt.Errorf("store: upsert file: %w", err)
	}
	return nil
}

// GetFile returns the record for a path-derived file id.
func (db *DB) GetFile(id string) (*models.FileRecord, error) {
	row := db.conn.QueryRow(fileSelect+` WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return f, err
}

// FilesByTask returns the files whose pending embedding task is taskID.
func (db *DB) FilesByTask(taskID string) ([]models.FileRecord, error) {
	rows, err := db.conn.Query(fileSelect+` WHERE embedding_task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: files by task: %w", err)
	}
	defer rows.Close()

	var out []models.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// SetFileEmbedding advances a file's embedding status with the same forward
// transition rules as notes.
func (db *DB) SetFileEmbedding(id string, status models.EmbeddingStatus, taskID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRow(`SELECT embedding_status FROM files WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read file embedding status: %w", err)
	}
	if models.EmbeddingStatus(current) == status {
		return tx.Commit()
	}
	if !models.EmbeddingStatus(current).CanTransition(status) {
		return fmt.Errorf("store: file embedding %s -> %s: %w", current, status, apperr.ErrConflict)
	}
	if _, err := tx.Exec(
		`UPDATE files SET embedding_status = ?, embedding_task_id = ? WHERE id = ?`,
		string(status), taskID, id,
	); err != nil {
		return fmt.Errorf("store: set file embedding status: %w", err)
	}
	return tx.Commit()
}

const fileSelect = `
	SELECT id, vault_id, name, extension, checksum, last_modified,
	       embedding_status, embedding_task_id
	FROM files`

func scanFile(row rowScanner) (*models.FileRecord, error) {
	var f models.FileRecord
	var status string
	err := row.Scan(&f.ID, &f.VaultID, &f.Name, &f.Extension, &f.Checksum,
		&f.LastModified, &status, &f.EmbeddingTaskID)
	if err != nil {
		return nil, err
	}
	f.EmbeddingStatus = models.EmbeddingStatus(status)
	return &f, nil
}
