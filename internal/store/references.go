package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aarnphm/morph/internal/apperr"
	"github.com/aarnphm/morph/internal/models"
)

// PutReference inserts or replaces a citation-source record.
func (db *DB) PutReference(r models.Reference) error {
	_, err := db.conn.Exec(`
		INSERT INTO refs (id, vault_id, file_id, format, path, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_id       = excluded.file_id,
			format        = excluded.format,
			path          = excluded.path,
			last_modified = excluded.last_modified
	`, r.ID, r.VaultID, r.FileID, string(r.Format), r.Path, r.LastModified)
	if err != nil {
		return fmt.Errorf("store: put reference: %w", err)
	}
	return nil
}

// GetReference returns the citation source registered for a vault.
func (db *DB) GetReference(vaultID string) (*models.Reference, error) {
	var r models.Reference
	var format string
	err := db.conn.QueryRow(`
		SELECT id, vault_id, file_id, format, path, last_modified
		FROM refs WHERE vault_id = ?
		ORDER BY last_modified DESC LIMIT 1
	`, vaultID).Scan(&r.ID, &r.VaultID, &r.FileID, &format, &r.Path, &r.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get reference: %w", err)
	}
	r.Format = models.CitationFormat(format)
	return &r, nil
}

// DeleteReference removes a citation-source record. Absent ids are a no-op.
func (db *DB) DeleteReference(id string) error {
	_, err := db.conn.Exec(`DELETE FROM refs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete reference: %w", err)
	}
	return nil
}
