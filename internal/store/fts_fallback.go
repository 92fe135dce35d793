//go:build !fts5

package store

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on notes.content.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error {
	// Content is already stored in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsDeleteVault(_ *sql.Tx, _ string) {}

// SearchNotes performs a LIKE-based search (fallback when FTS5 is not
// compiled in).
func (db *DB) SearchNotes(vaultID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, substr(content, 1, 200)
		FROM notes
		WHERE vault_id = ? AND dropped = 0 AND content LIKE ?
		ORDER BY created_at DESC
		LIMIT ?
	`, vaultID, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search notes: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NoteID, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
