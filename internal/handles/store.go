package handles

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS handles (
	vault_id   TEXT NOT NULL,
	file_id    TEXT NOT NULL,
	path       TEXT NOT NULL,
	granted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (vault_id, file_id)
);

CREATE INDEX IF NOT EXISTS idx_handles_vault ON handles(vault_id);
`

// Store persists handle grants keyed by (vaultID, fileID). Every operation
// is idempotent and tolerates missing keys; only an unavailable backing
// database surfaces as an error, and callers are expected to degrade rather
// than crash on it.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the handle database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("handles: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handles: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handles: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Put stores (or replaces) a grant for the given node.
func (s *Store) Put(vaultID, fileID, path string) error {
	_, err := s.conn.Exec(`
		INSERT INTO handles (vault_id, file_id, path)
		VALUES (?, ?, ?)
		ON CONFLICT(vault_id, file_id) DO UPDATE SET
			path       = excluded.path,
			granted_at = CURRENT_TIMESTAMP
	`, vaultID, fileID, path)
	if err != nil {
		return fmt.Errorf("handles: put %s: %w", fileID, err)
	}
	return nil
}

// Get re-materialises the live handle for a node, or nil when no grant is
// stored. A nil handle on a file node means the user must re-authorize
// access before the file can be read.
func (s *Store) Get(vaultID, fileID string) (*Handle, error) {
	var path string
	err := s.conn.QueryRow(
		`SELECT path FROM handles WHERE vault_id = ? AND file_id = ?`,
		vaultID, fileID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("handles: get %s: %w", fileID, err)
	}
	return &Handle{VaultID: vaultID, FileID: fileID, Path: path}, nil
}

// ListForVault returns every stored grant for a vault.
func (s *Store) ListForVault(vaultID string) ([]*Handle, error) {
	rows, err := s.conn.Query(
		`SELECT file_id, path FROM handles WHERE vault_id = ?`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("handles: list for vault: %w", err)
	}
	defer rows.Close()

	var out []*Handle
	for rows.Next() {
		h := &Handle{VaultID: vaultID}
		if err := rows.Scan(&h.FileID, &h.Path); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Delete removes a single grant. Deleting an absent key is a no-op.
func (s *Store) Delete(vaultID, fileID string) error {
	_, err := s.conn.Exec(
		`DELETE FROM handles WHERE vault_id = ? AND file_id = ?`, vaultID, fileID)
	if err != nil {
		return fmt.Errorf("handles: delete %s: %w", fileID, err)
	}
	return nil
}

// DeleteAllForVault removes every grant for a vault; used on vault teardown.
func (s *Store) DeleteAllForVault(vaultID string) error {
	_, err := s.conn.Exec(`DELETE FROM handles WHERE vault_id = ?`, vaultID)
	if err != nil {
		return fmt.Errorf("handles: delete vault %s: %w", vaultID, err)
	}
	return nil
}
