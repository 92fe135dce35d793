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

// UpsertVault inserts or replaces a vault record. The durable tree and
// settings are serialized wholesale; live handles never reach this table.
func (db *DB) UpsertVault(v models.Vault) error {
	treeJSON, err := json.Marshal(v.Tree)
	if err != nil {
		return fmt.Errorf("store: marshal tree: %w", err)
	}
	settingsJSON, err := json.Marshal(v.Settings)
	if err != nil {
		return fmt.Errorf("store: marshal settings: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO vaults (id, name, root_path, last_opened, tree, settings)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			root_path   = excluded.root_path,
			last_opened = excluded.last_opened,
			tree        = excluded.tree,
			settings    = excluded.settings
	`, v.ID, v.Name, v.RootPath, v.LastOpened, string(treeJSON), string(settingsJSON))
	if err != nil {
		return fmt.Errorf("store: upsert vault: %w", err)
	}
	return nil
}

// GetVault returns the vault with the given id.
func (db *DB) GetVault(id string) (*models.Vault, error) {
	row := db.conn.QueryRow(
		`SELECT id, name, root_path, last_opened, tree, settings FROM vaults WHERE id = ?`, id)
	v, err := scanVault(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return v, err
}

// ListVaults returns all known vaults ordered by last_opened descending.
func (db *DB) ListVaults() ([]models.Vault, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, root_path, last_opened, tree, settings FROM vaults ORDER BY last_opened DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list vaults: %w", err)
	}
	defer rows.Close()

	var out []models.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// TouchVault updates a vault's last_opened timestamp.
func (db *DB) TouchVault(id string, at time.Time) error {
	_, err := db.conn.Exec(`UPDATE vaults SET last_opened = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("store: touch vault: %w", err)
	}
	return nil
}

// UpdateVaultTree persists a mutated durable tree.
func (db *DB) UpdateVaultTree(id string, tree *models.TreeNode) error {
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("store: marshal tree: %w", err)
	}
	_, err = db.conn.Exec(`UPDATE vaults SET tree = ? WHERE id = ?`, string(treeJSON), id)
	if err != nil {
		return fmt.Errorf("store: update tree: %w", err)
	}
	return nil
}

// UpdateVaultSettings persists vault settings wholesale.
func (db *DB) UpdateVaultSettings(id string, settings models.Settings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("store: marshal settings: %w", err)
	}
	_, err = db.conn.Exec(`UPDATE vaults SET settings = ? WHERE id = ?`, string(settingsJSON), id)
	if err != nil {
		return fmt.Errorf("store: update settings: %w", err)
	}
	return nil
}

// DeleteVault removes a vault and everything scoped to it in one
// transaction: notes, reasonings, references, files, and embeddings.
func (db *DB) DeleteVault(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM note_embeddings WHERE note_id IN (SELECT id FROM notes WHERE vault_id = ?)`, id)
	_, _ = tx.Exec(`DELETE FROM file_embeddings WHERE file_id IN (SELECT id FROM files WHERE vault_id = ?)`, id)
	ftsDeleteVault(tx, id)
	_, _ = tx.Exec(`DELETE FROM notes WHERE vault_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM reasonings WHERE vault_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM refs WHERE vault_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM files WHERE vault_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM vaults WHERE id = ?`, id)

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (*models.Vault, error) {
	var v models.Vault
	var treeJSON, settingsJSON string
	if err := row.Scan(&v.ID, &v.Name, &v.RootPath, &v.LastOpened, &treeJSON, &settingsJSON); err != nil {
		return nil, err
	}
	if treeJSON != "" && treeJSON != "{}" {
		if err := json.Unmarshal([]byte(treeJSON), &v.Tree); err != nil {
			return nil, fmt.Errorf("store: unmarshal tree: %w", err)
		}
	}
	// Defaults fill any keys an older record is missing.
	v.Settings = models.DefaultSettings()
	if settingsJSON != "" && settingsJSON != "{}" {
		if err := json.Unmarshal([]byte(settingsJSON), &v.Settings); err != nil {
			return nil, fmt.Errorf("store: unmarshal settings: %w", err)
		}
	}
	return &v, nil
}
