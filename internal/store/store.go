// Package store provides the SQLite-backed durable layer for vaults, notes,
// reasoning traces, references, and embeddings. Live resource handles are
// deliberately kept out of this database (see internal/handles).
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS vaults (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	root_path   TEXT NOT NULL,
	last_opened DATETIME NOT NULL,
	tree        TEXT NOT NULL DEFAULT '{}',
	settings    TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS files (
	id                TEXT PRIMARY KEY,
	vault_id          TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	extension         TEXT NOT NULL DEFAULT '',
	checksum          TEXT NOT NULL DEFAULT '',
	last_modified     DATETIME NOT NULL,
	embedding_status  TEXT NOT NULL DEFAULT '',
	embedding_task_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_files_vault ON files(vault_id);
CREATE INDEX IF NOT EXISTS idx_files_task ON files(embedding_task_id);

CREATE TABLE IF NOT EXISTS notes (
	id                TEXT PRIMARY KEY,
	content           TEXT NOT NULL,
	color             TEXT NOT NULL DEFAULT '',
	file_id           TEXT NOT NULL,
	vault_id          TEXT NOT NULL,
	reasoning_id      TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	accessed_at       DATETIME NOT NULL,
	dropped           INTEGER NOT NULL DEFAULT 0,
	in_editor         INTEGER NOT NULL DEFAULT 0,
	pos_x             REAL,
	pos_y             REAL,
	steering          TEXT,
	embedding_status  TEXT NOT NULL DEFAULT '',
	embedding_task_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_notes_file ON notes(file_id);
CREATE INDEX IF NOT EXISTS idx_notes_vault_file ON notes(vault_id, file_id);
CREATE INDEX IF NOT EXISTS idx_notes_task ON notes(embedding_task_id);
CREATE INDEX IF NOT EXISTS idx_notes_reasoning ON notes(reasoning_id);

CREATE TABLE IF NOT EXISTS reasonings (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	file_id     TEXT NOT NULL,
	vault_id    TEXT NOT NULL,
	note_ids    TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	accessed_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	steering    TEXT
);

CREATE INDEX IF NOT EXISTS idx_reasonings_file ON reasonings(file_id);

CREATE TABLE IF NOT EXISTS refs (
	id            TEXT PRIMARY KEY,
	vault_id      TEXT NOT NULL,
	file_id       TEXT NOT NULL DEFAULT '',
	format        TEXT NOT NULL DEFAULT 'biblatex',
	path          TEXT NOT NULL DEFAULT '',
	last_modified DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refs_vault ON refs(vault_id);

CREATE TABLE IF NOT EXISTS note_embeddings (
	note_id    TEXT PRIMARY KEY,
	vector     BLOB NOT NULL,
	dim        INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS file_embeddings (
	file_id    TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	vector     BLOB NOT NULL,
	dim        INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (file_id, node_id)
);
`

// DB wraps a sql.DB with entity-store operations.
type DB struct {
	conn *sql.DB
}

// SearchResult is one full-text search hit over note contents.
type SearchResult struct {
	NoteID  string `json:"note_id"`
	Snippet string `json:"snippet"`
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database connection is still usable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
