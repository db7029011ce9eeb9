// Package deck stores sent flashcards. The SQLite backend is the default; a
// CouchDB backend is available for shared decks.
package deck

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id       TEXT PRIMARY KEY,
	deck     TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	sent_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cards (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	deck        TEXT NOT NULL DEFAULT '',
	key         TEXT NOT NULL,
	front       TEXT NOT NULL DEFAULT '',
	back        TEXT NOT NULL DEFAULT '',
	reverse     INTEGER NOT NULL DEFAULT 0,
	position    INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(document_id, key)
);

CREATE INDEX IF NOT EXISTS idx_cards_document ON cards(document_id);
CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck);
`

// DB is the SQLite card store.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("deck: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("deck: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("deck: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("deck: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
