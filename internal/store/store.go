// Package store provides SQLite-backed persistence for boards, cards, and
// connectors, with optional FTS5 full-text search over card content.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS boards (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cards (
	id         TEXT PRIMARY KEY,
	board_id   TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	kind       TEXT NOT NULL,
	x          REAL,
	y          REAL,
	width      REAL NOT NULL DEFAULT 0,
	height     REAL,
	order_key  TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '{}',
	members    TEXT NOT NULL DEFAULT '[]',
	body       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS connectors (
	id           TEXT PRIMARY KEY,
	board_id     TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	x            REAL NOT NULL DEFAULT 0,
	y            REAL NOT NULL DEFAULT 0,
	start_x      REAL NOT NULL DEFAULT 0,
	start_y      REAL NOT NULL DEFAULT 0,
	end_x        REAL NOT NULL DEFAULT 0,
	end_y        REAL NOT NULL DEFAULT 0,
	curvature    REAL NOT NULL DEFAULT 0,
	bias         REAL NOT NULL DEFAULT 0,
	nodes        TEXT NOT NULL DEFAULT '[]',
	start_attach TEXT,
	end_attach   TEXT,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_cards_board ON cards(board_id);
CREATE INDEX IF NOT EXISTS idx_cards_order ON cards(board_id, order_key);
CREATE INDEX IF NOT EXISTS idx_connectors_board ON connectors(board_id);
`

// DB wraps a sql.DB with board-store operations.
type DB struct {
	conn *sql.DB
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
