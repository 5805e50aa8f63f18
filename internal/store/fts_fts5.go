//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS cards_fts USING fts5(
			card_id UNINDEXED,
			board_id UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsertCard(tx *sql.Tx, cardID, boardID, body string) error {
	_, _ = tx.Exec(`DELETE FROM cards_fts WHERE card_id = ?`, cardID)
	_, err := tx.Exec(`INSERT INTO cards_fts (card_id, board_id, body) VALUES (?, ?, ?)`,
		cardID, boardID, body)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDeleteCard(tx *sql.Tx, cardID string) {
	_, _ = tx.Exec(`DELETE FROM cards_fts WHERE card_id = ?`, cardID)
}

func ftsDeleteBoard(conn *sql.DB, boardID string) {
	_, _ = conn.Exec(`DELETE FROM cards_fts WHERE board_id = ?`, boardID)
}

// Search performs an FTS5 full-text search over card content. An empty
// boardID searches every board.
func (db *DB) Search(ctx context.Context, boardID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	sqlText := `
		SELECT card_id,
		       board_id,
		       snippet(cards_fts, 2, '<b>', '</b>', '...', 64)
		FROM cards_fts
		WHERE cards_fts MATCH ?`
	args := []any{query}
	if boardID != "" {
		sqlText += ` AND board_id = ?`
		args = append(args, boardID)
	}
	sqlText += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.CardID, &r.BoardID, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
