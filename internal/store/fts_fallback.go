//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on the cards.body column.
	return nil
}

func ftsUpsertCard(_ *sql.Tx, _, _, _ string) error {
	// Body is already stored in the cards table; nothing extra to do.
	return nil
}

func ftsDeleteCard(_ *sql.Tx, _ string) {}

func ftsDeleteBoard(_ *sql.DB, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled
// in). An empty boardID searches every board.
func (db *DB) Search(ctx context.Context, boardID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	sqlText := `SELECT id, board_id, substr(body, 1, 200) FROM cards WHERE body LIKE ?`
	args := []any{like}
	if boardID != "" {
		sqlText += ` AND board_id = ?`
		args = append(args, boardID)
	}
	sqlText += ` LIMIT ?`
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
