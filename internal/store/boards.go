package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/models"
)

// CreateBoard inserts a new board.
func (db *DB) CreateBoard(ctx context.Context, b *models.Board) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO boards (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, b.ID, b.Title, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: board %s: %w", b.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: create board: %w", err)
	}
	return nil
}

// GetBoard returns a board by id.
func (db *DB) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	var b models.Board
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at FROM boards WHERE id = ?
	`, id).Scan(&b.ID, &b.Title, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: board %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get board: %w", err)
	}
	return &b, nil
}

// ListBoards returns every board ordered by most recently updated.
func (db *DB) ListBoards(ctx context.Context) ([]models.Board, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at FROM boards ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list boards: %w", err)
	}
	defer rows.Close()

	var out []models.Board
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.Title, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBoard removes a board and, via foreign keys, its cards and connectors.
func (db *DB) DeleteBoard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: board %s: %w", id, apperr.ErrNotFound)
	}
	ftsDeleteBoard(db.conn, id)
	return nil
}

// GetBoardChecksum returns the stored snapshot checksum for a board, or the
// empty string when the board is unknown.
func (db *DB) GetBoardChecksum(ctx context.Context, id string) (string, error) {
	var cs string
	err := db.conn.QueryRowContext(ctx, `SELECT checksum FROM boards WHERE id = ?`, id).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// SetBoardChecksum records the snapshot checksum after a successful sync.
func (db *DB) SetBoardChecksum(ctx context.Context, id, checksum string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE boards SET checksum = ? WHERE id = ?`, checksum, id)
	if err != nil {
		return fmt.Errorf("store: set board checksum: %w", err)
	}
	return nil
}

// AllBoardChecksums returns the snapshot checksum of every stored board.
func (db *DB) AllBoardChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, checksum FROM boards`)
	if err != nil {
		return nil, fmt.Errorf("store: all board checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}
