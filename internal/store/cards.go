package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/models"
)

const cardColumns = `id, board_id, kind, x, y, width, height, order_key, content, members, created_at, updated_at`

// CreateCard inserts a new card.
func (db *DB) CreateCard(ctx context.Context, c *models.Card) error {
	contentJSON, _ := json.Marshal(orEmptyMap(c.Content))
	membersJSON, _ := json.Marshal(orEmptyMembers(c.Members))

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (id, board_id, kind, x, y, width, height, order_key, content, members, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.BoardID, string(c.Kind), c.X, c.Y, c.Width, c.Height, c.OrderKey,
		string(contentJSON), string(membersJSON), searchBody(c.Content), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: card %s: %w", c.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: create card: %w", err)
	}
	if err := ftsUpsertCard(tx, c.ID, c.BoardID, searchBody(c.Content)); err != nil {
		return err
	}
	return tx.Commit()
}

// GetCard returns a card by id.
func (db *DB) GetCard(ctx context.Context, id string) (*models.Card, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: card %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get card: %w", err)
	}
	return c, nil
}

// ListCards returns every card on a board ordered by stacking key ascending.
func (db *DB) ListCards(ctx context.Context, boardID string) ([]*models.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE board_id = ? ORDER BY order_key ASC, id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("store: list cards: %w", err)
	}
	defer rows.Close()

	var out []*models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCard removes a card and its search entry.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: card %s: %w", id, apperr.ErrNotFound)
	}
	ftsDeleteCard(tx, id)
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(r rowScanner) (*models.Card, error) {
	var (
		c            models.Card
		kind         string
		x, y, height sql.NullFloat64
		contentJSON  string
		membersJSON  string
	)
	err := r.Scan(&c.ID, &c.BoardID, &kind, &x, &y, &c.Width, &height,
		&c.OrderKey, &contentJSON, &membersJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Kind = models.CardKind(kind)
	if x.Valid {
		c.X = models.Float64Ptr(x.Float64)
	}
	if y.Valid {
		c.Y = models.Float64Ptr(y.Float64)
	}
	if height.Valid {
		c.Height = models.Float64Ptr(height.Float64)
	}
	if err := json.Unmarshal([]byte(contentJSON), &c.Content); err != nil {
		return nil, fmt.Errorf("store: card %s content: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(membersJSON), &c.Members); err != nil {
		return nil, fmt.Errorf("store: card %s members: %w", c.ID, err)
	}
	if len(c.Members) == 0 {
		c.Members = nil
	}
	return &c, nil
}

// searchBody flattens a card's string content values into one searchable blob.
// Keys are sorted so the body is deterministic.
func searchBody(content map[string]any) string {
	if len(content) == 0 {
		return ""
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		if s, ok := content[k].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyMembers(m []models.Member) []models.Member {
	if m == nil {
		return []models.Member{}
	}
	return m
}
