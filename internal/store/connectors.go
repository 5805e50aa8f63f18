package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/models"
)

const connectorColumns = `id, board_id, x, y, start_x, start_y, end_x, end_y,
	curvature, bias, nodes, start_attach, end_attach, created_at, updated_at`

// CreateConnector inserts a new connector.
func (db *DB) CreateConnector(ctx context.Context, c *models.Connector) error {
	nodesJSON, _ := json.Marshal(orEmptyNodes(c.Nodes))

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO connectors (id, board_id, x, y, start_x, start_y, end_x, end_y,
			curvature, bias, nodes, start_attach, end_attach, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.BoardID, c.X, c.Y, c.StartX, c.StartY, c.EndX, c.EndY,
		c.Curvature, c.Bias, string(nodesJSON),
		attachJSON(c.StartAttach), attachJSON(c.EndAttach), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("store: connector %s: %w", c.ID, apperr.ErrAlreadyExists)
		}
		return fmt.Errorf("store: create connector: %w", err)
	}
	return nil
}

// GetConnector returns a connector by id.
func (db *DB) GetConnector(ctx context.Context, id string) (*models.Connector, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+connectorColumns+` FROM connectors WHERE id = ?`, id)
	c, err := scanConnector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: connector %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get connector: %w", err)
	}
	return c, nil
}

// ListConnectors returns every connector on a board.
func (db *DB) ListConnectors(ctx context.Context, boardID string) ([]*models.Connector, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+connectorColumns+` FROM connectors WHERE board_id = ? ORDER BY id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("store: list connectors: %w", err)
	}
	defer rows.Close()

	var out []*models.Connector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConnector removes a connector.
func (db *DB) DeleteConnector(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM connectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete connector: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: connector %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func scanConnector(r rowScanner) (*models.Connector, error) {
	var (
		c                models.Connector
		nodesJSON        string
		startRaw, endRaw sql.NullString
	)
	err := r.Scan(&c.ID, &c.BoardID, &c.X, &c.Y, &c.StartX, &c.StartY, &c.EndX, &c.EndY,
		&c.Curvature, &c.Bias, &nodesJSON, &startRaw, &endRaw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(nodesJSON), &c.Nodes); err != nil {
		return nil, fmt.Errorf("store: connector %s nodes: %w", c.ID, err)
	}
	if len(c.Nodes) == 0 {
		c.Nodes = nil
	}
	if c.StartAttach, err = parseAttach(startRaw); err != nil {
		return nil, fmt.Errorf("store: connector %s start attach: %w", c.ID, err)
	}
	if c.EndAttach, err = parseAttach(endRaw); err != nil {
		return nil, fmt.Errorf("store: connector %s end attach: %w", c.ID, err)
	}
	return &c, nil
}

// attachJSON serializes an attachment, NULL when the endpoint is free.
func attachJSON(a *models.Attachment) any {
	if a == nil {
		return nil
	}
	b, _ := json.Marshal(a)
	return string(b)
}

func parseAttach(raw sql.NullString) (*models.Attachment, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var a models.Attachment
	if err := json.Unmarshal([]byte(raw.String), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func orEmptyNodes(n []models.Node) []models.Node {
	if n == nil {
		return []models.Node{}
	}
	return n
}
