package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/txn"
)

// Commit applies a batch of partial entity updates inside one SQLite
// transaction. Every mutation must address an existing card, connector, or
// the board itself, all within the given board scope; any unknown id or field
// rolls back the whole batch.
func (db *DB) Commit(ctx context.Context, boardID string, muts []txn.Mutation) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, m := range muts {
		if err := applyMutation(ctx, tx, boardID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyMutation(ctx context.Context, tx *sql.Tx, boardID string, m txn.Mutation) error {
	row := tx.QueryRowContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE id = ? AND board_id = ?
	`, m.EntityID, boardID)
	card, err := scanCard(row)
	if err == nil {
		return updateCard(ctx, tx, card, m.Fields)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: load card %s: %w", m.EntityID, err)
	}

	row = tx.QueryRowContext(ctx, `
		SELECT `+connectorColumns+` FROM connectors WHERE id = ? AND board_id = ?
	`, m.EntityID, boardID)
	conn, err := scanConnector(row)
	if err == nil {
		return updateConnector(ctx, tx, conn, m.Fields)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: load connector %s: %w", m.EntityID, err)
	}

	if m.EntityID == boardID {
		return updateBoard(ctx, tx, boardID, m.Fields)
	}
	return fmt.Errorf("store: entity %s on board %s: %w", m.EntityID, boardID, apperr.ErrUnknownEntity)
}

func updateCard(ctx context.Context, tx *sql.Tx, c *models.Card, fields map[string]any) error {
	for k, v := range fields {
		switch k {
		case "x":
			p, err := asFloatPtr(v)
			if err != nil {
				return fieldErr(c.ID, k, err)
			}
			c.X = p
		case "y":
			p, err := asFloatPtr(v)
			if err != nil {
				return fieldErr(c.ID, k, err)
			}
			c.Y = p
		case "width":
			f, err := asFloat(v)
			if err != nil {
				return fieldErr(c.ID, k, err)
			}
			c.Width = f
		case "height":
			p, err := asFloatPtr(v)
			if err != nil {
				return fieldErr(c.ID, k, err)
			}
			c.Height = p
		case "order_key":
			s, ok := v.(string)
			if !ok {
				return fieldErr(c.ID, k, fmt.Errorf("want string, got %T", v))
			}
			c.OrderKey = s
		case "content":
			m, ok := v.(map[string]any)
			if !ok && v != nil {
				return fieldErr(c.ID, k, fmt.Errorf("want map, got %T", v))
			}
			c.Content = m
		case "members":
			mm, err := asMembers(v)
			if err != nil {
				return fieldErr(c.ID, k, err)
			}
			c.Members = mm
		case "updated_at":
			t, ok := v.(time.Time)
			if !ok {
				return fieldErr(c.ID, k, fmt.Errorf("want time, got %T", v))
			}
			c.UpdatedAt = t
		default:
			return fieldErr(c.ID, k, errors.New("no such card field"))
		}
	}

	contentJSON, _ := json.Marshal(orEmptyMap(c.Content))
	membersJSON, _ := json.Marshal(orEmptyMembers(c.Members))
	_, err := tx.ExecContext(ctx, `
		UPDATE cards SET x = ?, y = ?, width = ?, height = ?, order_key = ?,
			content = ?, members = ?, body = ?, updated_at = ?
		WHERE id = ?
	`, c.X, c.Y, c.Width, c.Height, c.OrderKey,
		string(contentJSON), string(membersJSON), searchBody(c.Content), c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("store: update card %s: %w", c.ID, err)
	}
	if err := ftsUpsertCard(tx, c.ID, c.BoardID, searchBody(c.Content)); err != nil {
		return err
	}
	return nil
}

func updateConnector(ctx context.Context, tx *sql.Tx, c *models.Connector, fields map[string]any) error {
	setScalar := func(dst *float64, k string, v any) error {
		f, err := asFloat(v)
		if err != nil {
			return fieldErr(c.ID, k, err)
		}
		*dst = f
		return nil
	}

	for k, v := range fields {
		var err error
		switch k {
		case "x":
			err = setScalar(&c.X, k, v)
		case "y":
			err = setScalar(&c.Y, k, v)
		case "start_x":
			err = setScalar(&c.StartX, k, v)
		case "start_y":
			err = setScalar(&c.StartY, k, v)
		case "end_x":
			err = setScalar(&c.EndX, k, v)
		case "end_y":
			err = setScalar(&c.EndY, k, v)
		case "curvature":
			err = setScalar(&c.Curvature, k, v)
		case "bias":
			err = setScalar(&c.Bias, k, v)
		case "nodes":
			var nodes []models.Node
			if nodes, err = asNodes(v); err != nil {
				err = fieldErr(c.ID, k, err)
				break
			}
			c.Nodes = nodes
		case "start_attach":
			var a *models.Attachment
			if a, err = asAttach(v); err != nil {
				err = fieldErr(c.ID, k, err)
				break
			}
			c.StartAttach = a
		case "end_attach":
			var a *models.Attachment
			if a, err = asAttach(v); err != nil {
				err = fieldErr(c.ID, k, err)
				break
			}
			c.EndAttach = a
		case "updated_at":
			t, ok := v.(time.Time)
			if !ok {
				err = fieldErr(c.ID, k, fmt.Errorf("want time, got %T", v))
				break
			}
			c.UpdatedAt = t
		default:
			err = fieldErr(c.ID, k, errors.New("no such connector field"))
		}
		if err != nil {
			return err
		}
	}

	nodesJSON, _ := json.Marshal(orEmptyNodes(c.Nodes))
	_, err := tx.ExecContext(ctx, `
		UPDATE connectors SET x = ?, y = ?, start_x = ?, start_y = ?, end_x = ?, end_y = ?,
			curvature = ?, bias = ?, nodes = ?, start_attach = ?, end_attach = ?, updated_at = ?
		WHERE id = ?
	`, c.X, c.Y, c.StartX, c.StartY, c.EndX, c.EndY,
		c.Curvature, c.Bias, string(nodesJSON),
		attachJSON(c.StartAttach), attachJSON(c.EndAttach), c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("store: update connector %s: %w", c.ID, err)
	}
	return nil
}

func updateBoard(ctx context.Context, tx *sql.Tx, id string, fields map[string]any) error {
	title := sql.NullString{}
	stamp := time.Time{}
	for k, v := range fields {
		switch k {
		case "title":
			s, ok := v.(string)
			if !ok {
				return fieldErr(id, k, fmt.Errorf("want string, got %T", v))
			}
			title = sql.NullString{String: s, Valid: true}
		case "updated_at":
			t, ok := v.(time.Time)
			if !ok {
				return fieldErr(id, k, fmt.Errorf("want time, got %T", v))
			}
			stamp = t
		default:
			return fieldErr(id, k, errors.New("no such board field"))
		}
	}

	var err error
	if title.Valid {
		_, err = tx.ExecContext(ctx, `UPDATE boards SET title = ?, updated_at = ? WHERE id = ?`,
			title.String, stamp, id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE boards SET updated_at = ? WHERE id = ?`, stamp, id)
	}
	if err != nil {
		return fmt.Errorf("store: update board %s: %w", id, err)
	}
	return nil
}

func fieldErr(id, field string, err error) error {
	return fmt.Errorf("store: entity %s field %q: %w", id, field, err)
}

func asFloat(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case int:
		return float64(f), nil
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

// asFloatPtr accepts nil (clear the column), a *float64, or a bare float64.
func asFloatPtr(v any) (*float64, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case *float64:
		return f, nil
	case float64:
		return models.Float64Ptr(f), nil
	case int:
		return models.Float64Ptr(float64(f)), nil
	}
	return nil, fmt.Errorf("want number or nil, got %T", v)
}

func asMembers(v any) ([]models.Member, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case []models.Member:
		return m, nil
	}
	return nil, fmt.Errorf("want member list, got %T", v)
}

func asNodes(v any) ([]models.Node, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case []models.Node:
		return n, nil
	}
	return nil, fmt.Errorf("want node list, got %T", v)
}

func asAttach(v any) (*models.Attachment, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case *models.Attachment:
		return a, nil
	case models.Attachment:
		return &a, nil
	}
	return nil, fmt.Errorf("want attachment or nil, got %T", v)
}
