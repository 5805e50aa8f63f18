package boardservice

import (
	"context"

	"github.com/starford/tafl/internal/curve"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/txn"
)

// ConnectorParams describes a connector to create. Attachments are optional;
// Start and End are the stored fallback endpoints in board space.
type ConnectorParams struct {
	Start       geometry.Point
	End         geometry.Point
	Curvature   float64
	Bias        float64
	StartAttach *models.Attachment
	EndAttach   *models.Attachment
}

// CreateConnector creates a connector. Stored endpoints are kept relative to
// the connector origin, which is placed at the start point.
func (s *Service) CreateConnector(ctx context.Context, boardID string, p ConnectorParams) (*models.Connector, error) {
	if _, err := s.db.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	conn := &models.Connector{
		ID: s.newID(), BoardID: boardID,
		X: p.Start.X, Y: p.Start.Y,
		StartX: 0, StartY: 0,
		EndX: p.End.X - p.Start.X, EndY: p.End.Y - p.Start.Y,
		Curvature: p.Curvature, Bias: p.Bias,
		StartAttach: p.StartAttach, EndAttach: p.EndAttach,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.CreateConnector(ctx, conn); err != nil {
		return nil, err
	}
	s.publish("connector.created", boardID, conn.ID)
	return conn, nil
}

// DeleteConnector removes a connector. Not undoable.
func (s *Service) DeleteConnector(ctx context.Context, boardID, id string) error {
	if err := s.db.DeleteConnector(ctx, id); err != nil {
		return err
	}
	s.publish("connector.deleted", boardID, id)
	return nil
}

// DragConnectorHandle commits the final handle position of a handle drag:
// the handle is projected back onto the chord frame of the currently resolved
// endpoints, constrained, and stored as curvature and bias.
func (s *Service) DragConnectorHandle(ctx context.Context, boardID, id string, handle geometry.Point) error {
	conn, err := s.db.GetConnector(ctx, id)
	if err != nil {
		return err
	}
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return err
	}

	resolved := s.resolveConnector(conn, s.rectLookup(cardMap(cards)))
	control := curve.ControlFromHandle(resolved.Start, resolved.End, handle)
	control = curve.Constrain(resolved.Start, resolved.End, control)

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	tx.Update(id,
		map[string]any{"curvature": control.Curvature, "bias": control.Bias},
		map[string]any{"curvature": conn.Curvature, "bias": conn.Bias})
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "bend connector"}); err != nil {
		return err
	}
	s.publish("connector.updated", boardID, id)
	return nil
}

// AttachEndpoint binds one connector endpoint to a card. start selects which
// endpoint. The stored fallback coordinates keep their last value.
func (s *Service) AttachEndpoint(ctx context.Context, boardID, id string, start bool, cardID string) error {
	conn, err := s.db.GetConnector(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.GetCard(ctx, cardID); err != nil {
		return err
	}

	fields := map[string]any{}
	prev := map[string]any{}
	if start {
		fields["start_attach"] = &models.Attachment{CardID: cardID}
		prev["start_attach"] = conn.StartAttach
	} else {
		fields["end_attach"] = &models.Attachment{CardID: cardID}
		prev["end_attach"] = conn.EndAttach
	}
	return s.commitConnector(ctx, boardID, id, fields, prev, "attach connector")
}

// DetachEndpoint frees one connector endpoint at the given board-space
// position.
func (s *Service) DetachEndpoint(ctx context.Context, boardID, id string, start bool, at geometry.Point) error {
	conn, err := s.db.GetConnector(ctx, id)
	if err != nil {
		return err
	}

	fields := map[string]any{}
	prev := map[string]any{}
	if start {
		fields["start_attach"] = nil
		fields["start_x"] = at.X - conn.X
		fields["start_y"] = at.Y - conn.Y
		prev["start_attach"] = conn.StartAttach
		prev["start_x"] = conn.StartX
		prev["start_y"] = conn.StartY
	} else {
		fields["end_attach"] = nil
		fields["end_x"] = at.X - conn.X
		fields["end_y"] = at.Y - conn.Y
		prev["end_attach"] = conn.EndAttach
		prev["end_x"] = conn.EndX
		prev["end_y"] = conn.EndY
	}
	return s.commitConnector(ctx, boardID, id, fields, prev, "detach connector")
}

// SetConnectorNodes replaces the connector's reroute waypoints.
func (s *Service) SetConnectorNodes(ctx context.Context, boardID, id string, nodes []models.Node) error {
	conn, err := s.db.GetConnector(ctx, id)
	if err != nil {
		return err
	}
	return s.commitConnector(ctx, boardID, id,
		map[string]any{"nodes": nodes},
		map[string]any{"nodes": conn.Nodes},
		"reroute connector")
}

func (s *Service) commitConnector(ctx context.Context, boardID, id string, fields, prev map[string]any, desc string) error {
	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	tx.Update(id, fields, prev)
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: desc}); err != nil {
		return err
	}
	s.publish("connector.updated", boardID, id)
	return nil
}
