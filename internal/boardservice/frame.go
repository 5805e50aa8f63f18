package boardservice

import (
	"context"

	"github.com/starford/tafl/internal/connector"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/layout"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/order"
)

// FrameCard is one card with its derived render state.
type FrameCard struct {
	Card     *models.Card    `json:"card"`
	Position *geometry.Point `json:"position,omitempty"`
	Rank     int             `json:"rank"`
}

// FrameConnector is one connector with its solved geometry.
type FrameConnector struct {
	Connector *models.Connector `json:"connector"`
	Path      string            `json:"path"`
	Start     geometry.Point    `json:"start"`
	End       geometry.Point    `json:"end"`
	Handle    geometry.Point    `json:"handle"`
}

// Frame is everything a client needs to render a board: cards with resolved
// positions and dense stacking ranks, connectors with solved SVG paths, and
// the session's undo availability and interaction mode.
type Frame struct {
	Board      *models.Board    `json:"board"`
	Cards      []FrameCard      `json:"cards"`
	Connectors []FrameConnector `json:"connectors"`
	CanUndo    bool             `json:"can_undo"`
	CanRedo    bool             `json:"can_redo"`
	Mode       string           `json:"mode"`
}

// FrameOptions carries live gesture state that substitutes stored values
// while a drag or edit is in flight, without being persisted.
type FrameOptions struct {
	Overrides layout.Overrides
	Heights   layout.Heights
}

// Frame assembles the render frame for a board.
func (s *Service) Frame(ctx context.Context, boardID string, opts FrameOptions) (*Frame, error) {
	board, err := s.db.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return nil, err
	}
	conns, err := s.db.ListConnectors(ctx, boardID)
	if err != nil {
		return nil, err
	}

	byID := cardMap(cards)
	entries := make([]order.Entry, 0, len(cards))
	for _, c := range cards {
		entries = append(entries, order.Entry{ID: c.ID, Key: c.OrderKey})
	}
	ranks := order.Ranks(entries)

	frameCards := make([]FrameCard, 0, len(cards))
	for _, c := range cards {
		frameCards = append(frameCards, FrameCard{
			Card:     c,
			Position: layout.ScreenPosition(c.ID, byID, opts.Overrides, opts.Heights, s.logger),
			Rank:     ranks[c.ID],
		})
	}

	lookup := s.rectLookupWith(byID, opts)
	frameConns := make([]FrameConnector, 0, len(conns))
	for _, c := range conns {
		r := s.resolveConnector(c, lookup)
		frameConns = append(frameConns, FrameConnector{
			Connector: c,
			Path:      connector.Path(r),
			Start:     r.Start,
			End:       r.End,
			Handle:    r.Handle,
		})
	}

	sess := s.boardSession(boardID)
	return &Frame{
		Board:      board,
		Cards:      frameCards,
		Connectors: frameConns,
		CanUndo:    sess.history.CanUndo(),
		CanRedo:    sess.history.CanRedo(),
		Mode:       sess.machine.Current().Kind.String(),
	}, nil
}

// selectionStrokeWidth widens connector hit testing so thin curves remain
// selectable.
const selectionStrokeWidth = 8.0

// SelectionHits returns the ids of cards and connectors touched by a
// rubber-band selection rectangle. Cards hit on bounds overlap; connectors on
// their sampled curve, not their bounding box.
func (s *Service) SelectionHits(ctx context.Context, boardID string, sel geometry.Rect) (cardIDs, connectorIDs []string, err error) {
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	conns, err := s.db.ListConnectors(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}

	byID := cardMap(cards)
	for _, c := range cards {
		pos := layout.ScreenPosition(c.ID, byID, nil, nil, s.logger)
		if pos == nil {
			continue
		}
		if sel.Overlaps(c.Rect(*pos)) {
			cardIDs = append(cardIDs, c.ID)
		}
	}

	lookup := s.rectLookup(byID)
	for _, c := range conns {
		r := s.resolveConnector(c, lookup)
		if connector.IntersectsRect(r, sel, selectionStrokeWidth) {
			connectorIDs = append(connectorIDs, c.ID)
		}
	}
	return cardIDs, connectorIDs, nil
}

// rectLookup builds a connector RectLookup over resolved card positions.
func (s *Service) rectLookup(byID map[string]*models.Card) connector.RectLookup {
	return s.rectLookupWith(byID, FrameOptions{})
}

func (s *Service) rectLookupWith(byID map[string]*models.Card, opts FrameOptions) connector.RectLookup {
	return func(cardID string) (geometry.Rect, bool) {
		c, ok := byID[cardID]
		if !ok {
			return geometry.Rect{}, false
		}
		pos := layout.ScreenPosition(cardID, byID, opts.Overrides, opts.Heights, s.logger)
		if pos == nil {
			return geometry.Rect{}, false
		}
		return c.Rect(*pos), true
	}
}

func (s *Service) resolveConnector(c *models.Connector, lookup connector.RectLookup) connector.Resolved {
	return connector.Resolve(c, lookup, s.logger)
}
