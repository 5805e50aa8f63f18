package boardservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/checksum"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/layout"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/order"
	"github.com/starford/tafl/internal/txn"
)

// CardParams describes a card to create. Zero Width/Height fall back to the
// kind defaults. Position is optional; a card created without one must be
// placed into a stack in the same request flow.
type CardParams struct {
	Kind     models.CardKind
	Position *geometry.Point
	Width    float64
	Height   *float64
	Content  map[string]any
}

// CreateCard creates a card on top of the stacking order.
func (s *Service) CreateCard(ctx context.Context, boardID string, p CardParams) (*models.Card, error) {
	if _, err := s.db.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return nil, err
	}

	topKey := ""
	for _, c := range cards {
		if c.OrderKey > topKey {
			topKey = c.OrderKey
		}
	}
	key, err := order.KeyBetween(topKey, "")
	if err != nil {
		return nil, fmt.Errorf("boardservice: order key: %w", err)
	}

	now := s.now().UTC()
	card := &models.Card{
		ID: s.newID(), BoardID: boardID, Kind: p.Kind,
		Width: p.Width, Height: p.Height,
		OrderKey: key, Content: p.Content,
		CreatedAt: now, UpdatedAt: now,
	}
	if p.Position != nil {
		card.X = models.Float64Ptr(p.Position.X)
		card.Y = models.Float64Ptr(p.Position.Y)
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.CreateCard(ctx, card); err != nil {
		return nil, err
	}
	s.publish("card.created", boardID, card.ID)
	return card, nil
}

// GetCard returns a card by id.
func (s *Service) GetCard(ctx context.Context, id string) (*models.Card, error) {
	return s.db.GetCard(ctx, id)
}

// DeleteCard removes a card. Any stack referencing it loses the member entry,
// and connectors attached to it are detached with their endpoints frozen at
// the last resolved position, so nothing on the board jumps. Deletion is not
// undoable.
func (s *Service) DeleteCard(ctx context.Context, boardID, id string) error {
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return err
	}
	byID := cardMap(cards)
	if _, ok := byID[id]; !ok {
		return s.db.DeleteCard(ctx, id) // surfaces ErrNotFound consistently
	}

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()

	for _, c := range cards {
		if !c.IsContainer() || c.MemberIndex(id) < 0 {
			continue
		}
		members, _ := layout.RemoveMember(c.Members, id)
		tx.Update(c.ID, map[string]any{"members": members}, nil)
	}

	s.detachConnectors(ctx, tx, boardID, id, byID)

	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: false}); err != nil {
		return err
	}
	if err := s.db.DeleteCard(ctx, id); err != nil {
		return err
	}
	s.publish("card.deleted", boardID, id)
	return nil
}

// detachConnectors freezes and frees every connector endpoint attached to the
// card being deleted.
func (s *Service) detachConnectors(ctx context.Context, tx *txn.Tx, boardID, cardID string, byID map[string]*models.Card) {
	conns, err := s.db.ListConnectors(ctx, boardID)
	if err != nil {
		s.logger.Warn("boardservice: list connectors for detach failed",
			slog.String("board_id", boardID), slog.String("error", err.Error()))
		return
	}
	lookup := s.rectLookup(byID)
	for _, conn := range conns {
		startHit := conn.StartAttach != nil && conn.StartAttach.CardID == cardID
		endHit := conn.EndAttach != nil && conn.EndAttach.CardID == cardID
		if !startHit && !endHit {
			continue
		}
		resolved := s.resolveConnector(conn, lookup)
		fields := map[string]any{}
		if startHit {
			fields["start_attach"] = nil
			fields["start_x"] = resolved.Start.X - conn.X
			fields["start_y"] = resolved.Start.Y - conn.Y
		}
		if endHit {
			fields["end_attach"] = nil
			fields["end_x"] = resolved.End.X - conn.X
			fields["end_y"] = resolved.End.Y - conn.Y
		}
		tx.Update(conn.ID, fields, nil)
	}
}

// MoveCards applies one drag gesture's final positions as a single undoable
// transaction: all cards move together, and one undo restores all of them.
func (s *Service) MoveCards(ctx context.Context, boardID string, moves map[string]geometry.Point) error {
	if len(moves) == 0 {
		return nil
	}
	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()

	for id, pos := range moves {
		card, err := s.db.GetCard(ctx, id)
		if err != nil {
			return err
		}
		tx.Update(id,
			map[string]any{"x": pos.X, "y": pos.Y},
			map[string]any{"x": card.X, "y": card.Y})
	}

	desc := fmt.Sprintf("move %d cards", len(moves))
	if len(moves) == 1 {
		desc = "move card"
	}
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: desc}); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")
	return nil
}

// ResizeCard commits a resize gesture's final extent as one undoable entry.
func (s *Service) ResizeCard(ctx context.Context, boardID, id string, width float64, height *float64) error {
	card, err := s.db.GetCard(ctx, id)
	if err != nil {
		return err
	}
	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	tx.Update(id,
		map[string]any{"width": width, "height": height},
		map[string]any{"width": card.Width, "height": card.Height})
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "resize card"}); err != nil {
		return err
	}
	s.publish("card.updated", boardID, id)
	return nil
}

// ContentChecksum returns the optimistic-concurrency token for a card's
// content payload. JSON marshalling sorts map keys, so equal content maps
// always produce equal checksums.
func ContentChecksum(content map[string]any) string {
	data, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

// UpdateCardContent replaces a card's content payload as one undoable entry.
// A non-empty ifMatch must equal the current content's checksum or the update
// fails with ErrConflict. In-place edits should go through
// BeginEdit/CommitEdit instead so unchanged edits produce no history entry.
func (s *Service) UpdateCardContent(ctx context.Context, boardID, id string, content map[string]any, ifMatch string) error {
	card, err := s.db.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if ifMatch != "" && ifMatch != ContentChecksum(card.Content) {
		return fmt.Errorf("boardservice: content changed since read: %w", apperr.ErrConflict)
	}
	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	tx.Update(id,
		map[string]any{"content": content},
		map[string]any{"content": card.Content})
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "edit card"}); err != nil {
		return err
	}
	s.publish("card.updated", boardID, id)
	return nil
}

func cardMap(cards []*models.Card) map[string]*models.Card {
	m := make(map[string]*models.Card, len(cards))
	for _, c := range cards {
		m[c.ID] = c
	}
	return m
}
