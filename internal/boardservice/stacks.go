package boardservice

import (
	"context"
	"fmt"

	"github.com/starford/tafl/internal/apperr"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/layout"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/txn"
)

// AddToStack inserts a card into a stack's member list at the given position
// (clamped) and clears the card's explicit coordinates, both in one undoable
// transaction so the position-source invariant never breaks mid-flight.
func (s *Service) AddToStack(ctx context.Context, boardID, stackID, cardID string, at int) error {
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return err
	}
	byID := cardMap(cards)

	stack, ok := byID[stackID]
	if !ok {
		return fmt.Errorf("boardservice: stack %s: %w", stackID, apperr.ErrNotFound)
	}
	if !stack.IsContainer() {
		return fmt.Errorf("boardservice: card %s is not a stack", stackID)
	}
	card, ok := byID[cardID]
	if !ok {
		return fmt.Errorf("boardservice: card %s: %w", cardID, apperr.ErrNotFound)
	}
	if stack.MemberIndex(cardID) >= 0 {
		return nil
	}
	if cardID == stackID {
		return fmt.Errorf("boardservice: stack cannot contain itself")
	}

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()

	// If another stack currently holds the card, this is a move between
	// stacks: the old membership goes away in the same transaction.
	for _, c := range cards {
		if c.ID != stackID && c.IsContainer() && c.MemberIndex(cardID) >= 0 {
			members, _ := layout.RemoveMember(c.Members, cardID)
			tx.Update(c.ID, map[string]any{"members": members}, map[string]any{"members": c.Members})
		}
	}

	tx.Update(stackID,
		map[string]any{"members": layout.InsertMember(stack.Members, cardID, at)},
		map[string]any{"members": stack.Members})
	tx.Update(cardID,
		map[string]any{"x": nil, "y": nil},
		map[string]any{"x": card.X, "y": card.Y})

	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "add to stack"}); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")
	return nil
}

// RemoveFromStack pulls a card out of its stack and gives it explicit
// coordinates equal to its last derived screen position, so it stays visually
// in place, in one undoable transaction. dropPos overrides the landing
// position when the gesture ended somewhere else.
func (s *Service) RemoveFromStack(ctx context.Context, boardID, cardID string, dropPos *geometry.Point) error {
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return err
	}
	byID := cardMap(cards)

	card, ok := byID[cardID]
	if !ok {
		return fmt.Errorf("boardservice: card %s: %w", cardID, apperr.ErrNotFound)
	}

	var stack *cardRef
	for _, c := range cards {
		if c.IsContainer() && c.MemberIndex(cardID) >= 0 {
			stack = &cardRef{c.ID, c.Members}
			break
		}
	}
	if stack == nil {
		return fmt.Errorf("boardservice: card %s is not in a stack", cardID)
	}

	// Resolve the landing position before the membership changes.
	pos := dropPos
	if pos == nil {
		pos = layout.ScreenPosition(cardID, byID, nil, nil, s.logger)
	}
	if pos == nil {
		return fmt.Errorf("boardservice: card %s has no resolvable position", cardID)
	}

	members, _ := layout.RemoveMember(stack.members, cardID)

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	tx.Update(stack.id,
		map[string]any{"members": members},
		map[string]any{"members": stack.members})
	tx.Update(cardID,
		map[string]any{"x": pos.X, "y": pos.Y},
		map[string]any{"x": card.X, "y": card.Y})

	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "remove from stack"}); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")
	return nil
}

// MoveWithinStack moves a member to a new position inside the same stack,
// reindexing the member list to a contiguous run, as one undoable entry.
func (s *Service) MoveWithinStack(ctx context.Context, boardID, stackID, cardID string, to int) error {
	stack, err := s.db.GetCard(ctx, stackID)
	if err != nil {
		return err
	}
	if !stack.IsContainer() {
		return fmt.Errorf("boardservice: card %s is not a stack", stackID)
	}
	members, found := layout.RemoveMember(stack.Members, cardID)
	if !found {
		return fmt.Errorf("boardservice: card %s is not in stack %s", cardID, stackID)
	}
	next := layout.InsertMember(members, cardID, to)

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	tx.Update(stackID,
		map[string]any{"members": next},
		map[string]any{"members": stack.Members})
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "reorder stack"}); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")
	return nil
}

type cardRef struct {
	id      string
	members []models.Member
}
