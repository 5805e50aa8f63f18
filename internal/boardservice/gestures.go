package boardservice

import (
	"context"

	"github.com/starford/tafl/internal/mode"
	"github.com/starford/tafl/internal/txn"
)

// Mode returns the board's current interaction mode.
func (s *Service) Mode(boardID string) mode.Mode {
	return s.boardSession(boardID).machine.Current()
}

// StartGesture transitions the board's mode machine into a new gesture.
// Gestures may only start from idle, except that anything may interrupt
// panning; editing must go through BeginEdit.
func (s *Service) StartGesture(boardID string, m mode.Mode) error {
	return s.boardSession(boardID).machine.Set(m)
}

// CancelGesture unconditionally returns the board to idle, discarding any
// gesture state and any pending edit snapshot.
func (s *Service) CancelGesture(boardID string) {
	s.boardSession(boardID).machine.ResetToIdle()
}

// BeginEdit enters editing mode for a card, capturing its pre-edit content as
// the snapshot later diffed by CommitEdit.
func (s *Service) BeginEdit(ctx context.Context, boardID, cardID string) error {
	card, err := s.db.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	return s.boardSession(boardID).machine.BeginEdit(cardID, card.Content)
}

// CommitEdit leaves editing mode with the card's final content. When nothing
// differs from the pre-edit snapshot, no write and no history entry happen;
// otherwise the full content map is committed as one undoable entry.
func (s *Service) CommitEdit(ctx context.Context, boardID string, content map[string]any) error {
	sess := s.boardSession(boardID)
	cardID := sess.machine.Current().CardID

	changed, _, err := sess.machine.EndEdit(content)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	card, err := s.db.GetCard(ctx, cardID)
	if err != nil {
		return err
	}

	tx := sess.coord.Begin()
	tx.Update(cardID,
		map[string]any{"content": content},
		map[string]any{"content": card.Content})
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: "edit card"}); err != nil {
		return err
	}
	s.publish("card.updated", boardID, cardID)
	return nil
}
