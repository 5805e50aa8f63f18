package boardservice

import (
	"context"
	"log/slog"

	"github.com/starford/tafl/internal/order"
	"github.com/starford/tafl/internal/txn"
)

// BringToFront raises the selected cards above everything else while keeping
// their relative order, committed as one undoable entry. Cards already at the
// front produce no transaction and no history entry.
func (s *Service) BringToFront(ctx context.Context, boardID string, ids []string) error {
	return s.reorder(ctx, boardID, ids, true, "bring to front")
}

// SendToBack lowers the selected cards below everything else.
func (s *Service) SendToBack(ctx context.Context, boardID string, ids []string) error {
	return s.reorder(ctx, boardID, ids, false, "send to back")
}

func (s *Service) reorder(ctx context.Context, boardID string, ids []string, front bool, desc string) error {
	if len(ids) == 0 {
		return nil
	}
	entries, keys, err := s.orderEntries(ctx, boardID)
	if err != nil {
		return err
	}

	var updates map[string]string
	if front {
		updates = order.BringToFront(ids, entries)
	} else {
		updates = order.SendToBack(ids, entries)
	}
	if len(updates) == 0 {
		return nil
	}

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	for id, key := range updates {
		tx.Update(id,
			map[string]any{"order_key": key},
			map[string]any{"order_key": keys[id]})
	}
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: true, Description: desc}); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")

	s.normalizeIfFragmented(ctx, boardID)
	return nil
}

// normalizeIfFragmented rewrites every ordering key to an evenly spaced run
// when repeated insertions have made the keys long. Maintenance only: it
// changes no relative order and produces no history entry, so an undo after
// normalization restores positions in the new key space.
func (s *Service) normalizeIfFragmented(ctx context.Context, boardID string) {
	entries, _, err := s.orderEntries(ctx, boardID)
	if err != nil {
		s.logger.Warn("boardservice: normalize check failed",
			slog.String("board_id", boardID), slog.String("error", err.Error()))
		return
	}
	if !order.ShouldNormalize(entries) {
		return
	}

	sess := s.boardSession(boardID)
	tx := sess.coord.Begin()
	for id, key := range order.Normalize(entries) {
		tx.Update(id, map[string]any{"order_key": key}, nil)
	}
	if err := sess.coord.Commit(ctx, boardID, tx, txn.CommitOptions{WithUndo: false}); err != nil {
		s.logger.Warn("boardservice: normalize commit failed",
			slog.String("board_id", boardID), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("boardservice: normalized ordering keys",
		slog.String("board_id", boardID), slog.Int("cards", len(entries)))
	s.publish("frame.updated", boardID, "")
}

// orderEntries loads the board's cards as ordering entries plus an id→key map.
func (s *Service) orderEntries(ctx context.Context, boardID string) ([]order.Entry, map[string]string, error) {
	cards, err := s.db.ListCards(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]order.Entry, 0, len(cards))
	keys := make(map[string]string, len(cards))
	for _, c := range cards {
		entries = append(entries, order.Entry{ID: c.ID, Key: c.OrderKey})
		keys[c.ID] = c.OrderKey
	}
	return entries, keys, nil
}
