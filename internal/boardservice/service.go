// Package boardservice coordinates the board store, the transaction
// coordinator, per-board undo history, and the interaction mode machine
// behind one facade the transports (HTTP, MCP) call into.
package boardservice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tafl/internal/mode"
	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/store"
	"github.com/starford/tafl/internal/txn"
)

// Publisher receives entity change notifications for fan-out to clients.
type Publisher interface {
	PublishBoardEvent(kind, boardID, entityID string)
}

// defaultHistoryLimit bounds each board's undo log.
const defaultHistoryLimit = 100

// Service is the board facade. Per-board session state (undo history and the
// interaction mode machine) is created lazily on first touch and evicted when
// the board is deleted.
type Service struct {
	db     store.BoardStore
	logger *slog.Logger
	pub    Publisher

	histLimit int
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the in-memory state of one open board.
type session struct {
	history *txn.MemHistory
	coord   *txn.Coordinator
	machine *mode.Machine
}

// Option is a functional option for configuring the service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithHistoryLimit caps each board's undo log.
func WithHistoryLimit(n int) Option {
	return func(s *Service) { s.histLimit = n }
}

// WithIDFunc overrides entity id generation. Tests use this for
// deterministic ids.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a board service over the given store.
func NewService(db store.BoardStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:        db,
		logger:    logger,
		histLimit: defaultHistoryLimit,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// boardSession returns (creating if needed) the session for a board.
func (s *Service) boardSession(boardID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[boardID]; ok {
		return sess
	}
	history := txn.NewMemHistory(s.histLimit, s.logger)
	sess := &session{
		history: history,
		coord:   txn.NewCoordinator(s.db, history),
		machine: mode.NewMachine(s.logger),
	}
	s.sessions[boardID] = sess
	return sess
}

func (s *Service) dropSession(boardID string) {
	s.mu.Lock()
	delete(s.sessions, boardID)
	s.mu.Unlock()
}

func (s *Service) publish(kind, boardID, entityID string) {
	if s.pub != nil {
		s.pub.PublishBoardEvent(kind, boardID, entityID)
	}
}

// CreateBoard creates an empty board.
func (s *Service) CreateBoard(ctx context.Context, title string) (*models.Board, error) {
	now := s.now().UTC()
	b := &models.Board{ID: s.newID(), Title: title, CreatedAt: now, UpdatedAt: now}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.db.CreateBoard(ctx, b); err != nil {
		return nil, err
	}
	s.publish("board.created", b.ID, b.ID)
	return b, nil
}

// GetBoard returns a board by id.
func (s *Service) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	return s.db.GetBoard(ctx, id)
}

// ListBoards returns every board.
func (s *Service) ListBoards(ctx context.Context) ([]models.Board, error) {
	return s.db.ListBoards(ctx)
}

// RenameBoard retitles a board as an undoable transaction.
func (s *Service) RenameBoard(ctx context.Context, id, title string) error {
	b, err := s.db.GetBoard(ctx, id)
	if err != nil {
		return err
	}
	if title == b.Title {
		return nil
	}
	check := models.Board{ID: id, Title: title}
	if err := check.Validate(); err != nil {
		return err
	}

	sess := s.boardSession(id)
	tx := sess.coord.Begin()
	tx.Update(id, map[string]any{"title": title}, map[string]any{"title": b.Title})
	if err := sess.coord.Commit(ctx, id, tx, txn.CommitOptions{WithUndo: true, Description: "rename board"}); err != nil {
		return err
	}
	s.publish("board.updated", id, id)
	return nil
}

// DeleteBoard removes a board, its contents, and its in-memory session.
func (s *Service) DeleteBoard(ctx context.Context, id string) error {
	if err := s.db.DeleteBoard(ctx, id); err != nil {
		return err
	}
	s.dropSession(id)
	s.publish("board.deleted", id, id)
	return nil
}

// Undo replays the most recent history entry's previous states. An empty
// history is a quiet no-op.
func (s *Service) Undo(ctx context.Context, boardID string) error {
	sess := s.boardSession(boardID)
	if err := sess.history.Undo(ctx); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")
	return nil
}

// Redo replays the next undone entry.
func (s *Service) Redo(ctx context.Context, boardID string) error {
	sess := s.boardSession(boardID)
	if err := sess.history.Redo(ctx); err != nil {
		return err
	}
	s.publish("frame.updated", boardID, "")
	return nil
}

// CanUndo reports whether the board has an undoable entry.
func (s *Service) CanUndo(boardID string) bool { return s.boardSession(boardID).history.CanUndo() }

// CanRedo reports whether the board has a redoable entry.
func (s *Service) CanRedo(boardID string) bool { return s.boardSession(boardID).history.CanRedo() }

// Search delegates full-text search over card content to the store.
func (s *Service) Search(ctx context.Context, boardID, query string, limit int) ([]store.SearchResult, error) {
	return s.db.Search(ctx, boardID, query, limit)
}
