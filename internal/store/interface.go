package store

import (
	"context"

	"github.com/starford/tafl/internal/models"
	"github.com/starford/tafl/internal/txn"
)

// SearchResult represents one search hit.
type SearchResult struct {
	CardID  string
	BoardID string
	Snippet string
}

// BoardStore defines the persistence operations the service layer depends on.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type BoardStore interface {
	CreateBoard(ctx context.Context, b *models.Board) error
	GetBoard(ctx context.Context, id string) (*models.Board, error)
	ListBoards(ctx context.Context) ([]models.Board, error)
	DeleteBoard(ctx context.Context, id string) error
	GetBoardChecksum(ctx context.Context, id string) (string, error)
	SetBoardChecksum(ctx context.Context, id, checksum string) error
	AllBoardChecksums(ctx context.Context) (map[string]string, error)

	CreateCard(ctx context.Context, c *models.Card) error
	GetCard(ctx context.Context, id string) (*models.Card, error)
	ListCards(ctx context.Context, boardID string) ([]*models.Card, error)
	DeleteCard(ctx context.Context, id string) error

	CreateConnector(ctx context.Context, c *models.Connector) error
	GetConnector(ctx context.Context, id string) (*models.Connector, error)
	ListConnectors(ctx context.Context, boardID string) ([]*models.Connector, error)
	DeleteConnector(ctx context.Context, id string) error

	Search(ctx context.Context, boardID, query string, limit int) ([]SearchResult, error)

	// Commit is the atomic partial-update port used by the transaction
	// coordinator.
	Commit(ctx context.Context, boardID string, muts []txn.Mutation) error

	Close() error
}

// Verify *DB satisfies BoardStore at compile time.
var _ BoardStore = (*DB)(nil)
