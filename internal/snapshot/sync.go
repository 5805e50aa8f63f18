package snapshot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/starford/tafl/internal/checksum"
	"github.com/starford/tafl/internal/storage"
	"github.com/starford/tafl/internal/store"
)

// fileName returns the snapshot path for a board, relative to the root.
func fileName(boardID string) string { return boardID + ".json" }

// boardIDFromPath inverts fileName. Returns "" for non-snapshot paths.
func boardIDFromPath(path string) string {
	if !strings.HasSuffix(path, ".json") || strings.ContainsRune(path, '/') {
		return ""
	}
	return strings.TrimSuffix(path, ".json")
}

// Export writes one board's snapshot document and records its checksum.
func Export(ctx context.Context, db store.BoardStore, provider storage.Provider, boardID string) error {
	board, err := db.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	cards, err := db.ListCards(ctx, boardID)
	if err != nil {
		return err
	}
	conns, err := db.ListConnectors(ctx, boardID)
	if err != nil {
		return err
	}

	data, err := Encode(&Document{Board: *board, Cards: cards, Connectors: conns})
	if err != nil {
		return err
	}
	if err := provider.Write(fileName(boardID), data); err != nil {
		return err
	}
	return db.SetBoardChecksum(ctx, boardID, checksum.Sum(data))
}

// Import replaces a board's stored contents with the document in data.
// An existing board with the same id is dropped first; the file's checksum is
// recorded so Sync treats the store and the snapshot as consistent.
func Import(ctx context.Context, db store.BoardStore, data []byte) (string, error) {
	doc, err := Decode(data)
	if err != nil {
		return "", err
	}

	// Replace wholesale. External edits win over stored state.
	if _, err := db.GetBoard(ctx, doc.Board.ID); err == nil {
		if err := db.DeleteBoard(ctx, doc.Board.ID); err != nil {
			return "", err
		}
	}
	if err := db.CreateBoard(ctx, &doc.Board); err != nil {
		return "", err
	}
	for _, c := range doc.Cards {
		if err := db.CreateCard(ctx, c); err != nil {
			return "", err
		}
	}
	for _, c := range doc.Connectors {
		if err := db.CreateConnector(ctx, c); err != nil {
			return "", err
		}
	}
	if err := db.SetBoardChecksum(ctx, doc.Board.ID, checksum.Sum(data)); err != nil {
		return "", err
	}
	return doc.Board.ID, nil
}

// Sync reconciles the snapshot directory with the store at startup:
//   - snapshot files whose checksum differs from the stored one are imported
//   - boards without a snapshot file are exported
//
// Files are never deleted here; a vanished snapshot is re-exported instead.
func Sync(ctx context.Context, db store.BoardStore, provider storage.Provider, logger *slog.Logger) error {
	metas, err := provider.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllBoardChecksums(ctx)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		id := boardIDFromPath(m.Path)
		if id == "" {
			continue
		}
		disk[id] = struct{}{}

		if checksums[id] == m.Checksum {
			continue
		}
		data, readErr := provider.Read(m.Path)
		if readErr != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", readErr.Error()))
			continue
		}
		if _, impErr := Import(ctx, db, data); impErr != nil {
			logger.Warn("sync: import failed", slog.String("path", m.Path), slog.String("error", impErr.Error()))
		} else {
			logger.Debug("sync: imported", slog.String("board_id", id))
		}
	}

	// Export boards that have no snapshot on disk.
	boards, err := db.ListBoards(ctx)
	if err != nil {
		return err
	}
	for _, b := range boards {
		if _, ok := disk[b.ID]; ok {
			continue
		}
		if expErr := Export(ctx, db, provider, b.ID); expErr != nil {
			logger.Warn("sync: export failed", slog.String("board_id", b.ID), slog.String("error", expErr.Error()))
		} else {
			logger.Debug("sync: exported", slog.String("board_id", b.ID))
		}
	}

	return nil
}
