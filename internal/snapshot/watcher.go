package snapshot

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tafl/internal/checksum"
	"github.com/starford/tafl/internal/storage"
	"github.com/starford/tafl/internal/store"
)

// EventCallback is called after a watcher-driven store change.
// kind is one of "imported", "removed".
type EventCallback func(kind string, boardID string)

// Watch starts an fsnotify watcher on the snapshot root and imports external
// edits until ctx is cancelled. It calls cb (if non-nil) after each
// successful store mutation.
//
// The snapshot directory is flat, so only the root itself is watched. A write
// whose checksum matches the stored one is skipped; that suppresses the
// events our own Export raises. Rename and remove events clear the stored
// checksum and schedule a debounced reconciliation pass so the snapshot is
// re-exported.
func Watch(ctx context.Context, db store.BoardStore, provider storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Sync(ctx, db, provider, logger); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel := filepath.Base(ev.Name)
			if strings.HasSuffix(rel, ".tmp") || !strings.HasSuffix(rel, ".json") {
				continue
			}
			boardID := boardIDFromPath(rel)
			if boardID == "" {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := provider.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				stored, _ := db.GetBoardChecksum(ctx, boardID)
				if stored == checksum.Sum(data) {
					continue
				}
				id, impErr := Import(ctx, db, data)
				if impErr != nil {
					logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", impErr.Error()))
					continue
				}
				logger.Debug("watcher: imported", slog.String("board_id", id))
				if cb != nil {
					cb("imported", id)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// The board stays in the store. Clearing the checksum makes
				// the reconciliation pass write a fresh snapshot.
				if csErr := db.SetBoardChecksum(ctx, boardID, ""); csErr != nil {
					logger.Warn("watcher: checksum clear failed", slog.String("board_id", boardID), slog.String("error", csErr.Error()))
					continue
				}
				logger.Debug("watcher: snapshot removed", slog.String("board_id", boardID))
				if cb != nil {
					cb("removed", boardID)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
