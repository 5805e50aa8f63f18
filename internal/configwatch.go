package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/starford/tafl/pkg/config"
)

// watchConfig hot-reloads the log level when the config file changes on disk.
// Other settings require a restart; rewiring the store or HTTP listener under
// a live server is not worth the complexity. Blocks until ctx is cancelled.
func watchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("config watcher init failed", slog.String("error", err.Error()))
		return
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that rename-over the file
	// would otherwise silently detach the watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error("config watcher add failed",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	var debounce *time.Timer
	reload := func() {
		cfg := NewDefaultConfig()
		if err := pkgconfig.Load(path, cfg); err != nil {
			logger.Warn("config reload rejected", slog.String("error", err.Error()))
			return
		}
		if cfg.App.LogLevel == level.Level() {
			return
		}
		logger.Info("log level changed",
			slog.String("from", level.Level().String()),
			slog.String("to", cfg.App.LogLevel.String()))
		level.Set(cfg.App.LogLevel)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}
