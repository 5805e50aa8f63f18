// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tafl/internal/api"
	"github.com/starford/tafl/internal/boardservice"
	"github.com/starford/tafl/internal/snapshot"
	"github.com/starford/tafl/internal/sse"
	"github.com/starford/tafl/internal/storage"
	"github.com/starford/tafl/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. The level lives in a LevelVar so the
	// config watcher can adjust it at runtime.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("snapshots_path", cfg.Snapshots.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure snapshot directory exists.
	if err := os.MkdirAll(cfg.Snapshots.Path, 0o755); err != nil {
		return fmt.Errorf("create snapshots dir: %w", err)
	}

	// Initialize snapshot storage.
	provider, err := storage.NewFS(cfg.Snapshots.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite board store.
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	// Run initial sync.
	if err := snapshot.Sync(ctx, db, provider, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(250 * time.Millisecond)

	// Build board service and API router.
	svc := boardservice.NewService(db, logger,
		boardservice.WithPublisher(broker),
		boardservice.WithHistoryLimit(cfg.History.Limit))
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start snapshot watcher with SSE callback.
	g.Go(func() error {
		snapshot.Watch(gCtx, db, provider, cfg.Snapshots.Path, logger, func(kind, boardID string) {
			broker.PublishBoardEvent("snapshot."+kind, boardID, boardID)
		})
		return nil
	})

	// Hot-reload the log level when the config file changes.
	if app.configPath != "" {
		g.Go(func() error {
			watchConfig(gCtx, app.configPath, logLevel, logger)
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		broker.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
