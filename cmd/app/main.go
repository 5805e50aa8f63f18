package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/tafl/internal"
	"github.com/starford/tafl/internal/boardservice"
	"github.com/starford/tafl/internal/mcpserver"
	"github.com/starford/tafl/internal/store"
	pkgconfig "github.com/starford/tafl/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(cmd.String("config")),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// runMCP serves board tools over stdio for LLM integration. Logs go to
// stderr; stdout belongs to the MCP transport.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	svc := boardservice.NewService(db, logger,
		boardservice.WithHistoryLimit(cfg.History.Limit))

	return mcpserver.New(svc).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "tafl",
		Usage:  "Local-first visual board editor with cards, connectors, stacks, and per-board undo",
		Action: run,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve board tools over MCP stdio transport",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
