package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/aarnphm/morph/internal"
	"github.com/aarnphm/morph/internal/agent"
	"github.com/aarnphm/morph/internal/handles"
	"github.com/aarnphm/morph/internal/mcpserver"
	"github.com/aarnphm/morph/internal/noteservice"
	"github.com/aarnphm/morph/internal/sse"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/vault"
	pkgconfig "github.com/aarnphm/morph/pkg/config"
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

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// runMCP serves morph tools over stdio for MCP clients. Logs go to stderr
// so stdout stays a clean protocol channel.
func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	db, err := store.Open(cfg.SQLite.EntityPath)
	if err != nil {
		return fmt.Errorf("init entity store: %w", err)
	}
	defer db.Close()

	hs, err := handles.Open(cfg.SQLite.HandlePath)
	if err != nil {
		return fmt.Errorf("init handle store: %w", err)
	}
	defer hs.Close()

	vaults := vault.NewService(db, hs, logger)

	broker := sse.NewBroker(0)
	defer broker.Close()

	backend := agent.New(cfg.Agent.BaseURL, agent.WithLogger(logger))
	notes := noteservice.New(ctx, db, vaults, backend, broker, logger)
	defer notes.Shutdown()

	return mcpserver.New(db, vaults, notes).ServeStdio()
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
		Name:   "morph",
		Usage:  "Local-first writing environment backend with vault trees, notes, and agent-driven suggestions",
		Action: run,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve morph tools over stdio for MCP clients",
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
