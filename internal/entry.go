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

	"github.com/aarnphm/morph/internal/agent"
	"github.com/aarnphm/morph/internal/api"
	"github.com/aarnphm/morph/internal/handles"
	"github.com/aarnphm/morph/internal/noteservice"
	"github.com/aarnphm/morph/internal/sse"
	"github.com/aarnphm/morph/internal/store"
	"github.com/aarnphm/morph/internal/task"
	"github.com/aarnphm/morph/internal/vault"
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

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("entity_db", cfg.SQLite.EntityPath),
		slog.String("handle_db", cfg.SQLite.HandlePath),
		slog.String("agent_url", cfg.Agent.BaseURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the entity store.
	db, err := store.Open(cfg.SQLite.EntityPath)
	if err != nil {
		return fmt.Errorf("init entity store: %w", err)
	}
	defer db.Close()

	// Open the handle store.
	hs, err := handles.Open(cfg.SQLite.HandlePath)
	if err != nil {
		return fmt.Errorf("init handle store: %w", err)
	}
	defer hs.Close()

	vaults := vault.NewService(db, hs, logger)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Agent client.
	backend := agent.New(cfg.Agent.BaseURL,
		agent.WithHTTPClient(&http.Client{Timeout: cfg.Agent.RequestTimeout.Std()}),
		agent.WithLogger(logger))
	if !backend.Available(ctx) {
		logger.Warn("agent not reachable, suggestions and embeddings degraded",
			slog.String("agent_url", cfg.Agent.BaseURL))
	}

	notes := noteservice.New(ctx, db, vaults, backend, broker, logger,
		task.WithMaxDuration(cfg.Agent.MaxPollDuration.Std()))
	defer notes.Shutdown()

	// Build API router.
	apiRouter := api.NewRouter(db, vaults, notes, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
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

	// Watch the active vault; re-arm the watcher on every vault switch.
	switches := make(chan string, 1)
	vaults.OnSwitch(func(_, newID string) {
		select {
		case switches <- newID:
		default:
		}
	})
	g.Go(func() error {
		var cancel context.CancelFunc
		defer func() {
			if cancel != nil {
				cancel()
			}
		}()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case vaultID := <-switches:
				if cancel != nil {
					cancel()
					cancel = nil
				}
				if vaultID == "" {
					continue
				}
				var watchCtx context.Context
				watchCtx, cancel = context.WithCancel(gCtx)
				go func(id string) {
					if err := vault.Watch(watchCtx, vaults, id, logger, func(kind, fileID string) {
						broker.PublishTreeEvent(id)
					}); err != nil {
						logger.Warn("vault watcher stopped",
							slog.String("vault_id", id),
							slog.String("error", err.Error()))
					}
				}(vaultID)
			}
		}
	})

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
