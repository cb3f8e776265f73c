// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/syllabus/internal/api"
	"github.com/starford/syllabus/internal/catalog"
	"github.com/starford/syllabus/internal/catalogservice"
	"github.com/starford/syllabus/internal/loader"
	"github.com/starford/syllabus/internal/mcpserver"
	"github.com/starford/syllabus/internal/sse"
	"github.com/starford/syllabus/internal/storage"
	"github.com/starford/syllabus/internal/web"
)

// Run loads the catalog and serves the dashboard and JSON API over HTTP.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	svc, err := loadService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	views, err := web.New(svc)
	if err != nil {
		return err
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints.
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(svc))

	// Mount API routes under /api, pages at the root.
	r.Mount("/api", api.NewRouter(svc, broker))
	r.Mount("/", views.Routes())

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the catalog when the artifacts change.
	if cfg.Data.Watch {
		g.Go(func() error {
			watchAndReload(gCtx, cfg, svc, broker, logger)
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
		defer signal.Stop(quit)

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

		// Unblock the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP loads the catalog and serves the MCP tools over stdio. Logs go to
// stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config

	svc, err := loadService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Data.Watch {
		go watchAndReload(ctx, cfg, svc, nil, logger)
	}

	logger.Info("MCP server starting on stdio")
	if err := mcpserver.New(svc, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

var errShutdown = errors.New("shutdown")

func setup(opts []Option, defaultOut io.Writer) (*application, *slog.Logger, error) {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	out := app.logOutput
	if out == nil {
		out = defaultOut
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	cfg := app.config
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("data_format", cfg.Data.Format),
		slog.Bool("watch", cfg.Data.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	return app, logger, nil
}

// loadService performs the initial load. A missing artifact or column is
// fatal at startup.
func loadService(ctx context.Context, cfg *Config, logger *slog.Logger) (*catalogservice.Service, error) {
	svc := catalogservice.New(func(ctx context.Context) (*catalog.Catalog, error) {
		return loadCatalog(ctx, cfg, logger)
	}, logger)
	if _, err := svc.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}
	return svc, nil
}

// loadCatalog opens the configured source, loads it and closes it again, so
// that a replaced SQLite file is picked up on the next load.
func loadCatalog(ctx context.Context, cfg *Config, logger *slog.Logger) (*catalog.Catalog, error) {
	store, err := openProvider(cfg.Data)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return loader.Load(ctx, store, loader.Options{
		Tables:  cfg.Data.LoaderTables(),
		Catalog: cfg.Query.CatalogOptions(),
	}, logger)
}

func openProvider(c DataConfig) (storage.Provider, error) {
	switch c.Format {
	case FormatSQLite:
		return storage.OpenSQLite(c.SQLitePath())
	default:
		return storage.NewCSVDir(c.Dir)
	}
}

// watchAndReload reloads the catalog after artifact changes settle and
// announces swapped catalogs and failed reloads on broker (when non-nil). A
// failed reload keeps the previous catalog.
func watchAndReload(ctx context.Context, cfg *Config, svc *catalogservice.Service, broker *sse.Broker, logger *slog.Logger) {
	err := loader.Watch(ctx, cfg.Data.Dir, cfg.Data.WatchDebounce, logger, func() {
		changed, err := svc.Reload(ctx)
		if err != nil {
			logger.Error("reload failed, keeping previous catalog", slog.String("error", err.Error()))
			if broker != nil {
				var kept string
				if cur := svc.Current(); cur != nil {
					kept = cur.Fingerprint()
				}
				broker.PublishReloadFailed(err, kept)
			}
			return
		}
		if changed && broker != nil {
			broker.PublishReload(svc.Current().Stats())
		}
	})
	if err != nil {
		logger.Error("watcher failed", slog.String("error", err.Error()))
	}
}

func readyHandler(svc *catalogservice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !svc.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
