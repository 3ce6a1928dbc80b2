// carnivalsync ingests masters carnival events from the external
// registration site into the local directory and notifies subscribers.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/mastersrl/carnivalsync/ingest"
	"github.com/mastersrl/carnivalsync/notify"
	"github.com/mastersrl/carnivalsync/store"
)

var version = "dev" // set at build time via -ldflags

func main() {
	// Local .env is optional; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := ingest.LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("configuration", "error", err)
		os.Exit(1)
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.ApplySchema(db); err != nil {
		logger.Error("apply schema", "error", err)
		os.Exit(1)
	}
	st := store.New(db)

	senders := []notify.Sender{&notify.LogSender{Logger: logger}}
	if cfg.NotifyWebhookURL != "" {
		senders = append(senders, &notify.WebhookSender{
			URL:    cfg.NotifyWebhookURL,
			Secret: cfg.NotifyWebhookSecret,
		})
	}
	dispatcher := notify.NewDispatcher(st, logger, senders...)

	var fetcher ingest.Fetcher
	if !cfg.Mock() && cfg.EnableScraping && cfg.SourceURL != "" {
		fetcher, err = ingest.NewScraperFetcher(cfg, logger)
		if err != nil {
			logger.Error("scraper", "error", err)
			os.Exit(1)
		}
	}

	svc := ingest.NewService(cfg, st, dispatcher, fetcher, logger)

	if cfg.SyncEnabled {
		if err := svc.StartScheduler(ctx); err != nil {
			logger.Error("scheduler", "error", err)
			os.Exit(1)
		}
		defer svc.StopScheduler()
	} else {
		logger.Info("sync disabled, scheduler not started")
	}

	if cfg.MCPStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "carnivalsync",
			Version: version,
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("mcp stdio", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	svc.RegisterHTTP(r)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("carnivalsync started",
			"version", version,
			"addr", cfg.HTTPAddr,
			"environment", cfg.Environment,
			"mock", cfg.Mock())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
}
