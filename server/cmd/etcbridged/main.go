package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/etcbridge/etcbridge/pkg/engine"
	"github.com/etcbridge/etcbridge/server/internal/api"
	"github.com/etcbridge/etcbridge/server/internal/cache"
	"github.com/etcbridge/etcbridge/server/internal/config"
	"github.com/etcbridge/etcbridge/server/internal/history"
	"github.com/etcbridge/etcbridge/server/internal/jobs"
	"github.com/etcbridge/etcbridge/server/internal/limits"
	"github.com/etcbridge/etcbridge/server/internal/refdata"
	"github.com/etcbridge/etcbridge/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("etcbridged starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"engine", cfg.Server.Engine.Endpoint,
		"auth_mode", cfg.Server.Auth.Mode,
		"cache_ttl", cfg.Server.Cache.TTL,
		"history_backend", cfg.Server.History.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Reference tables, optionally hot-reloaded from a directory.
	refs, err := refdata.New(cfg.Server.Refdata.EffectiveDir())
	if err != nil {
		slog.Error("failed to load reference data", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := refs.Watch(ctx); err != nil {
			slog.Error("refdata watch stopped", "err", err)
		}
	}()

	// Engine client, wrapped in the result cache.
	client, err := engine.NewClient(cfg.Server.Engine)
	if err != nil {
		slog.Error("failed to build engine client", "err", err)
		os.Exit(1)
	}
	results := cache.New(cfg.Server.Cache.TTL)
	if cfg.Server.Cache.TTL > 0 {
		go results.Run(ctx)
	}
	eng := cache.Wrap(client, results)

	// Run history.
	var hist history.Store = history.Discard{}
	if cfg.Server.History.Backend == "sqlite" {
		sqlite, err := history.OpenSQLite(cfg.Server.History.Path, cfg.Server.History.Retention)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			os.Exit(1)
		}
		defer sqlite.Close()
		go sqlite.Run(ctx)
		hist = sqlite
	}

	// Guard rails.
	checker, err := limits.Compile(cfg.Server.Limits.Rules)
	if err != nil {
		slog.Error("failed to compile limit rules", "err", err)
		os.Exit(1)
	}

	// Sweep job manager with its worker loop.
	manager := jobs.NewManager(eng, cfg.Server.Sweeps)
	go manager.Run(ctx)

	// WebSocket hub broadcasting job progress.
	hub := ws.New(manager, cfg.Server.Stream.Interval)
	go hub.Run(ctx)

	handler := api.New(api.Deps{
		Engine:         eng,
		Refdata:        refs,
		Limits:         checker,
		History:        hist,
		Cache:          results,
		Jobs:           manager,
		EngineEndpoint: cfg.Server.Engine.Endpoint,
		HistoryBackend: historyBackend(cfg.Server.History.Backend),
	})

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", handler)
	httpMux.Handle("/metrics", handler)
	httpMux.Handle("/ws/jobs", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.WithAuth(httpMux, cfg.Server.Auth),
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("etcbridged shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

func historyBackend(b string) string {
	if b == "" {
		return "none"
	}
	return b
}
