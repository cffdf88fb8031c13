package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/studyloop/studyloop/internal/ai"
	"github.com/studyloop/studyloop/internal/extract"
	"github.com/studyloop/studyloop/internal/generate"
	"github.com/studyloop/studyloop/internal/platform/cache"
	"github.com/studyloop/studyloop/internal/platform/config"
	"github.com/studyloop/studyloop/internal/platform/database"
	"github.com/studyloop/studyloop/internal/session"
	"github.com/studyloop/studyloop/internal/store"
	"github.com/studyloop/studyloop/internal/trivia"
	"github.com/studyloop/studyloop/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	kv, events, cleanup, err := buildBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up storage", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	router := buildRouter(cfg)

	var genOpts []generate.Option
	if cfg.Generation.CallTimeout > 0 {
		genOpts = append(genOpts, generate.WithCallTimeout(cfg.Generation.CallTimeout))
	}
	orchestrator := generate.New(router, genOpts...)

	hub := web.NewHub()
	manager := session.NewManager(session.ManagerConfig{
		Store:        store.New(kv),
		Extractor:    extract.NewHTTPExtractor(cfg.Extractor.URL),
		Orchestrator: orchestrator,
		Events:       events,
		Notify:       hub.Publish,
		MinTextChars: cfg.Extractor.MinTextChars,
	})

	catalog, err := trivia.NewCatalog(cfg.Trivia.CatalogPath)
	if err != nil {
		slog.Error("failed to load trivia catalog", "error", err)
		os.Exit(1)
	}
	game := trivia.NewGame(router, catalog, store.New(kv))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.NewServer(manager, game, hub).NewMux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // generation calls can run long
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// buildBackend creates the key-value store and event logger for the
// configured driver, plus a cleanup function for its connections.
func buildBackend(ctx context.Context, cfg *config.Config) (store.KV, session.EventLogger, func(), error) {
	nop := func() {}

	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryKV(), session.NopEventLogger{}, nop, nil

	case "file":
		kv, err := store.NewFileKV(cfg.Store.Dir)
		if err != nil {
			return nil, nil, nop, err
		}
		return kv, session.NopEventLogger{}, nop, nil

	case "redis":
		client, err := cache.Open(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, nil, nop, err
		}
		return store.NewRedisKV(client), session.NopEventLogger{}, func() { client.Close() }, nil

	case "postgres":
		pool, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, nop, err
		}
		kv, err := store.NewPostgresKV(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nop, err
		}
		events, err := session.NewPostgresEventLogger(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nop, err
		}
		return kv, events, pool.Close, nil

	default:
		return nil, nil, nop, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildRouter registers the configured AI providers in fallback order.
func buildRouter(cfg *config.Config) *ai.Router {
	router := ai.NewRouter(ai.NewUsageTracker(cfg.Generation.TokenBudget))

	if cfg.AI.Google.APIKey != "" {
		var opts []ai.GoogleOption
		if cfg.AI.Google.Model != "" {
			opts = append(opts, ai.WithGoogleModel(cfg.AI.Google.Model))
		}
		router.Register("google", ai.NewGoogleProvider(cfg.AI.Google.APIKey, opts...))
	}
	if cfg.AI.OpenAI.APIKey != "" {
		var opts []ai.OpenAIOption
		if cfg.AI.OpenAI.Model != "" {
			opts = append(opts, ai.WithModel(cfg.AI.OpenAI.Model))
		}
		router.Register("openai", ai.NewOpenAIProvider(cfg.AI.OpenAI.APIKey, opts...))
	}

	return router
}
