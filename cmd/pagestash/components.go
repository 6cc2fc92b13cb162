package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/housekeeping"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/registry"
	"github.com/hyperjump/pagestash/internal/search"
	"github.com/hyperjump/pagestash/internal/server"
	"github.com/hyperjump/pagestash/internal/storage"
	"github.com/hyperjump/pagestash/internal/vectorstore"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Ollama   *embedding.OllamaClient
	Embedder embedding.Embedder // search embedder, cached when enabled
	Registry *registry.Registry
	Capture  *capture.Service
	Search   *search.Engine
	Janitor  *housekeeping.Janitor
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	reg, err := registry.New(ctx, store,
		registry.WithLogger(logger),
		registry.WithDefaultServers(cfg.Chroma.Servers),
		registry.WithClientOptions(vectorstore.WithTimeout(cfg.Chroma.Timeout())))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	ollama := embedding.NewOllamaClient(
		embedding.WithTimeout(cfg.Ollama.Timeout()),
		embedding.WithBatchDelay(cfg.Ollama.BatchDelay()),
		embedding.WithLogger(logger))
	// Captures embed through the bare client; only search queries are cached.
	queries := embedding.NewCachingEmbedder(ollama, cfg.Ollama.CacheSizeOrDefault())

	captureSvc := capture.NewService(reg, ollama, store,
		capture.WithLogger(logger),
		capture.WithSettleDelay(cfg.Capture.SettleDelay()),
		capture.WithMainContentOnly(cfg.Capture.MainContentOnly))
	engine := search.NewEngine(reg, queries, &cfg.Search, search.WithLogger(logger))
	janitor := housekeeping.NewJanitor(store, cfg.Housekeeping.Retention(), cfg.Housekeeping.Interval(),
		housekeeping.WithLogger(logger))

	logger.Debug("components initialized",
		zap.String("database", cfg.Storage.DatabasePath),
		zap.Int("embedding_cache", cfg.Ollama.CacheSizeOrDefault()),
		zap.Int("servers", len(reg.Servers())))

	return &Components{
		Config:   cfg,
		Storage:  store,
		Ollama:   ollama,
		Embedder: queries,
		Registry: reg,
		Capture:  captureSvc,
		Search:   engine,
		Janitor:  janitor,
	}, nil
}

// Services returns the components the HTTP API needs. watch may be nil.
func (c *Components) Services(watch server.WatchService) server.Services {
	return server.Services{
		Registry: c.Registry,
		Capture:  c.Capture,
		Search:   c.Search,
		Storage:  c.Storage,
		Ollama:   c.Ollama,
		Embedder: c.Embedder,
		Janitor:  c.Janitor,
		Watch:    watch,
	}
}

// Settings returns the stored settings over the config defaults.
func (c *Components) Settings(ctx context.Context) (models.Settings, error) {
	return storage.LoadSettings(ctx, c.Storage, c.Config.Settings())
}

// Target resolves explicit choices against the stored settings and the
// selection of kind.
func (c *Components) Target(ctx context.Context, kind models.SelectionKind, serverURL string, collections []string) (registry.Target, error) {
	settings, err := c.Settings(ctx)
	if err != nil {
		return registry.Target{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return c.Registry.Target(settings, kind, serverURL, collections), nil
}

// CaptureTarget builds a capture request over the capture selection.
func (c *Components) CaptureTarget(ctx context.Context, serverURL string, collections []string) (*capture.Request, error) {
	target, err := c.Target(ctx, models.SelectionCapture, serverURL, collections)
	if err != nil {
		return nil, err
	}
	return capture.NewRequest(target), nil
}

// SearchRequest builds a search over the search selection.
func (c *Components) SearchRequest(ctx context.Context, query, serverURL string, collections []string) (*search.Request, error) {
	target, err := c.Target(ctx, models.SelectionSearch, serverURL, collections)
	if err != nil {
		return nil, err
	}
	return search.NewRequest(query, target), nil
}

// ServerURL returns serverURL, or the settings' server when it is empty.
func (c *Components) ServerURL(ctx context.Context, serverURL string) (string, error) {
	if serverURL != "" {
		return serverURL, nil
	}
	settings, err := c.Settings(ctx)
	if err != nil {
		return "", err
	}
	return settings.ChromaURL, nil
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
