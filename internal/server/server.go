// Package server provides the local HTTP API that a presentation layer
// (browser extension, popup, scripts) uses to drive pagestash.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/housekeeping"
	"github.com/hyperjump/pagestash/internal/registry"
	"github.com/hyperjump/pagestash/internal/search"
	"github.com/hyperjump/pagestash/internal/storage"
	"go.uber.org/zap"
)

// WatchService is the part of the inbox watcher the API reports on.
type WatchService interface {
	Directories() []string
}

// Services are the components behind the API. Watch may be nil.
type Services struct {
	Registry *registry.Registry
	Capture  *capture.Service
	Search   *search.Engine
	Storage  storage.Storage
	Ollama   *embedding.OllamaClient
	Embedder embedding.Embedder
	Janitor  *housekeeping.Janitor
	Watch    WatchService
}

// Server is the HTTP server for the pagestash API.
type Server struct {
	Services
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(svc Services, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Services: svc, config: cfg, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/capture/page", s.handleCapturePage)
		r.Post("/capture/selection", s.handleCaptureSelection)
		r.Post("/search", s.handleSearch)

		r.Get("/servers", s.handleServersList)
		r.Post("/servers", s.handleServersAdd)
		r.Delete("/servers", s.handleServersRemove)

		r.Get("/collections", s.handleCollectionsList)
		r.Post("/collections", s.handleCollectionsCreate)
		r.Post("/collections/refresh", s.handleCollectionsRefresh)
		r.Delete("/collections/{name}", s.handleCollectionsDelete)
		r.Get("/collections/{name}/documents", s.handleDocumentsList)
		r.Delete("/collections/{name}/documents/{id}", s.handleDocumentsDelete)
		r.Post("/collections/{name}/clear", s.handleCollectionsClear)

		r.Get("/selections", s.handleSelectionsGet)
		r.Put("/selections/{kind}", s.handleSelectionsPut)

		r.Get("/settings", s.handleSettingsGet)
		r.Put("/settings", s.handleSettingsPut)
		r.Get("/models", s.handleModels)

		r.Get("/pages", s.handlePagesList)
		r.Delete("/pages/{id}", s.handlePagesDelete)
		r.Post("/pages/prune", s.handlePagesPrune)

		r.Get("/status", s.handleStatus)
		r.Get("/watch", s.handleWatch)
		r.Post("/test/ollama", s.handleTestOllama)
		r.Post("/test/chroma", s.handleTestChroma)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
