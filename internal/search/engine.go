// Package search runs one query embedding against several collections and
// ranks the combined hits.
package search

import (
	"context"
	"time"

	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/registry"
	"github.com/hyperjump/pagestash/internal/vectorstore"
	"go.uber.org/zap"
)

// Stores hands out the vector-store client for a server URL.
type Stores interface {
	Store(serverURL string) *vectorstore.Client
}

// Request is a search plus the embedding settings to use for the query text.
type Request struct {
	models.SearchRequest
	OllamaURL string
	Model     models.ModelChoice
}

// NewRequest returns a search for query against target.
func NewRequest(query string, target registry.Target) *Request {
	return &Request{
		SearchRequest: models.SearchRequest{
			Query:       query,
			ServerURL:   target.ServerURL,
			Collections: target.Collections,
		},
		OllamaURL: target.OllamaURL,
		Model:     target.Model,
	}
}

// Engine runs multi-collection search.
type Engine struct {
	stores   Stores
	embedder embedding.Embedder
	config   *config.SearchConfig
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Per-collection failures are logged at Warn.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(stores Stores, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		stores:   stores,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search embeds the query once and queries each collection in turn. A
// collection whose query fails is logged, listed in Failed and contributes
// no hits; it never fails the search.
func (e *Engine) Search(ctx context.Context, req *Request) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(&req.SearchRequest); err != nil {
		return nil, err
	}

	queryEmbedding, err := e.embedder.Embed(ctx, req.OllamaURL, req.Query, req.Model.Name())
	if err != nil {
		return nil, err
	}

	nResults := e.config.ResultsPerCollection
	if nResults <= 0 {
		nResults = vectorstore.DefaultNResults
	}
	store := e.stores.Store(req.ServerURL)
	response := &models.SearchResponse{
		Query:    req.Query,
		Searched: make([]string, 0, len(req.Collections)),
	}

	var hits []*models.SearchHit
	for _, name := range req.Collections {
		result, err := store.QueryDocuments(ctx, name, vectorstore.Query{
			Embeddings: [][]float32{queryEmbedding},
			NResults:   nResults,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("collection search failed", zap.String("collection", name), zap.Error(err))
			response.Failed = append(response.Failed, name)
			continue
		}
		found := Flatten(name, result)
		e.logger.Debug("collection searched", zap.String("collection", name), zap.Int("hits", len(found)))
		hits = append(hits, found...)
		response.Searched = append(response.Searched, name)
	}

	response.TotalHits = len(hits)
	response.Results = Rank(hits, e.config.Floor(), e.topK())
	response.QueryTime = time.Since(startTime).Milliseconds()
	return response, nil
}

func (e *Engine) topK() int {
	if e.config.TopK > 0 {
		return e.config.TopK
	}
	return config.DefaultTopK
}
