// Package registry tracks known vector-store servers, the collections seen on
// each, and the capture and search collection selections.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/storage"
	"github.com/hyperjump/pagestash/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrUnknownServer is returned for operations naming a server that is not registered.
var ErrUnknownServer = errors.New("unknown server")

// DefaultServers is the server list used before any has been saved.
func DefaultServers() []models.Server {
	return []models.Server{{URL: "http://localhost:8000", Name: "Local server"}}
}

// Registry owns one vectorstore.Client per server URL, and with it that
// server's name to id cache. It is safe for concurrent use; network calls are
// made without holding the lock.
type Registry struct {
	store      storage.Storage
	logger     *zap.Logger
	clientOpts []vectorstore.Option
	defaults   []models.Server

	mu         sync.Mutex
	servers    []models.Server
	clients    map[string]*vectorstore.Client
	groups     map[string][]models.Collection
	selections map[models.SelectionKind][]string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithClientOptions sets the options used for every vector-store client.
func WithClientOptions(opts ...vectorstore.Option) Option {
	return func(r *Registry) { r.clientOpts = opts }
}

// WithDefaultServers replaces DefaultServers for a store with no saved list.
func WithDefaultServers(servers []models.Server) Option {
	return func(r *Registry) { r.defaults = servers }
}

// New loads the server list and both selections from store.
func New(ctx context.Context, store storage.Storage, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:      store,
		logger:     zap.NewNop(),
		defaults:   DefaultServers(),
		clients:    make(map[string]*vectorstore.Client),
		groups:     make(map[string][]models.Collection),
		selections: make(map[models.SelectionKind][]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	servers, err := storage.LoadServers(ctx, store, r.defaults)
	if err != nil {
		return nil, fmt.Errorf("load servers: %w", err)
	}
	r.servers = servers
	for _, kind := range []models.SelectionKind{models.SelectionCapture, models.SelectionSearch} {
		names, err := store.GetSelection(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s selection: %w", kind, err)
		}
		r.selections[kind] = names
	}
	return r, nil
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// Store returns the vector-store client for serverURL, creating it on first
// use. The server does not have to be registered.
func (r *Registry) Store(serverURL string) *vectorstore.Client {
	key := normalizeURL(serverURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c
	}
	opts := append([]vectorstore.Option{vectorstore.WithLogger(r.logger)}, r.clientOpts...)
	c := vectorstore.NewClient(key, opts...)
	r.clients[key] = c
	return c
}

// Servers returns the registered servers in insertion order.
func (r *Registry) Servers() []models.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Server(nil), r.servers...)
}

// AddServer registers a server. An empty name becomes "Server N".
func (r *Registry) AddServer(ctx context.Context, serverURL, name string) (models.Server, error) {
	key := normalizeURL(serverURL)
	if key == "" {
		return models.Server{}, fmt.Errorf("%w: server url is empty", models.ErrInvalidInput)
	}
	r.mu.Lock()
	for _, s := range r.servers {
		if normalizeURL(s.URL) == key {
			r.mu.Unlock()
			return models.Server{}, fmt.Errorf("%w: server %s is already registered", models.ErrInvalidInput, key)
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Server %d", len(r.servers)+1)
	}
	srv := models.Server{URL: key, Name: name}
	r.servers = append(r.servers, srv)
	servers := append([]models.Server(nil), r.servers...)
	r.mu.Unlock()

	if err := r.store.SaveServers(ctx, servers); err != nil {
		return models.Server{}, fmt.Errorf("save servers: %w", err)
	}
	r.logger.Info("server added", zap.String("url", key), zap.String("name", name))
	return srv, nil
}

// RemoveServer unregisters a server and forgets its collections.
func (r *Registry) RemoveServer(ctx context.Context, serverURL string) error {
	key := normalizeURL(serverURL)
	r.mu.Lock()
	idx := -1
	for i, s := range r.servers {
		if normalizeURL(s.URL) == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownServer, key)
	}
	r.servers = append(r.servers[:idx], r.servers[idx+1:]...)
	delete(r.groups, key)
	delete(r.clients, key)
	servers := append([]models.Server{}, r.servers...)
	r.mu.Unlock()

	if err := r.store.SaveServers(ctx, servers); err != nil {
		return fmt.Errorf("save servers: %w", err)
	}
	r.logger.Info("server removed", zap.String("url", key))
	return nil
}
