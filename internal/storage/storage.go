// Package storage persists local state: settings, the server list, the two
// collection selections and the captured-page records used for housekeeping.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/pagestash/internal/models"
)

// ErrNotFound is returned when a key or record has never been written.
var ErrNotFound = errors.New("not found")

// Storage defines local persistence operations.
type Storage interface {
	// Settings and registry state
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
	GetServers(ctx context.Context) ([]models.Server, error)
	SaveServers(ctx context.Context, servers []models.Server) error
	GetSelection(ctx context.Context, kind models.SelectionKind) ([]string, error)
	SaveSelection(ctx context.Context, kind models.SelectionKind, names []string) error

	// Captured pages
	SavePage(ctx context.Context, page *models.CapturedPageRecord) error
	ListPages(ctx context.Context, offset, limit int) ([]*models.CapturedPageRecord, error)
	DeletePage(ctx context.Context, id string) error
	ClearPages(ctx context.Context) (int64, error)
	PrunePages(ctx context.Context, before time.Time) (int64, error)
	CountPages(ctx context.Context) (int64, error)

	// Whole-store operations
	Export(ctx context.Context) (*Snapshot, error)
	Import(ctx context.Context, snap *Snapshot) error
	Info(ctx context.Context) (*Info, error)

	Close() error
}

// Snapshot is everything in the store, as written by Export and read by Import.
type Snapshot struct {
	Settings   *models.Settings                  `json:"settings,omitempty"`
	Servers    []models.Server                   `json:"chromaServers,omitempty"`
	Selections map[models.SelectionKind][]string `json:"selections,omitempty"`
	Pages      []*models.CapturedPageRecord      `json:"capturedPages"`
	ExportedAt time.Time                         `json:"exportedAt"`
}

// Info summarizes the store for status output.
type Info struct {
	Path      string   `json:"path"`
	Keys      []string `json:"keys"`
	Pages     int64    `json:"pages"`
	SizeBytes int64    `json:"size_bytes"`
	Size      string   `json:"size"`
}

// LoadSettings returns the stored settings with any empty field taken from
// defaults. When nothing is stored, defaults are returned as-is.
func LoadSettings(ctx context.Context, s Storage, defaults models.Settings) (models.Settings, error) {
	stored, err := s.GetSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return defaults, nil
	}
	if err != nil {
		return models.Settings{}, err
	}
	out := *stored
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&out.OllamaURL, defaults.OllamaURL)
	fill(&out.ChromaURL, defaults.ChromaURL)
	fill(&out.EmbeddingModel, defaults.EmbeddingModel)
	fill(&out.CollectionName, defaults.CollectionName)
	return out, nil
}

// LoadServers returns the stored server list, or defaults when none is stored.
func LoadServers(ctx context.Context, s Storage, defaults []models.Server) ([]models.Server, error) {
	servers, err := s.GetServers(ctx)
	if errors.Is(err, ErrNotFound) {
		return append([]models.Server(nil), defaults...), nil
	}
	return servers, err
}
