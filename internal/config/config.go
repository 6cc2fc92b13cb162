// Package config provides configuration loading and structs for pagestash.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/pagestash/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool               `yaml:"debug"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Ollama       OllamaConfig       `yaml:"ollama"`
	Chroma       ChromaConfig       `yaml:"chroma"`
	Capture      CaptureConfig      `yaml:"capture"`
	Search       SearchConfig       `yaml:"search"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Watch        WatchConfig        `yaml:"watch"`
}

// ServerConfig holds local HTTP API settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the local database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// OllamaConfig holds embedding service settings. URL, Model and CustomModel
// only seed the settings on first run.
type OllamaConfig struct {
	URL          string `yaml:"url"`
	Model        string `yaml:"model"`
	CustomModel  string `yaml:"custom_model"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	BatchDelayMs int    `yaml:"batch_delay_ms"`
	CacheSize    *int   `yaml:"cache_size"`
}

// Timeout returns the per-request embedding timeout.
func (o *OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// BatchDelay returns the pause between batch embedding calls.
func (o *OllamaConfig) BatchDelay() time.Duration {
	return time.Duration(o.BatchDelayMs) * time.Millisecond
}

// CacheSizeOrDefault returns the query embedding cache capacity; 0 disables the cache.
func (o *OllamaConfig) CacheSizeOrDefault() int {
	if o.CacheSize != nil {
		return *o.CacheSize
	}
	return DefaultCacheSize
}

// ChromaConfig holds vector store settings. Servers seeds the server list on first run.
type ChromaConfig struct {
	URL         string          `yaml:"url"`
	Collection  string          `yaml:"collection"`
	Servers     []models.Server `yaml:"servers"`
	TimeoutSecs int             `yaml:"timeout_secs"`
}

// Timeout returns the per-request vector store timeout.
func (c *ChromaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CaptureConfig holds capture settings.
type CaptureConfig struct {
	MainContentOnly bool `yaml:"main_content_only"`
	SettleMs        int  `yaml:"settle_ms"`
}

// SettleDelay returns the pause after activating a content source.
func (c *CaptureConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// SearchConfig holds search and ranking settings.
type SearchConfig struct {
	ResultsPerCollection int      `yaml:"results_per_collection"`
	TopK                 int      `yaml:"top_k"`
	DistanceFloor        *float64 `yaml:"distance_floor"`
	SnippetLength        int      `yaml:"snippet_length"`
}

// Floor returns the minimum divisor used when turning distances into
// similarity percentages; defaults to 1 when unset.
func (s *SearchConfig) Floor() float64 {
	if s.DistanceFloor != nil {
		return *s.DistanceFloor
	}
	return DefaultDistanceFloor
}

// HousekeepingConfig holds captured-page retention settings.
type HousekeepingConfig struct {
	RetentionDays int `yaml:"retention_days"`
	IntervalHours int `yaml:"interval_hours"`
}

// Retention returns how long captured-page records are kept.
func (h *HousekeepingConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// Interval returns how often the janitor runs.
func (h *HousekeepingConfig) Interval() time.Duration {
	return time.Duration(h.IntervalHours) * time.Hour
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories     []string `yaml:"directories"`
	Extensions      []string `yaml:"extensions"`
	Recursive       *bool    `yaml:"recursive"`
	DebounceMs      int      `yaml:"debounce_ms"`
	CaptureExisting bool     `yaml:"capture_existing"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Debounce returns the quiet period before a changed file is captured.
func (w *WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// Settings returns the first-run settings seeded from the config.
func (c *Config) Settings() models.Settings {
	return models.Settings{
		OllamaURL:      c.Ollama.URL,
		ChromaURL:      c.Chroma.URL,
		EmbeddingModel: c.Ollama.Model,
		CustomModel:    c.Ollama.CustomModel,
		CollectionName: c.Chroma.Collection,
	}
}

// Default returns a config with environment overrides and every default
// applied, for running without a file.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, ".")
	return &cfg
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
