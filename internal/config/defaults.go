package config

import "github.com/hyperjump/pagestash/internal/models"

// Default values applied by ApplyDefaults.
const (
	DefaultOllamaURL            = "http://localhost:11434"
	DefaultChromaURL            = "http://localhost:8000"
	DefaultModel                = "nomic-embed-text"
	DefaultCollection           = "webpages"
	DefaultCacheSize            = 256
	DefaultDistanceFloor        = 1.0
	DefaultResultsPerCollection = 5
	DefaultTopK                 = 10
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = ".pagestash/pagestash.db"
	}
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = DefaultOllamaURL
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = DefaultModel
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = 120
	}
	if cfg.Ollama.BatchDelayMs == 0 {
		cfg.Ollama.BatchDelayMs = 100
	}
	if cfg.Chroma.URL == "" {
		cfg.Chroma.URL = DefaultChromaURL
	}
	if cfg.Chroma.Collection == "" {
		cfg.Chroma.Collection = DefaultCollection
	}
	if len(cfg.Chroma.Servers) == 0 {
		cfg.Chroma.Servers = []models.Server{{URL: cfg.Chroma.URL, Name: "Local server"}}
	}
	if cfg.Chroma.TimeoutSecs == 0 {
		cfg.Chroma.TimeoutSecs = 30
	}
	if cfg.Capture.SettleMs == 0 {
		cfg.Capture.SettleMs = 100
	}
	if cfg.Search.ResultsPerCollection == 0 {
		cfg.Search.ResultsPerCollection = DefaultResultsPerCollection
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = DefaultTopK
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 200
	}
	if cfg.Housekeeping.RetentionDays == 0 {
		cfg.Housekeeping.RetentionDays = 30
	}
	if cfg.Housekeeping.IntervalHours == 0 {
		cfg.Housekeeping.IntervalHours = 24
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".html", ".htm"}
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = 500
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
