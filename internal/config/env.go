package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvConfigPath = "PAGESTASH_CONFIG"
	EnvOllamaURL  = "PAGESTASH_OLLAMA_URL"
	EnvChromaURL  = "PAGESTASH_CHROMA_URL"
	EnvModel      = "PAGESTASH_EMBED_MODEL"
	EnvDBPath     = "PAGESTASH_DB_PATH"
)

// LoadEnvFiles loads KEY=value pairs from the given .env files into the
// process environment. Missing files are skipped and variables that are
// already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv copies the PAGESTASH_* overrides into cfg.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvOllamaURL); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv(EnvChromaURL); v != "" {
		cfg.Chroma.URL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.DatabasePath = v
	}
}
