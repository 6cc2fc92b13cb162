package registry

import (
	"strings"

	"github.com/hyperjump/pagestash/internal/models"
)

// Target is where a capture or search runs and which model embeds it.
type Target struct {
	ServerURL   string
	Collections []string
	OllamaURL   string
	Model       models.ModelChoice
}

// Target resolves explicit choices against the stored settings. An empty
// serverURL means the settings' server; no collections means the selection
// of kind.
func (r *Registry) Target(settings models.Settings, kind models.SelectionKind, serverURL string, collections []string) Target {
	if strings.TrimSpace(serverURL) == "" {
		serverURL = settings.ChromaURL
	}
	if len(collections) == 0 {
		collections = r.Selection(kind)
	}
	return Target{
		ServerURL:   serverURL,
		Collections: collections,
		OllamaURL:   settings.OllamaURL,
		Model:       settings.Model(),
	}
}
