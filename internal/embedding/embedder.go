// Package embedding obtains text embeddings from an Ollama server.
package embedding

import (
	"context"
	"strings"
)

// Embedder produces a vector embedding of text using model on the embedding
// server at serverURL.
type Embedder interface {
	Embed(ctx context.Context, serverURL, text, model string) ([]float32, error)
}

// ModelVariants returns the names tried, in order, when embedding with model:
// the name as given, the name without its tag, and the name with ":latest".
// Duplicates are dropped, so "m" gives [m m:latest] and "m:v1" gives [m:v1 m].
func ModelVariants(model string) []string {
	candidates := []string{model, model, model}
	if i := strings.Index(model, ":"); i >= 0 {
		candidates[1] = model[:i]
	} else {
		candidates[2] = model + ":latest"
	}
	variants := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, v := range candidates {
		if seen[v] {
			continue
		}
		seen[v] = true
		variants = append(variants, v)
	}
	return variants
}
