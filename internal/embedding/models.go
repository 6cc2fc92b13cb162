package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/pagestash/internal/models"
)

// Model is one entry of the server's installed model list.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// ListModels returns the models installed on the server (GET /api/tags).
func (c *OllamaClient) ListModels(ctx context.Context, serverURL string) ([]Model, error) {
	if strings.TrimSpace(serverURL) == "" {
		return nil, fmt.Errorf("%w: embedding server url is empty", models.ErrInvalidInput)
	}
	endpoint := withTrailingSlash(serverURL) + "api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: "list models", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("list models", endpoint, resp)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	if tags.Models == nil {
		tags.Models = []Model{}
	}
	return tags.Models, nil
}

// TestConnection checks that the server answers and returns its model list.
func (c *OllamaClient) TestConnection(ctx context.Context, serverURL string) ([]Model, error) {
	list, err := c.ListModels(ctx, serverURL)
	if err != nil {
		return nil, fmt.Errorf("connect to embedding server: %w", err)
	}
	return list, nil
}

// ModelExists reports whether model is installed, matching either the exact
// name or any tag of it ("m" matches "m:latest").
func (c *OllamaClient) ModelExists(ctx context.Context, serverURL, model string) (bool, error) {
	list, err := c.ListModels(ctx, serverURL)
	if err != nil {
		return false, err
	}
	for _, m := range list {
		if m.Name == model || strings.HasPrefix(m.Name, model+":") {
			return true, nil
		}
	}
	return false, nil
}

// EmbeddingModels keeps the models whose name mentions "embed". When none do,
// the full list is returned so the caller still has something to offer.
func EmbeddingModels(list []Model) []Model {
	var out []Model
	for _, m := range list {
		if strings.Contains(strings.ToLower(m.Name), "embed") {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return list
	}
	return out
}
