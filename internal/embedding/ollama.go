package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single request to the embedding server.
	DefaultTimeout = 120 * time.Second
	// DefaultBatchDelay is the pause between consecutive requests in EmbedBatch.
	DefaultBatchDelay = 100 * time.Millisecond

	maxErrorBody = 4096
)

// OllamaClient talks to the Ollama HTTP API. The server URL is passed per call
// so one client can follow settings changes.
type OllamaClient struct {
	httpClient *http.Client
	logger     *zap.Logger
	batchDelay time.Duration
}

var _ Embedder = (*OllamaClient)(nil)

// OllamaOption configures an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OllamaOption {
	return func(c *OllamaClient) { c.logger = logger }
}

// WithBatchDelay sets the pause between requests in EmbedBatch.
func WithBatchDelay(d time.Duration) OllamaOption {
	return func(c *OllamaClient) { c.batchDelay = d }
}

// NewOllamaClient returns a client with a 120s timeout and a 100ms batch delay.
func NewOllamaClient(opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
		batchDelay: DefaultBatchDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding of text. Each name from ModelVariants(model) is
// tried in turn against POST {serverURL}/api/embeddings and the first variant
// answering with a vector wins. When all fail the result is an
// *models.EmbeddingExhaustedError classified by the last failure's status.
func (c *OllamaClient) Embed(ctx context.Context, serverURL, text, model string) ([]float32, error) {
	if strings.TrimSpace(serverURL) == "" {
		return nil, fmt.Errorf("%w: embedding server url is empty", models.ErrInvalidInput)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text to embed is empty", models.ErrInvalidInput)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: embedding model is empty", models.ErrInvalidInput)
	}

	base := withTrailingSlash(serverURL)
	endpoint := base + "api/embeddings"
	variants := ModelVariants(model)

	var (
		last       error
		lastStatus int
	)
	for i, variant := range variants {
		vec, err := c.embedOnce(ctx, endpoint, variant, text)
		if err == nil {
			c.logger.Debug("embedding generated",
				zap.String("model", variant),
				zap.Int("attempt", i+1),
				zap.Int("dimensions", len(vec)),
				zap.Int("chars", len(text)))
			return vec, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Debug("embedding variant failed", zap.String("model", variant), zap.Error(err))
		last = err
		lastStatus = 0
		var te *models.TransportError
		if errors.As(err, &te) {
			lastStatus = te.StatusCode
		}
	}

	return nil, &models.EmbeddingExhaustedError{
		Model:      model,
		Tried:      variants,
		Endpoint:   base,
		StatusCode: lastStatus,
		Last:       last,
	}
}

func (c *OllamaClient) embedOnce(ctx context.Context, endpoint, model, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: "embed", URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("embed", endpoint, resp)
	}

	var result embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, errors.New("embed response has no embedding vector")
	}
	return result.Embedding, nil
}

// EmbedBatch embeds texts one at a time, pausing between requests, and stops
// at the first failure.
func (c *OllamaClient) EmbedBatch(ctx context.Context, serverURL string, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts to embed", models.ErrInvalidInput)
	}
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, serverURL, text, model)
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out = append(out, vec)
		if i < len(texts)-1 && c.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.batchDelay):
			}
		}
	}
	return out, nil
}

func statusError(op, url string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &models.TransportError{Op: op, URL: url, StatusCode: resp.StatusCode, Body: string(b)}
}

func withTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
