package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

// healthEndpoints are probed in order by TestConnection.
var healthEndpoints = []string{
	"api/v2/heartbeat",
	CollectionsPath,
	"api/v1/heartbeat",
	"version",
}

// ConnectionInfo describes the endpoint that answered TestConnection.
type ConnectionInfo struct {
	Endpoint string          `json:"endpoint"`
	Response json.RawMessage `json:"response"`
}

// TestConnection probes the health endpoints in order and returns the first
// one answering 2xx with a JSON body. It fails only when every probe fails.
func (c *Client) TestConnection(ctx context.Context) (*ConnectionInfo, error) {
	var last error
	for _, path := range healthEndpoints {
		endpoint := c.baseURL + path
		body, err := c.probe(ctx, endpoint)
		if err == nil {
			return &ConnectionInfo{Endpoint: endpoint, Response: body}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Debug("health probe failed", zap.String("endpoint", endpoint), zap.Error(err))
		last = err
	}
	return nil, &models.TransportError{
		Op:  "test connection",
		URL: c.baseURL,
		Err: fmt.Errorf("no health endpoint answered, check the server address and version: %w", last),
	}
}

func (c *Client) probe(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if !json.Valid(b) {
		return nil, errors.New("response is not JSON")
	}
	return json.RawMessage(b), nil
}
