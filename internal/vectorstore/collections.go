package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

// collectionDescription is the metadata attached to collections created here.
const collectionDescription = "Webpage content collection"

type collectionJSON struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type createCollectionRequest struct {
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// GetCollections lists every collection on the server.
func (c *Client) GetCollections(ctx context.Context) ([]models.Collection, error) {
	var list []collectionJSON
	if err := c.do(ctx, "list collections", http.MethodGet, CollectionsPath, nil, &list); err != nil {
		return nil, err
	}
	out := make([]models.Collection, 0, len(list))
	for _, col := range list {
		out = append(out, models.Collection{Name: col.Name, ID: col.ID, Metadata: col.Metadata})
	}
	return out, nil
}

// GetCollectionID resolves name to its store id without creating anything.
// A cache hit makes no request; a miss lists all collections and scans for
// name. Unknown names yield models.ErrCollectionNotFound.
func (c *Client) GetCollectionID(ctx context.Context, name string) (string, error) {
	if err := requireName(name); err != nil {
		return "", err
	}
	if id, ok := c.cached(name); ok {
		return id, nil
	}
	list, err := c.GetCollections(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve collection %q: %w", name, err)
	}
	for _, col := range list {
		if col.Name == name {
			c.remember(name, col.ID)
			return col.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrCollectionNotFound, name)
}

// ResolveOrCreateCollectionID resolves name, creating the collection when it
// does not exist. A create rejected because the collection already exists is
// resolved once more instead of failing.
func (c *Client) ResolveOrCreateCollectionID(ctx context.Context, name string) (string, error) {
	id, err := c.GetCollectionID(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, models.ErrCollectionNotFound) {
		return "", err
	}

	created, err := c.createCollection(ctx, name)
	if err == nil {
		c.remember(name, created.ID)
		c.logger.Info("created collection", zap.String("name", name), zap.String("id", created.ID))
		return created.ID, nil
	}
	if !isConflict(err) {
		return "", err
	}

	c.logger.Debug("collection appeared concurrently, resolving again", zap.String("name", name))
	id, rerr := c.GetCollectionID(ctx, name)
	if rerr != nil {
		return "", fmt.Errorf("%w: %q: %v", models.ErrCollectionConflict, name, rerr)
	}
	return id, nil
}

// CreateCollection ensures a collection called name exists and returns it.
func (c *Client) CreateCollection(ctx context.Context, name string) (models.Collection, error) {
	id, err := c.ResolveOrCreateCollectionID(ctx, name)
	if err != nil {
		return models.Collection{}, fmt.Errorf("create collection %q: %w", name, err)
	}
	return models.Collection{Name: name, ID: id}, nil
}

func (c *Client) createCollection(ctx context.Context, name string) (collectionJSON, error) {
	req := createCollectionRequest{
		Name:     name,
		Metadata: map[string]interface{}{"description": collectionDescription},
	}
	var created collectionJSON
	err := c.do(ctx, "create collection", http.MethodPost, CollectionsPath, req, &created)
	return created, err
}

func isConflict(err error) bool {
	var te *models.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == http.StatusConflict || strings.Contains(te.Body, "already exists")
}

// DeleteCollection deletes the collection called name. The store addresses
// collections by name on this route, so no id lookup is needed. The cached
// id for name is dropped whether or not the request succeeds.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if err := requireName(name); err != nil {
		return err
	}
	defer c.forget(name)
	path := CollectionsPath + "/" + url.PathEscape(name)
	if err := c.do(ctx, "delete collection", http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	c.logger.Info("deleted collection", zap.String("name", name))
	return nil
}
