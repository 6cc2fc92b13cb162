package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultNResults is the per-query result count when Query.NResults is unset.
	DefaultNResults = 5
	// DefaultGetLimit is the page size used by GetDocuments when no option is set.
	DefaultGetLimit = 1000
)

type addRequest struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings"`
}

// Query is a nearest-neighbour request. Where is an optional metadata filter
// passed through to the store unchanged.
type Query struct {
	Embeddings [][]float32
	NResults   int
	Where      map[string]interface{}
}

type queryRequest struct {
	QueryEmbeddings [][]float32            `json:"query_embeddings"`
	NResults        int                    `json:"n_results"`
	Where           map[string]interface{} `json:"where,omitempty"`
}

// QueryResult holds one row per query embedding; within a row the slices are
// index-aligned and ordered by ascending distance.
type QueryResult struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float64                `json:"distances"`
}

// GetOptions pages through a collection. Zero values are omitted from the request.
type GetOptions struct {
	Limit  int
	Offset int
	Where  map[string]interface{}
}

type getRequest struct {
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
	Where  map[string]interface{} `json:"where,omitempty"`
}

// GetResult is a page of stored documents with index-aligned slices.
type GetResult struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func collectionPath(id, action string) string {
	return CollectionsPath + "/" + url.PathEscape(id) + "/" + action
}

func validateDocument(doc models.Document) error {
	switch {
	case doc.ID == "":
		return fmt.Errorf("%w: document id is empty", models.ErrInvalidInput)
	case doc.Content == "":
		return fmt.Errorf("%w: document content is empty", models.ErrInvalidInput)
	case len(doc.Embedding) == 0:
		return fmt.Errorf("%w: document embedding is empty", models.ErrInvalidInput)
	}
	return nil
}

// AddDocument writes doc to an existing collection. It never creates the
// collection: an unknown name fails with models.ErrCollectionNotFound.
func (c *Client) AddDocument(ctx context.Context, name string, doc models.Document) error {
	if err := requireName(name); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}
	if _, err := c.AddDocuments(ctx, name, []models.Document{doc}); err != nil {
		return err
	}
	return nil
}

// AddDocuments writes docs to an existing collection in one request and
// returns their ids.
func (c *Client) AddDocuments(ctx context.Context, name string, docs []models.Document) ([]string, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents to add", models.ErrInvalidInput)
	}
	req := addRequest{
		IDs:        make([]string, len(docs)),
		Documents:  make([]string, len(docs)),
		Metadatas:  make([]map[string]interface{}, len(docs)),
		Embeddings: make([][]float32, len(docs)),
	}
	for i, doc := range docs {
		if err := validateDocument(doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		req.IDs[i] = doc.ID
		req.Documents[i] = doc.Content
		req.Metadatas[i] = doc.Metadata.AsMap()
		req.Embeddings[i] = doc.Embedding
	}

	id, err := c.GetCollectionID(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("add documents to %q: %w", name, err)
	}
	if err := c.do(ctx, "add documents", http.MethodPost, collectionPath(id, "add"), req, nil); err != nil {
		return nil, fmt.Errorf("add documents to %q: %w", name, err)
	}
	c.logger.Debug("added documents", zap.String("collection", name), zap.Int("count", len(docs)))
	return req.IDs, nil
}

// QueryDocuments runs a nearest-neighbour query against collection name.
func (c *Client) QueryDocuments(ctx context.Context, name string, q Query) (*QueryResult, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	if len(q.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: query needs at least one embedding", models.ErrInvalidInput)
	}
	n := q.NResults
	if n <= 0 {
		n = DefaultNResults
	}

	id, err := c.GetCollectionID(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}
	req := queryRequest{QueryEmbeddings: q.Embeddings, NResults: n, Where: q.Where}
	var res QueryResult
	if err := c.do(ctx, "query", http.MethodPost, collectionPath(id, "query"), req, &res); err != nil {
		return nil, fmt.Errorf("query %q: %w", name, err)
	}
	return &res, nil
}

// GetDocuments pages through collection name. With no options set the first
// DefaultGetLimit documents are returned.
func (c *Client) GetDocuments(ctx context.Context, name string, opts GetOptions) (*GetResult, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	id, err := c.GetCollectionID(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get documents from %q: %w", name, err)
	}
	req := getRequest{Limit: opts.Limit, Offset: opts.Offset, Where: opts.Where}
	if req.Limit <= 0 && req.Offset <= 0 && len(req.Where) == 0 {
		req.Limit = DefaultGetLimit
	}
	var res GetResult
	if err := c.do(ctx, "get documents", http.MethodPost, collectionPath(id, "get"), req, &res); err != nil {
		return nil, fmt.Errorf("get documents from %q: %w", name, err)
	}
	return &res, nil
}

// DeleteDocument removes one document from collection name.
func (c *Client) DeleteDocument(ctx context.Context, name, docID string) error {
	if err := requireName(name); err != nil {
		return err
	}
	if docID == "" {
		return fmt.Errorf("%w: document id is empty", models.ErrInvalidInput)
	}
	id, err := c.GetCollectionID(ctx, name)
	if err != nil {
		return fmt.Errorf("delete document from %q: %w", name, err)
	}
	req := deleteRequest{IDs: []string{docID}}
	if err := c.do(ctx, "delete document", http.MethodPost, collectionPath(id, "delete"), req, nil); err != nil {
		return fmt.Errorf("delete document from %q: %w", name, err)
	}
	return nil
}

// ClearResult counts the outcome of ClearCollection.
type ClearResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// ClearCollection deletes the first DefaultGetLimit documents of collection
// name one by one. Individual delete failures are logged and counted.
func (c *Client) ClearCollection(ctx context.Context, name string) (ClearResult, error) {
	var res ClearResult
	page, err := c.GetDocuments(ctx, name, GetOptions{})
	if err != nil {
		return res, err
	}
	for _, id := range page.IDs {
		if err := c.DeleteDocument(ctx, name, id); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			c.logger.Warn("clear collection: delete failed",
				zap.String("collection", name), zap.String("id", id), zap.Error(err))
			res.Failed++
			continue
		}
		res.Deleted++
	}
	return res, nil
}
