// Package models defines core data structures for captured pages, collections, and search results.
package models

import "time"

// Server is a vector-store endpoint known to the user. Identity is URL.
type Server struct {
	URL  string `json:"url" yaml:"url"`
	Name string `json:"name" yaml:"name"`
}

// Collection is a named partition of documents in the vector store.
// ID is assigned by the store and is opaque to this client.
type Collection struct {
	Name     string                 `json:"name"`
	ID       string                 `json:"id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Capture types recorded in document metadata.
const (
	CaptureTypePage      = ""
	CaptureTypeSelection = "selection"
)

// DocumentMetadata is stored alongside every captured document.
type DocumentMetadata struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type,omitempty"`
}

// AsMap returns the metadata in the flat form the vector store accepts.
func (m DocumentMetadata) AsMap() map[string]interface{} {
	out := map[string]interface{}{
		"url":       m.URL,
		"title":     m.Title,
		"timestamp": m.Timestamp,
	}
	if m.Type != "" {
		out["type"] = m.Type
	}
	return out
}

// MetadataFromMap reads the known fields back out of a store metadata map.
// Unknown keys and non-string values are ignored.
func MetadataFromMap(m map[string]interface{}) DocumentMetadata {
	get := func(k string) string {
		if v, ok := m[k].(string); ok {
			return v
		}
		return ""
	}
	return DocumentMetadata{
		URL:       get("url"),
		Title:     get("title"),
		Timestamp: get("timestamp"),
		Type:      get("type"),
	}
}

// Document is one captured artifact as written to a collection.
type Document struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Metadata  DocumentMetadata `json:"metadata"`
	Embedding []float32        `json:"embedding,omitempty"`
}

// CapturedPageRecord is local-only bookkeeping for a capture, used for housekeeping.
type CapturedPageRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
