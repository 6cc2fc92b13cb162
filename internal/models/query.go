package models

import "fmt"

// SearchRequest asks for a nearest-neighbour search over the selected collections.
type SearchRequest struct {
	Query       string   `json:"query"`
	ServerURL   string   `json:"server,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

// Validate checks the request fields that can be checked before any I/O.
// Order matches what the user sees first: query, collections, server.
func (r *SearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	if len(r.Collections) == 0 {
		return fmt.Errorf("%w: select at least one collection to search", ErrInvalidInput)
	}
	if r.ServerURL == "" {
		return fmt.Errorf("%w: no vector store server selected", ErrInvalidInput)
	}
	return nil
}

// CaptureMode distinguishes full-page captures from text-selection captures.
type CaptureMode string

const (
	CaptureModePage      CaptureMode = "page"
	CaptureModeSelection CaptureMode = "selection"
)
