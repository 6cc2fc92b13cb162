package models

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrInvalidInput marks a missing or malformed argument caught before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCollectionNotFound is returned when a collection name does not resolve to an id.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrCollectionConflict is returned by the store when a create races an existing collection.
	ErrCollectionConflict = errors.New("collection already exists")
	// ErrEmbeddingExhausted matches any *EmbeddingExhaustedError.
	ErrEmbeddingExhausted = errors.New("embedding failed for every model variant")
	// ErrNoSelection is returned by a content source that has no active text selection.
	ErrNoSelection = errors.New("no text selected")
	// ErrSourceInactive is returned by a content source that needs activation before first use.
	ErrSourceInactive = errors.New("content source not active")
)

// TransportError is a failed HTTP exchange: either the request never completed (Err set)
// or the server answered with a non-2xx status (StatusCode and Body set).
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a TransportError with one of the given statuses.
func IsStatus(err error, statuses ...int) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	for _, s := range statuses {
		if te.StatusCode == s {
			return true
		}
	}
	return false
}

// EmbeddingExhaustedError is returned when every model-name variant failed.
// The message depends on the status of the last failure.
type EmbeddingExhaustedError struct {
	Model      string
	Tried      []string
	Endpoint   string
	StatusCode int
	Last       error
}

func (e *EmbeddingExhaustedError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		quoted := make([]string, len(e.Tried))
		for i, m := range e.Tried {
			quoted[i] = fmt.Sprintf("%q", m)
		}
		return fmt.Sprintf("model %q cannot be used (tried %s). Check that:\n"+
			"1. the model is installed: run 'ollama list'\n"+
			"2. the model supports embeddings: run 'ollama show %s'\n"+
			"3. the Ollama service is running: run 'ollama serve'\n"+
			"4. the model name is spelled correctly, including case",
			e.Model, strings.Join(quoted, ", "), e.Model)
	case http.StatusNotFound:
		return fmt.Sprintf("embedding endpoint not found, check the Ollama server address: %s", e.Endpoint)
	default:
		msg := "unknown error"
		if e.Last != nil {
			msg = e.Last.Error()
		}
		return "generate embedding failed: " + msg
	}
}

func (e *EmbeddingExhaustedError) Unwrap() error { return e.Last }

func (e *EmbeddingExhaustedError) Is(target error) bool { return target == ErrEmbeddingExhausted }
