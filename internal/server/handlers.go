package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/registry"
	"github.com/hyperjump/pagestash/internal/search"
	"github.com/hyperjump/pagestash/internal/storage"
	"go.uber.org/zap"
)

type captureRequest struct {
	Server      string   `json:"server,omitempty"`
	Collections []string `json:"collections,omitempty"`
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Text        string   `json:"text,omitempty"`
}

type searchRequest struct {
	Query       string   `json:"query"`
	Server      string   `json:"server,omitempty"`
	Collections []string `json:"collections,omitempty"`
	Snippets    bool     `json:"snippets,omitempty"`
}

func (s *Server) settings(ctx context.Context) (models.Settings, error) {
	return storage.LoadSettings(ctx, s.Storage, s.config.Settings())
}

// serverParam returns the ?server= query parameter, or the settings' server.
func (s *Server) serverParam(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.URL.Query().Get("server")); v != "" {
		return v, nil
	}
	settings, err := s.settings(r.Context())
	if err != nil {
		return "", err
	}
	return settings.ChromaURL, nil
}

func (s *Server) target(ctx context.Context, kind models.SelectionKind, server string, collections []string) (registry.Target, error) {
	settings, err := s.settings(ctx)
	if err != nil {
		return registry.Target{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return s.Registry.Target(settings, kind, server, collections), nil
}

func (s *Server) captureTarget(ctx context.Context, server string, collections []string) (*capture.Request, error) {
	target, err := s.target(ctx, models.SelectionCapture, server, collections)
	if err != nil {
		return nil, err
	}
	return capture.NewRequest(target), nil
}

func (s *Server) handleCapturePage(w http.ResponseWriter, r *http.Request) {
	var body captureRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, "capture page", err)
		return
	}
	req, err := s.captureTarget(r.Context(), body.Server, body.Collections)
	if err != nil {
		s.fail(w, "capture page", err)
		return
	}
	req.Mode = models.CaptureModePage
	switch {
	case body.HTML != "":
		req.Source = &capture.StaticSource{URL: body.URL, Title: body.Title, HTML: body.HTML}
	case body.URL != "":
		req.Source = &capture.URLSource{URL: body.URL}
	default:
		s.fail(w, "capture page", fmt.Errorf("%w: url or html is required", models.ErrInvalidInput))
		return
	}
	s.logger.Debug("capture page request", zap.String("url", body.URL), zap.Strings("collections", req.Collections))
	s.runCapture(w, r, req)
}

func (s *Server) handleCaptureSelection(w http.ResponseWriter, r *http.Request) {
	var body captureRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, "capture selection", err)
		return
	}
	req, err := s.captureTarget(r.Context(), body.Server, body.Collections)
	if err != nil {
		s.fail(w, "capture selection", err)
		return
	}
	req.Mode = models.CaptureModeSelection
	req.Source = &capture.StaticSource{URL: body.URL, Title: body.Title, Selection: body.Text}
	s.logger.Debug("capture selection request", zap.String("url", body.URL), zap.Int("characters", len(body.Text)))
	s.runCapture(w, r, req)
}

func (s *Server) runCapture(w http.ResponseWriter, r *http.Request, req *capture.Request) {
	res, err := s.Capture.Capture(r.Context(), req)
	if err != nil {
		s.fail(w, "capture", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, "search", err)
		return
	}
	target, err := s.target(r.Context(), models.SelectionSearch, body.Server, body.Collections)
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	req := search.NewRequest(body.Query, target)
	s.logger.Debug("search request", zap.String("query", body.Query), zap.Strings("collections", req.Collections))
	response, err := s.Search.Search(r.Context(), req)
	if err != nil {
		s.fail(w, "search", err)
		return
	}
	if body.Snippets {
		for _, hit := range response.Results {
			hit.Document = search.Snippet(hit.Document, s.config.Search.SnippetLength)
		}
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
