package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings(r.Context())
	if err != nil {
		s.fail(w, "get settings", err)
		return
	}
	s.respondJSON(w, http.StatusOK, settings)
}

// handleSettingsPut merges the body over the current settings and stores the
// result. Fields left empty keep their current value.
func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	current, err := s.settings(r.Context())
	if err != nil {
		s.fail(w, "save settings", err)
		return
	}
	var body models.Settings
	if err := decode(r, &body); err != nil {
		s.fail(w, "save settings", err)
		return
	}
	merge := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	merge(&current.OllamaURL, body.OllamaURL)
	merge(&current.ChromaURL, body.ChromaURL)
	merge(&current.EmbeddingModel, body.EmbeddingModel)
	merge(&current.CustomModel, body.CustomModel)
	merge(&current.CollectionName, body.CollectionName)
	if current.Model().Name() == "" {
		s.fail(w, "save settings", fmt.Errorf("%w: custom model name is empty", models.ErrInvalidInput))
		return
	}
	if err := s.Storage.SaveSettings(r.Context(), &current); err != nil {
		s.fail(w, "save settings", err)
		return
	}
	s.logger.Info("settings saved", zap.String("model", current.Model().String()))
	s.respondJSON(w, http.StatusOK, current)
}

// handleModels lists embedding models on the configured Ollama server.
// ?all=true returns every installed model.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings(r.Context())
	if err != nil {
		s.fail(w, "list models", err)
		return
	}
	list, err := s.Ollama.ListModels(r.Context(), settings.OllamaURL)
	if err != nil {
		s.fail(w, "list models", err)
		return
	}
	if r.URL.Query().Get("all") != "true" {
		list = embedding.EmbeddingModels(list)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"models": list})
}

func (s *Server) handlePagesList(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.fail(w, "list pages", err)
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		s.fail(w, "list pages", err)
		return
	}
	pages, err := s.Storage.ListPages(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list pages", err)
		return
	}
	total, err := s.Storage.CountPages(r.Context())
	if err != nil {
		s.fail(w, "list pages", err)
		return
	}
	if pages == nil {
		pages = []*models.CapturedPageRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"pages": pages, "total": total})
}

func (s *Server) handlePagesDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Storage.DeletePage(r.Context(), id); err != nil {
		s.fail(w, "delete page", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handlePagesPrune(w http.ResponseWriter, r *http.Request) {
	if s.Janitor == nil {
		s.respondError(w, http.StatusServiceUnavailable, "housekeeping is disabled")
		return
	}
	removed, err := s.Janitor.RunOnce(r.Context())
	if err != nil {
		s.fail(w, "prune pages", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.Storage.Info(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	settings, err := s.settings(r.Context())
	if err != nil {
		s.fail(w, "status", err)
		return
	}
	status := map[string]interface{}{
		"storage":    info,
		"settings":   settings,
		"servers":    s.Registry.Servers(),
		"selections": s.selections(),
	}
	if c, ok := s.Embedder.(*embedding.CachingEmbedder); ok {
		status["embedding_cache"] = c.Stats()
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	dirs := []string{}
	if s.Watch != nil {
		dirs = append(dirs, s.Watch.Directories()...)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type testRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleTestOllama(w http.ResponseWriter, r *http.Request) {
	var body testRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, "test ollama", err)
		return
	}
	settings, err := s.settings(r.Context())
	if err != nil {
		s.fail(w, "test ollama", err)
		return
	}
	if body.URL == "" {
		body.URL = settings.OllamaURL
	}
	list, err := s.Ollama.TestConnection(r.Context(), body.URL)
	if err != nil {
		s.fail(w, "test ollama", err)
		return
	}
	model := settings.Model().Name()
	installed, err := s.Ollama.ModelExists(r.Context(), body.URL, model)
	if err != nil {
		s.fail(w, "test ollama", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"url":            body.URL,
		"models":         len(list),
		"model":          model,
		"modelInstalled": installed,
	})
}

func (s *Server) handleTestChroma(w http.ResponseWriter, r *http.Request) {
	var body testRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, "test chroma", err)
		return
	}
	if body.URL == "" {
		settings, err := s.settings(r.Context())
		if err != nil {
			s.fail(w, "test chroma", err)
			return
		}
		body.URL = settings.ChromaURL
	}
	info, err := s.Registry.Store(body.URL).TestConnection(r.Context())
	if err != nil {
		s.fail(w, "test chroma", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}
