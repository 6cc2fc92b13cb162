package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/vectorstore"
	"go.uber.org/zap"
)

func (s *Server) handleServersList(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"servers": s.Registry.Servers()})
}

func (s *Server) handleServersAdd(w http.ResponseWriter, r *http.Request) {
	var body models.Server
	if err := decode(r, &body); err != nil {
		s.fail(w, "add server", err)
		return
	}
	srv, err := s.Registry.AddServer(r.Context(), body.URL, body.Name)
	if err != nil {
		s.fail(w, "add server", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, srv)
}

func (s *Server) handleServersRemove(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		s.fail(w, "remove server", fmt.Errorf("%w: url is required", models.ErrInvalidInput))
		return
	}
	if err := s.Registry.RemoveServer(r.Context(), u); err != nil {
		s.fail(w, "remove server", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": u, "status": "removed"})
}

// handleCollectionsList returns one server's collections when ?server= is
// given, otherwise the union across refreshed servers.
func (s *Server) handleCollectionsList(w http.ResponseWriter, r *http.Request) {
	var cols []models.Collection
	if server := r.URL.Query().Get("server"); server != "" {
		cols = s.Registry.Collections(server)
	} else {
		cols = s.Registry.Union()
	}
	if cols == nil {
		cols = []models.Collection{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": cols})
}

func (s *Server) handleCollectionsRefresh(w http.ResponseWriter, r *http.Request) {
	if server := r.URL.Query().Get("server"); server != "" {
		cols, err := s.Registry.Refresh(r.Context(), server)
		if err != nil {
			s.fail(w, "refresh collections", err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": cols})
		return
	}
	failed := make(map[string]string)
	for u, err := range s.Registry.RefreshAll(r.Context()) {
		failed[u] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"collections": s.Registry.Union(),
		"failed":      failed,
	})
}

func (s *Server) handleCollectionsCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Server string `json:"server"`
		Name   string `json:"name"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, "create collection", err)
		return
	}
	if body.Server == "" {
		server, err := s.serverParam(r)
		if err != nil {
			s.fail(w, "create collection", err)
			return
		}
		body.Server = server
	}
	col, err := s.Registry.CreateCollection(r.Context(), body.Server, body.Name)
	if err != nil {
		s.fail(w, "create collection", err)
		return
	}
	s.logger.Info("collection created", zap.String("server", body.Server), zap.String("name", col.Name))
	s.respondJSON(w, http.StatusCreated, col)
}

func (s *Server) handleCollectionsDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server, err := s.serverParam(r)
	if err != nil {
		s.fail(w, "delete collection", err)
		return
	}
	if err := s.Registry.DeleteCollection(r.Context(), server, name); err != nil {
		s.fail(w, "delete collection", err)
		return
	}
	s.logger.Info("collection deleted", zap.String("server", server), zap.String("name", name))
	s.respondJSON(w, http.StatusOK, map[string]string{"name": name, "status": "deleted"})
}

type documentView struct {
	ID       string                 `json:"id"`
	Document string                 `json:"document"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleDocumentsList(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server, err := s.serverParam(r)
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	res, err := s.Registry.Store(server).GetDocuments(r.Context(), name, vectorstore.GetOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.fail(w, "list documents", err)
		return
	}
	docs := make([]documentView, len(res.IDs))
	for i, id := range res.IDs {
		docs[i].ID = id
		if i < len(res.Documents) {
			docs[i].Document = res.Documents[i]
		}
		if i < len(res.Metadatas) {
			docs[i].Metadata = res.Metadatas[i]
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collection": name, "documents": docs})
}

func (s *Server) handleDocumentsDelete(w http.ResponseWriter, r *http.Request) {
	name, id := chi.URLParam(r, "name"), chi.URLParam(r, "id")
	server, err := s.serverParam(r)
	if err != nil {
		s.fail(w, "delete document", err)
		return
	}
	if err := s.Registry.Store(server).DeleteDocument(r.Context(), name, id); err != nil {
		s.fail(w, "delete document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleCollectionsClear(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server, err := s.serverParam(r)
	if err != nil {
		s.fail(w, "clear collection", err)
		return
	}
	res, err := s.Registry.Store(server).ClearCollection(r.Context(), name)
	if err != nil {
		s.fail(w, "clear collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) selections() map[models.SelectionKind][]string {
	return map[models.SelectionKind][]string{
		models.SelectionCapture: s.Registry.Selection(models.SelectionCapture),
		models.SelectionSearch:  s.Registry.Selection(models.SelectionSearch),
	}
}

func (s *Server) handleSelectionsGet(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.selections())
}

func (s *Server) handleSelectionsPut(w http.ResponseWriter, r *http.Request) {
	kind := models.SelectionKind(strings.ToLower(chi.URLParam(r, "kind")))
	var body struct {
		Collections []string `json:"collections"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, "select collections", err)
		return
	}
	if err := s.Registry.Select(r.Context(), kind, body.Collections); err != nil {
		s.fail(w, "select collections", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"kind":        kind,
		"collections": s.Registry.Selection(kind),
	})
}
