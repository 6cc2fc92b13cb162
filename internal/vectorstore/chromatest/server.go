// Package chromatest provides an in-process fake of the Chroma v2 collection API.
package chromatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const prefix = "/api/v2/tenants/default/databases/default/collections"

type collection struct {
	id       string
	name     string
	metadata map[string]interface{}
	docs     *index
}

// Server fakes a Chroma server over in-memory collections. Collection ids are
// random UUIDs, like the real store's.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	byID        map[string]*collection
	order       []string
	failures    map[string]int
	raced       map[string]bool
	listStatus  int
	healthPaths map[string]bool
	listCalls   int
	createCalls int
	requests    []string
}

// New starts a fake server with no collections.
func New() *Server {
	s := &Server{
		byID:     make(map[string]*collection),
		failures: make(map[string]int),
		raced:    make(map[string]bool),
		healthPaths: map[string]bool{
			"/api/v2/heartbeat": true,
			"/api/v1/heartbeat": true,
			"/version":          true,
		},
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Get("/api/v2/heartbeat", s.handleHeartbeat)
	r.Get("/api/v1/heartbeat", s.handleHeartbeat)
	r.Get("/version", s.handleVersion)
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Delete("/{name}", s.handleDeleteCollection)
		r.Post("/{id}/add", s.handleAdd)
		r.Post("/{id}/query", s.handleQuery)
		r.Post("/{id}/get", s.handleGet)
		r.Post("/{id}/delete", s.handleDelete)
	})
	s.Server = httptest.NewServer(r)
	return s
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// CreateCollection adds a collection directly and returns its id.
func (s *Server) CreateCollection(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(name, nil).id
}

func (s *Server) createLocked(name string, metadata map[string]interface{}) *collection {
	col := &collection{id: uuid.NewString(), name: name, metadata: metadata, docs: &index{}}
	s.byID[col.id] = col
	s.order = append(s.order, col.id)
	return col
}

func (s *Server) byNameLocked(name string) *collection {
	for _, id := range s.order {
		if s.byID[id].name == name {
			return s.byID[id]
		}
	}
	return nil
}

// Fail makes every document operation on collection name answer with status.
func (s *Server) Fail(name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = status
}

// FailList makes the collection listing answer with status.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// RaceCreate makes the next create of name behave as if another client won
// the race: the collection is created but the request gets 409.
func (s *Server) RaceCreate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raced[name] = true
}

// DisableHealth makes the given probe path (such as "/api/v2/heartbeat") answer 404.
func (s *Server) DisableHealth(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthPaths[path] = false
}

// ListCalls returns how many times the collection listing was requested.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// CreateCalls returns how many create requests were received.
func (s *Server) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

// Requests returns "METHOD /path" for every request received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Names returns the collection names in creation order.
func (s *Server) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.order))
	for _, id := range s.order {
		names = append(names, s.byID[id].name)
	}
	return names
}

// Docs returns the documents stored in collection name, or nil if it does not exist.
func (s *Server) Docs(name string) []Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.byNameLocked(name)
	if col == nil {
		return nil
	}
	out := make([]Doc, len(col.docs.ids))
	for i := range col.docs.ids {
		out[i] = Doc{
			ID:        col.docs.ids[i],
			Document:  col.docs.documents[i],
			Metadata:  col.docs.metadatas[i],
			Embedding: col.docs.vectors[i],
		}
	}
	return out
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !s.healthy(r.URL.Path) {
		http.NotFound(w, r)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"nanosecond heartbeat": 1})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !s.healthy(r.URL.Path) {
		http.NotFound(w, r)
		return
	}
	respondJSON(w, http.StatusOK, "1.0.0")
}

func (s *Server) healthy(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthPaths[path]
}

type collectionJSON struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listStatus != 0 {
		respondError(w, s.listStatus, "listing unavailable")
		return
	}
	out := make([]collectionJSON, 0, len(s.order))
	for _, id := range s.order {
		col := s.byID[id]
		out = append(out, collectionJSON{ID: col.id, Name: col.name, Metadata: col.metadata})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string                 `json:"name"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "invalid collection")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.raced[req.Name] {
		delete(s.raced, req.Name)
		s.createLocked(req.Name, req.Metadata)
		respondError(w, http.StatusConflict, fmt.Sprintf("Collection [%s] already exists", req.Name))
		return
	}
	if s.byNameLocked(req.Name) != nil {
		respondError(w, http.StatusConflict, fmt.Sprintf("Collection [%s] already exists", req.Name))
		return
	}
	col := s.createLocked(req.Name, req.Metadata)
	respondJSON(w, http.StatusOK, collectionJSON{ID: col.id, Name: col.name, Metadata: col.metadata})
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.byNameLocked(name)
	if col == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Collection [%s] does not exist", name))
		return
	}
	delete(s.byID, col.id)
	for i, id := range s.order {
		if id == col.id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{})
}

// target looks up the collection addressed by the {id} URL parameter and
// applies failure injection. It writes the error response itself.
func (s *Server) target(w http.ResponseWriter, r *http.Request) *collection {
	col, ok := s.byID[chi.URLParam(r, "id")]
	if !ok {
		respondError(w, http.StatusNotFound, "collection not found")
		return nil
	}
	if status := s.failures[col.name]; status != 0 {
		respondError(w, status, "injected failure")
		return nil
	}
	return col
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs        []string                 `json:"ids"`
		Documents  []string                 `json:"documents"`
		Metadatas  []map[string]interface{} `json:"metadatas"`
		Embeddings [][]float32              `json:"embeddings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.target(w, r)
	if col == nil {
		return
	}
	if err := col.docs.add(req.IDs, req.Documents, req.Metadatas, req.Embeddings); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, true)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueryEmbeddings [][]float32            `json:"query_embeddings"`
		NResults        int                    `json:"n_results"`
		Where           map[string]interface{} `json:"where"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.target(w, r)
	if col == nil {
		return
	}
	res := struct {
		IDs       [][]string                 `json:"ids"`
		Documents [][]string                 `json:"documents"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Distances [][]float64                `json:"distances"`
	}{}
	for _, q := range req.QueryEmbeddings {
		hits, err := col.docs.search(q, req.NResults, req.Where)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids := make([]string, 0, len(hits))
		docs := make([]string, 0, len(hits))
		metas := make([]map[string]interface{}, 0, len(hits))
		dists := make([]float64, 0, len(hits))
		for _, h := range hits {
			ids = append(ids, col.docs.ids[h.pos])
			docs = append(docs, col.docs.documents[h.pos])
			metas = append(metas, col.docs.metadatas[h.pos])
			dists = append(dists, h.distance)
		}
		res.IDs = append(res.IDs, ids)
		res.Documents = append(res.Documents, docs)
		res.Metadatas = append(res.Metadatas, metas)
		res.Distances = append(res.Distances, dists)
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit  int                    `json:"limit"`
		Offset int                    `json:"offset"`
		Where  map[string]interface{} `json:"where"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.target(w, r)
	if col == nil {
		return
	}
	res := struct {
		IDs       []string                 `json:"ids"`
		Documents []string                 `json:"documents"`
		Metadatas []map[string]interface{} `json:"metadatas"`
	}{IDs: []string{}, Documents: []string{}, Metadatas: []map[string]interface{}{}}
	skipped := 0
	for i, id := range col.docs.ids {
		if !matches(col.docs.metadatas[i], req.Where) {
			continue
		}
		if skipped < req.Offset {
			skipped++
			continue
		}
		if req.Limit > 0 && len(res.IDs) >= req.Limit {
			break
		}
		res.IDs = append(res.IDs, id)
		res.Documents = append(res.Documents, col.docs.documents[i])
		res.Metadatas = append(res.Metadatas, col.docs.metadatas[i])
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.target(w, r)
	if col == nil {
		return
	}
	col.docs.remove(req.IDs)
	respondJSON(w, http.StatusOK, req.IDs)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
