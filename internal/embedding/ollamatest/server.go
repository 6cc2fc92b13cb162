// Package ollamatest provides an in-process fake of the Ollama embedding API.
package ollamatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Server serves POST /api/embeddings and GET /api/tags. Only model names
// registered with Accept produce a vector; any other name gets RejectStatus.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	vectors      map[string][]float32
	malformed    map[string]bool
	tags         []string
	attempts     []string
	rejectStatus int
	tagsStatus   int
}

// New starts a fake server. Unknown models are rejected with 404, as Ollama does.
func New() *Server {
	s := &Server{
		vectors:      make(map[string][]float32),
		malformed:    make(map[string]bool),
		rejectStatus: http.StatusNotFound,
		tagsStatus:   http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", s.handleEmbeddings)
	mux.HandleFunc("/api/tags", s.handleTags)
	s.Server = httptest.NewServer(mux)
	return s
}

// Accept makes model answer with vec.
func (s *Server) Accept(model string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[model] = vec
}

// Malformed makes model answer 200 with a body that has no usable vector.
func (s *Server) Malformed(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformed[model] = true
}

// RejectWith sets the status returned for models that were not accepted.
func (s *Server) RejectWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectStatus = status
}

// SetTags sets the model names listed by /api/tags.
func (s *Server) SetTags(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = names
}

// FailTags makes /api/tags answer with status.
func (s *Server) FailTags(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagsStatus = status
}

// Attempts returns the model names received by /api/embeddings, in order.
func (s *Server) Attempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.attempts = append(s.attempts, req.Model)
	vec, ok := s.vectors[req.Model]
	bad := s.malformed[req.Model]
	reject := s.rejectStatus
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case bad:
		_, _ = w.Write([]byte(`{"embedding":"not a vector"}`))
	case ok:
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vec})
	default:
		w.WriteHeader(reject)
		_, _ = fmt.Fprintf(w, `{"error":"model %q not found, try pulling it first"}`, req.Model)
	}
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.tagsStatus
	names := append([]string(nil), s.tags...)
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	type model struct {
		Name string `json:"name"`
	}
	out := struct {
		Models []model `json:"models"`
	}{Models: make([]model, 0, len(names))}
	for _, n := range names {
		out.Models = append(out.Models, model{Name: n})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
