package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/config"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/embedding/ollamatest"
	"github.com/hyperjump/pagestash/internal/housekeeping"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/registry"
	"github.com/hyperjump/pagestash/internal/search"
	"github.com/hyperjump/pagestash/internal/storage"
	"github.com/hyperjump/pagestash/internal/vectorstore/chromatest"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

type testEnv struct {
	chroma  *chromatest.Server
	ollama  *ollamatest.Server
	store   *storage.SQLiteStorage
	srv     *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, collections ...string) *testEnv {
	t.Helper()
	chroma := chromatest.New()
	t.Cleanup(chroma.Close)
	for _, name := range collections {
		chroma.CreateCollection(name)
	}
	ollama := ollamatest.New()
	t.Cleanup(ollama.Close)

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	cfg.Chroma.URL = chroma.URL
	cfg.Ollama.URL = ollama.URL
	config.ApplyDefaults(cfg)

	ctx := context.Background()
	reg, err := registry.New(ctx, store, registry.WithDefaultServers([]models.Server{{URL: chroma.URL, Name: "Local"}}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Refresh(ctx, chroma.URL); err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(8)
	srv := NewServer(Services{
		Registry: reg,
		Capture:  capture.NewService(reg, emb, store, capture.WithSettleDelay(0)),
		Search:   search.NewEngine(reg, emb, &cfg.Search),
		Storage:  store,
		Ollama:   embedding.NewOllamaClient(),
		Embedder: embedding.NewCachingEmbedder(emb, 16),
		Janitor: housekeeping.NewJanitor(store, cfg.Housekeeping.Retention(), time.Hour,
			housekeeping.WithClock(func() time.Time { return time.Now().Add(60 * 24 * time.Hour) })),
	}, cfg, nil)
	return &testEnv{chroma: chroma, ollama: ollama, store: store, srv: srv, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	if out != nil && w.Code < 300 {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return w.Code
}

const testPage = `<html><head><title>Go Notes</title></head><body><p>Channels are typed conduits.</p></body></html>`

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	var out map[string]string
	if code := env.do(t, http.MethodGet, "/health", nil, &out); code != http.StatusOK || out["status"] != "ok" {
		t.Errorf("health: %d %v", code, out)
	}
}

func TestHandleCaptureAndSearch(t *testing.T) {
	env := newTestEnv(t, "notes", "archive")

	code := env.do(t, http.MethodPut, "/api/v1/selections/capture", map[string]interface{}{"collections": []string{"notes", "archive"}}, nil)
	if code != http.StatusOK {
		t.Fatalf("select capture: %d", code)
	}
	var res models.CaptureResult
	code = env.do(t, http.MethodPost, "/api/v1/capture/page", captureRequest{URL: "https://example.com/go", HTML: testPage}, &res)
	if code != http.StatusCreated {
		t.Fatalf("capture page: %d", code)
	}
	if res.Title != "Go Notes" || len(res.Collections) != 2 {
		t.Errorf("result = %+v", res)
	}
	if docs := env.chroma.Docs("archive"); len(docs) != 1 {
		t.Errorf("archive docs = %d", len(docs))
	}

	var resp models.SearchResponse
	code = env.do(t, http.MethodPost, "/api/v1/search", searchRequest{Query: "channels", Collections: []string{"notes"}, Snippets: true}, &resp)
	if code != http.StatusOK {
		t.Fatalf("search: %d", code)
	}
	if len(resp.Results) != 1 || resp.Results[0].Collection != "notes" || resp.Results[0].Rank != 1 {
		t.Errorf("results = %+v", resp.Results)
	}

	var pages struct {
		Pages []*models.CapturedPageRecord `json:"pages"`
		Total int64                        `json:"total"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/pages", nil, &pages); code != http.StatusOK || pages.Total != 1 {
		t.Fatalf("pages: %d %+v", code, pages)
	}
	if pages.Pages[0].URL != "https://example.com/go" {
		t.Errorf("page = %+v", pages.Pages[0])
	}
	var pruned map[string]int64
	if code := env.do(t, http.MethodPost, "/api/v1/pages/prune", nil, &pruned); code != http.StatusOK || pruned["removed"] != 1 {
		t.Errorf("prune: %d %v", code, pruned)
	}
}

func TestHandleCapture_errors(t *testing.T) {
	env := newTestEnv(t, "notes")
	tests := []struct {
		name string
		path string
		body captureRequest
		want int
	}{
		{"no source", "/api/v1/capture/page", captureRequest{Collections: []string{"notes"}}, http.StatusBadRequest},
		{"empty selection", "/api/v1/capture/selection", captureRequest{URL: "https://a", Collections: []string{"notes"}}, http.StatusBadRequest},
		{"no collections", "/api/v1/capture/selection", captureRequest{URL: "https://a", Text: "hi"}, http.StatusBadRequest},
		{"missing collection", "/api/v1/capture/selection", captureRequest{URL: "https://a", Text: "hi", Collections: []string{"gone"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.do(t, http.MethodPost, tt.path, tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestHandleSearch_emptyQuery(t *testing.T) {
	env := newTestEnv(t, "notes")
	if code := env.do(t, http.MethodPost, "/api/v1/search", searchRequest{Query: "  ", Collections: []string{"notes"}}, nil); code != http.StatusBadRequest {
		t.Errorf("status = %d", code)
	}
}

func TestHandleServers(t *testing.T) {
	env := newTestEnv(t)
	var srv models.Server
	if code := env.do(t, http.MethodPost, "/api/v1/servers", models.Server{URL: "http://other:8000/"}, &srv); code != http.StatusCreated {
		t.Fatalf("add: %d", code)
	}
	if srv.URL != "http://other:8000" || srv.Name != "Server 2" {
		t.Errorf("server = %+v", srv)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/servers", models.Server{URL: "http://other:8000"}, nil); code != http.StatusBadRequest {
		t.Errorf("duplicate add: %d", code)
	}
	var list struct {
		Servers []models.Server `json:"servers"`
	}
	if env.do(t, http.MethodGet, "/api/v1/servers", nil, &list); len(list.Servers) != 2 {
		t.Errorf("servers = %+v", list.Servers)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/servers?url=http://other:8000", nil, nil); code != http.StatusOK {
		t.Errorf("remove: %d", code)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/servers?url=http://other:8000", nil, nil); code != http.StatusNotFound {
		t.Errorf("remove unknown: %d", code)
	}
}

func TestHandleCollections(t *testing.T) {
	env := newTestEnv(t, "notes")
	var col models.Collection
	if code := env.do(t, http.MethodPost, "/api/v1/collections", map[string]string{"name": "research"}, &col); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	if col.Name != "research" || col.ID == "" {
		t.Errorf("collection = %+v", col)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/collections", map[string]string{"name": "research"}, nil); code != http.StatusConflict {
		t.Errorf("duplicate create: %d", code)
	}

	var list struct {
		Collections []models.Collection `json:"collections"`
	}
	env.do(t, http.MethodGet, "/api/v1/collections?server="+env.chroma.URL, nil, &list)
	if len(list.Collections) != 2 {
		t.Errorf("collections = %+v", list.Collections)
	}

	if code := env.do(t, http.MethodDelete, "/api/v1/collections/research", nil, nil); code != http.StatusOK {
		t.Errorf("delete: %d", code)
	}
	env.do(t, http.MethodPost, "/api/v1/collections/refresh", nil, &list)
	if len(list.Collections) != 1 || list.Collections[0].Name != "notes" {
		t.Errorf("after refresh = %+v", list.Collections)
	}
}

func TestHandleDocuments(t *testing.T) {
	env := newTestEnv(t, "notes")
	for _, u := range []string{"https://a", "https://b"} {
		body := captureRequest{URL: u, Text: "text from " + u, Collections: []string{"notes"}}
		if code := env.do(t, http.MethodPost, "/api/v1/capture/selection", body, nil); code != http.StatusCreated {
			t.Fatalf("capture %s: %d", u, code)
		}
	}

	var docs struct {
		Documents []documentView `json:"documents"`
	}
	env.do(t, http.MethodGet, "/api/v1/collections/notes/documents?limit=1", nil, &docs)
	if len(docs.Documents) != 1 {
		t.Fatalf("documents = %+v", docs.Documents)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/collections/notes/documents?limit=x", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", code)
	}

	id := docs.Documents[0].ID
	if code := env.do(t, http.MethodDelete, "/api/v1/collections/notes/documents/"+id, nil, nil); code != http.StatusOK {
		t.Errorf("delete document: %d", code)
	}
	var cleared struct {
		Deleted int `json:"deleted"`
	}
	if code := env.do(t, http.MethodPost, "/api/v1/collections/notes/clear", nil, &cleared); code != http.StatusOK || cleared.Deleted != 1 {
		t.Errorf("clear: %d %+v", code, cleared)
	}
	if n := len(env.chroma.Docs("notes")); n != 0 {
		t.Errorf("docs left = %d", n)
	}
}

func TestHandleSelections(t *testing.T) {
	env := newTestEnv(t)
	if code := env.do(t, http.MethodPut, "/api/v1/selections/search", map[string]interface{}{"collections": []string{"a", "a", "b"}}, nil); code != http.StatusOK {
		t.Fatalf("put: %d", code)
	}
	if code := env.do(t, http.MethodPut, "/api/v1/selections/other", map[string]interface{}{"collections": []string{"a"}}, nil); code != http.StatusBadRequest {
		t.Errorf("unknown kind: %d", code)
	}
	var out map[string][]string
	env.do(t, http.MethodGet, "/api/v1/selections", nil, &out)
	if len(out["search"]) != 2 || len(out["capture"]) != 0 {
		t.Errorf("selections = %v", out)
	}
}

func TestHandleSettings(t *testing.T) {
	env := newTestEnv(t)
	var got models.Settings
	env.do(t, http.MethodGet, "/api/v1/settings", nil, &got)
	if got.EmbeddingModel != config.DefaultModel || got.ChromaURL != env.chroma.URL {
		t.Errorf("defaults = %+v", got)
	}

	code := env.do(t, http.MethodPut, "/api/v1/settings", models.Settings{EmbeddingModel: models.CustomModelSentinel}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("custom without name: %d", code)
	}
	code = env.do(t, http.MethodPut, "/api/v1/settings", models.Settings{EmbeddingModel: models.CustomModelSentinel, CustomModel: "bge-m3"}, &got)
	if code != http.StatusOK || got.Model().Name() != "bge-m3" || got.OllamaURL != env.ollama.URL {
		t.Errorf("put: %d %+v", code, got)
	}
	stored, err := env.store.GetSettings(context.Background())
	if err != nil || stored.CustomModel != "bge-m3" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestHandleModels(t *testing.T) {
	env := newTestEnv(t)
	env.ollama.SetTags("llama3:latest", "nomic-embed-text:latest", "mxbai-embed-large:latest")

	var out struct {
		Models []embedding.Model `json:"models"`
	}
	env.do(t, http.MethodGet, "/api/v1/models", nil, &out)
	if len(out.Models) != 2 {
		t.Errorf("embedding models = %+v", out.Models)
	}
	env.do(t, http.MethodGet, "/api/v1/models?all=true", nil, &out)
	if len(out.Models) != 3 {
		t.Errorf("all models = %+v", out.Models)
	}

	env.ollama.FailTags(http.StatusInternalServerError)
	if code := env.do(t, http.MethodGet, "/api/v1/models", nil, nil); code != http.StatusBadGateway {
		t.Errorf("failing server: %d", code)
	}
}

func TestHandleTestConnections(t *testing.T) {
	env := newTestEnv(t)
	env.ollama.SetTags("nomic-embed-text:latest")

	var ollama map[string]interface{}
	if code := env.do(t, http.MethodPost, "/api/v1/test/ollama", nil, &ollama); code != http.StatusOK {
		t.Fatalf("ollama: %d", code)
	}
	if ollama["modelInstalled"] != true {
		t.Errorf("ollama = %v", ollama)
	}

	var chroma struct {
		Endpoint string `json:"endpoint"`
	}
	if code := env.do(t, http.MethodPost, "/api/v1/test/chroma", nil, &chroma); code != http.StatusOK {
		t.Fatalf("chroma: %d", code)
	}
	if chroma.Endpoint != env.chroma.URL+"/api/v2/heartbeat" {
		t.Errorf("endpoint = %q", chroma.Endpoint)
	}
}

func TestHandleStatusAndWatch(t *testing.T) {
	env := newTestEnv(t)
	var status struct {
		Storage *storage.Info         `json:"storage"`
		Servers []models.Server       `json:"servers"`
		Cache   *embedding.CacheStats `json:"embedding_cache"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if status.Storage == nil || len(status.Servers) != 1 || status.Cache == nil {
		t.Errorf("status = %+v", status)
	}

	var watch struct {
		Directories []string `json:"directories"`
	}
	env.do(t, http.MethodGet, "/api/v1/watch", nil, &watch)
	if watch.Directories == nil || len(watch.Directories) != 0 {
		t.Errorf("no watcher: %v", watch.Directories)
	}
	env.srv.Watch = &mockWatchService{dirs: []string{"/tmp/inbox"}}
	env.do(t, http.MethodGet, "/api/v1/watch", nil, &watch)
	if len(watch.Directories) != 1 || watch.Directories[0] != "/tmp/inbox" {
		t.Errorf("directories = %v", watch.Directories)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidInput, http.StatusBadRequest},
		{models.ErrNoSelection, http.StatusBadRequest},
		{models.ErrCollectionNotFound, http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{registry.ErrUnknownServer, http.StatusNotFound},
		{models.ErrCollectionConflict, http.StatusConflict},
		{&models.TransportError{Op: "query", StatusCode: 500}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
