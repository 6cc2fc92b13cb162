package capture

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/pagestash/internal/docid"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/storage"
	"github.com/hyperjump/pagestash/internal/vectorstore"
	"github.com/hyperjump/pagestash/internal/vectorstore/chromatest"
)

type singleStore struct{ c *vectorstore.Client }

func (s singleStore) Store(string) *vectorstore.Client { return s.c }

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC)

type fixture struct {
	chroma   *chromatest.Server
	embedder *embedding.MockEmbedder
	pages    *storage.SQLiteStorage
	svc      *Service
}

func newFixture(t *testing.T, collections ...string) *fixture {
	t.Helper()
	chroma := chromatest.New()
	t.Cleanup(chroma.Close)
	for _, name := range collections {
		chroma.CreateCollection(name)
	}
	pages, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pages.Close() })
	emb := embedding.NewMockEmbedder(8)
	svc := NewService(singleStore{vectorstore.NewClient(chroma.URL)}, emb, pages,
		WithClock(func() time.Time { return fixedNow }),
		WithSettleDelay(0))
	return &fixture{chroma: chroma, embedder: emb, pages: pages, svc: svc}
}

func (f *fixture) request(mode models.CaptureMode, src Source, collections ...string) *Request {
	return &Request{
		Mode:        mode,
		ServerURL:   f.chroma.URL,
		Collections: collections,
		OllamaURL:   "http://ollama:11434",
		Model:       models.PresetModel("nomic-embed-text"),
		Source:      src,
	}
}

const page = `<html><head><title>Go Notes</title><style>p{}</style></head>
<body><nav>Home | About</nav><p>Channels   are
typed conduits.</p><script>track()</script></body></html>`

func TestCapture_page(t *testing.T) {
	f := newFixture(t, "a", "b")
	ctx := context.Background()
	src := &StaticSource{URL: "https://example.com/go", HTML: page}

	res, err := f.svc.Capture(ctx, f.request(models.CaptureModePage, src, "a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	wantID := docid.PageID("https://example.com/go")
	if res.DocumentID != wantID {
		t.Errorf("id = %q, want %q", res.DocumentID, wantID)
	}
	if res.Title != "Go Notes" {
		t.Errorf("title = %q", res.Title)
	}
	if !reflect.DeepEqual(res.Collections, []string{"a", "b"}) {
		t.Errorf("collections = %v", res.Collections)
	}
	if res.Dimensions != 8 {
		t.Errorf("dimensions = %d", res.Dimensions)
	}

	for _, name := range []string{"a", "b"} {
		docs := f.chroma.Docs(name)
		if len(docs) != 1 {
			t.Fatalf("%s: %d docs", name, len(docs))
		}
		d := docs[0]
		if d.ID != wantID {
			t.Errorf("%s: id = %q", name, d.ID)
		}
		if d.Document != "Channels are typed conduits." {
			t.Errorf("%s: document = %q", name, d.Document)
		}
		if d.Metadata["timestamp"] != "2024-01-02T03:04:05.006Z" {
			t.Errorf("%s: timestamp = %v", name, d.Metadata["timestamp"])
		}
		if _, ok := d.Metadata["type"]; ok {
			t.Errorf("%s: page capture has type %v", name, d.Metadata["type"])
		}
	}

	calls := f.embedder.Calls()
	if len(calls) != 1 {
		t.Fatalf("embed calls = %d, want 1", len(calls))
	}
	if calls[0].ServerURL != "http://ollama:11434" || calls[0].Model != "nomic-embed-text" {
		t.Errorf("embed call = %+v", calls[0])
	}

	recs, err := f.pages.ListPages(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != wantID || recs[0].Title != "Go Notes" {
		t.Errorf("records = %+v", recs)
	}
}

func TestCapture_recaptureKeepsID(t *testing.T) {
	f := newFixture(t, "a")
	ctx := context.Background()
	src := &StaticSource{URL: "https://example.com/go", HTML: page}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Capture(ctx, f.request(models.CaptureModePage, src, "a")); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(f.chroma.Docs("a")); n != 1 {
		t.Errorf("docs = %d, want 1", n)
	}
	if n, _ := f.pages.CountPages(ctx); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
}

func TestCapture_selectionIsRaw(t *testing.T) {
	f := newFixture(t, "a")
	src := &StaticSource{URL: "https://example.com/go", HTML: page, Selection: "  x <b>bold</b>\t y  "}
	req := f.request(models.CaptureModeSelection, src, "a")
	req.Model = models.CustomModel("my-embed:v2")

	res, err := f.svc.Capture(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if want := docid.SelectionID("https://example.com/go", fixedNow); res.DocumentID != want {
		t.Errorf("id = %q, want %q", res.DocumentID, want)
	}
	if res.DocumentID == docid.PageID("https://example.com/go") {
		t.Error("selection id collides with page id")
	}
	d := f.chroma.Docs("a")[0]
	if d.Document != "x <b>bold</b>\t y" {
		t.Errorf("document = %q", d.Document)
	}
	if d.Metadata["type"] != "selection" {
		t.Errorf("type = %v", d.Metadata["type"])
	}
	if got := f.embedder.Calls()[0].Model; got != "my-embed:v2" {
		t.Errorf("model = %q", got)
	}
}

func TestCapture_stopsAtFirstFailedCollection(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	f.chroma.Fail("b", http.StatusInternalServerError)
	ctx := context.Background()
	src := &StaticSource{URL: "https://example.com/go", HTML: page}

	res, err := f.svc.Capture(ctx, f.request(models.CaptureModePage, src, "a", "b", "c"))
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("err = %v, want *WriteError", err)
	}
	if we.Collection != "b" || !reflect.DeepEqual(we.Written, []string{"a"}) {
		t.Errorf("write error = %+v", we)
	}
	if !models.IsStatus(err, http.StatusInternalServerError) {
		t.Errorf("err does not carry status: %v", err)
	}
	if n := len(f.chroma.Docs("a")); n != 1 {
		t.Errorf("a: %d docs, want 1", n)
	}
	if n := len(f.chroma.Docs("c")); n != 0 {
		t.Errorf("c: %d docs, want 0", n)
	}
	adds := 0
	for _, r := range f.chroma.Requests() {
		if strings.HasSuffix(r, "/add") {
			adds++
		}
	}
	if adds != 2 {
		t.Errorf("add requests = %d, want 2", adds)
	}
	if n, _ := f.pages.CountPages(ctx); n != 0 {
		t.Errorf("records = %d, want 0", n)
	}
}

func TestCapture_preconditions(t *testing.T) {
	f := newFixture(t, "a")
	src := &StaticSource{URL: "https://example.com", HTML: page}
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"no server", func(r *Request) { r.ServerURL = " " }, models.ErrInvalidInput},
		{"no collections", func(r *Request) { r.Collections = nil }, models.ErrInvalidInput},
		{"no source", func(r *Request) { r.Source = nil }, models.ErrInvalidInput},
		{"bad mode", func(r *Request) { r.Mode = "tab" }, models.ErrInvalidInput},
		{"system page", func(r *Request) { r.Source = &StaticSource{URL: "chrome://settings", HTML: page} }, models.ErrInvalidInput},
		{"extension page", func(r *Request) { r.Source = &StaticSource{URL: "Chrome-Extension://abc/popup.html", HTML: page} }, models.ErrInvalidInput},
		{"empty page", func(r *Request) { r.Source = &StaticSource{URL: "https://x", HTML: "<script>x</script>"} }, models.ErrInvalidInput},
		{"no selection", func(r *Request) { r.Mode = models.CaptureModeSelection }, models.ErrNoSelection},
		{"no url", func(r *Request) { r.Source = &StaticSource{HTML: "<p>hello world</p>"} }, models.ErrInvalidInput},
		{"no selection url", func(r *Request) {
			r.Mode = models.CaptureModeSelection
			r.Source = &StaticSource{Selection: "picked"}
		}, models.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(models.CaptureModePage, src, "a")
			tt.mutate(req)
			_, err := f.svc.Capture(context.Background(), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(f.embedder.Calls()); n != 0 {
		t.Errorf("embed calls = %d, want 0", n)
	}
	if n := len(f.chroma.Docs("a")); n != 0 {
		t.Errorf("docs = %d, want 0", n)
	}
}

func TestCapture_embeddingFailureWritesNothing(t *testing.T) {
	f := newFixture(t, "a")
	f.embedder.Err = &models.EmbeddingExhaustedError{Model: "m", StatusCode: http.StatusNotFound, Endpoint: "http://ollama/"}
	src := &StaticSource{URL: "https://example.com", HTML: page}
	_, err := f.svc.Capture(context.Background(), f.request(models.CaptureModePage, src, "a"))
	if !errors.Is(err, models.ErrEmbeddingExhausted) {
		t.Fatalf("err = %v", err)
	}
	if n := len(f.chroma.Docs("a")); n != 0 {
		t.Errorf("docs = %d, want 0", n)
	}
}

func TestCapture_missingCollection(t *testing.T) {
	f := newFixture(t, "a")
	src := &StaticSource{URL: "https://example.com", HTML: page}
	_, err := f.svc.Capture(context.Background(), f.request(models.CaptureModePage, src, "missing"))
	if !errors.Is(err, models.ErrCollectionNotFound) {
		t.Fatalf("err = %v, want collection not found", err)
	}
	if got := f.chroma.Names(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("capture created a collection: %v", got)
	}
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) SavePage(context.Context, *models.CapturedPageRecord) error {
	r.calls++
	return errors.New("disk full")
}

func TestCapture_recordFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, "a")
	rec := &failingRecorder{}
	svc := NewService(singleStore{vectorstore.NewClient(f.chroma.URL)}, f.embedder, rec)
	src := &StaticSource{URL: "https://example.com", HTML: page}
	if _, err := svc.Capture(context.Background(), f.request(models.CaptureModePage, src, "a")); err != nil {
		t.Fatal(err)
	}
	if rec.calls != 1 {
		t.Errorf("record calls = %d", rec.calls)
	}
	if n := len(f.chroma.Docs("a")); n != 1 {
		t.Errorf("docs = %d, want 1", n)
	}
}

func TestCapture_modelRequiredBeforeAcquiring(t *testing.T) {
	f := newFixture(t, "a")
	for _, model := range []models.ModelChoice{models.PresetModel(""), models.CustomModel(" ")} {
		src := &lazySource{StaticSource: StaticSource{URL: "https://example.com", HTML: page}}
		req := f.request(models.CaptureModePage, src, "a")
		req.Model = model
		if _, err := f.svc.Capture(context.Background(), req); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("model %v: err = %v, want invalid input", model, err)
		}
		if src.activations != 0 {
			t.Errorf("model %v: source was touched before validation", model)
		}
	}
	if n := len(f.embedder.Calls()); n != 0 {
		t.Errorf("embed calls = %d, want 0", n)
	}
}

type lazySource struct {
	StaticSource
	active      bool
	activations int
	activateErr error
}

func (s *lazySource) Content(ctx context.Context, mode models.CaptureMode) (*Content, error) {
	if !s.active {
		return nil, models.ErrSourceInactive
	}
	return s.StaticSource.Content(ctx, mode)
}

func (s *lazySource) Activate(context.Context) error {
	s.activations++
	if s.activateErr != nil {
		return s.activateErr
	}
	s.active = true
	return nil
}

func TestCapture_activatesSourceOnce(t *testing.T) {
	f := newFixture(t, "a")
	src := &lazySource{StaticSource: StaticSource{URL: "https://example.com", Selection: "picked"}}
	res, err := f.svc.Capture(context.Background(), f.request(models.CaptureModeSelection, src, "a"))
	if err != nil {
		t.Fatal(err)
	}
	if src.activations != 1 || res.Characters != len("picked") {
		t.Errorf("activations = %d, result = %+v", src.activations, res)
	}

	broken := &lazySource{activateErr: errors.New("no tab")}
	_, err = f.svc.Capture(context.Background(), f.request(models.CaptureModeSelection, broken, "a"))
	if err == nil || !strings.Contains(err.Error(), "no tab") {
		t.Errorf("err = %v", err)
	}
}

func TestCapture_mainContentOnly(t *testing.T) {
	f := newFixture(t, "a")
	svc := NewService(singleStore{vectorstore.NewClient(f.chroma.URL)}, f.embedder, nil, WithMainContentOnly(true))
	html := `<html><body><div class="sidebar">Links</div><article>Body text</article></body></html>`
	src := &StaticSource{URL: "https://example.com", HTML: html}
	if _, err := svc.Capture(context.Background(), f.request(models.CaptureModePage, src, "a")); err != nil {
		t.Fatal(err)
	}
	if got := f.chroma.Docs("a")[0].Document; got != "Body text" {
		t.Errorf("document = %q", got)
	}
}

func TestWriteError_message(t *testing.T) {
	err := &WriteError{Written: []string{"a", "b"}, Collection: "c", Err: errors.New("boom")}
	want := `failed to add document to "c" (already stored in a, b): boom`
	if err.Error() != want {
		t.Errorf("got %q", err.Error())
	}
}
