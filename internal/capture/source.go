package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/pagestash/internal/extract"
	"github.com/hyperjump/pagestash/internal/models"
)

// Content is what a Source hands back for one capture.
// Body is page markup in page mode and plain selected text in selection mode.
type Content struct {
	URL   string
	Title string
	Body  string
}

// Source supplies either the serialized markup of a document or its active
// text selection. Sources without a selection return models.ErrNoSelection.
type Source interface {
	Content(ctx context.Context, mode models.CaptureMode) (*Content, error)
}

// Activator is implemented by sources that need a one-time activation step.
// A source that is not yet active returns models.ErrSourceInactive from Content.
type Activator interface {
	Activate(ctx context.Context) error
}

// StaticSource serves fixed markup and an optional selection.
type StaticSource struct {
	URL       string
	Title     string
	HTML      string
	Selection string
}

// Content implements Source.
func (s *StaticSource) Content(_ context.Context, mode models.CaptureMode) (*Content, error) {
	if mode == models.CaptureModeSelection {
		text := strings.TrimSpace(s.Selection)
		if text == "" {
			return nil, models.ErrNoSelection
		}
		return &Content{URL: s.URL, Title: s.Title, Body: text}, nil
	}
	return &Content{URL: s.URL, Title: s.Title, Body: s.HTML}, nil
}

// TextSource reads a selection from r, e.g. standard input.
type TextSource struct {
	URL    string
	Title  string
	Reader io.Reader
}

// Content implements Source. Only selection mode is supported.
func (s *TextSource) Content(_ context.Context, mode models.CaptureMode) (*Content, error) {
	if mode != models.CaptureModeSelection {
		return nil, fmt.Errorf("%w: text input can only be captured as a selection", models.ErrInvalidInput)
	}
	if s.Reader == nil {
		return nil, models.ErrNoSelection
	}
	b, err := io.ReadAll(s.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read selection: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return nil, models.ErrNoSelection
	}
	return &Content{URL: s.URL, Title: s.Title, Body: text}, nil
}

// FileSource reads a saved HTML page from disk. URL defaults to the file URL
// of the absolute path and Title to the page's <title>.
type FileSource struct {
	Path string
	URL  string
}

// Content implements Source. A file has no selection.
func (s *FileSource) Content(_ context.Context, mode models.CaptureMode) (*Content, error) {
	if mode == models.CaptureModeSelection {
		return nil, models.ErrNoSelection
	}
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	u := s.URL
	if u == "" {
		u = "file://" + filepath.ToSlash(abs)
	}
	html := string(b)
	return &Content{URL: u, Title: extract.ExtractTitle(html), Body: html}, nil
}

// DefaultFetchTimeout bounds a URLSource request when no client is given.
const DefaultFetchTimeout = 30 * time.Second

// maxFetchBytes caps how much of a response body is read.
const maxFetchBytes = 10 << 20

// URLSource fetches a live page over HTTP.
type URLSource struct {
	URL    string
	Client *http.Client
}

// Content implements Source. A fetched page has no selection.
func (s *URLSource) Content(ctx context.Context, mode models.CaptureMode) (*Content, error) {
	if mode == models.CaptureModeSelection {
		return nil, models.ErrNoSelection
	}
	hc := s.Client
	if hc == nil {
		hc = &http.Client{Timeout: DefaultFetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: "fetch page", URL: s.URL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &models.TransportError{Op: "fetch page", URL: s.URL, StatusCode: resp.StatusCode, Body: string(body)}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, &models.TransportError{Op: "fetch page", URL: s.URL, Err: err}
	}
	html := string(b)
	// Redirects change the page identity.
	final := s.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Content{URL: final, Title: extract.ExtractTitle(html), Body: html}, nil
}

var (
	_ Source = (*StaticSource)(nil)
	_ Source = (*TextSource)(nil)
	_ Source = (*FileSource)(nil)
	_ Source = (*URLSource)(nil)
)
