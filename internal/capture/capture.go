// Package capture turns a web page or a text selection into one embedded
// document written to every selected capture collection.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/pagestash/internal/docid"
	"github.com/hyperjump/pagestash/internal/embedding"
	"github.com/hyperjump/pagestash/internal/extract"
	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/registry"
	"github.com/hyperjump/pagestash/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultSettleDelay is the pause between activating a source and retrying it.
const DefaultSettleDelay = 100 * time.Millisecond

// TimestampLayout is the metadata timestamp format (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Stores hands out the vector-store client for a server URL.
type Stores interface {
	Store(serverURL string) *vectorstore.Client
}

// PageRecorder keeps the local record of a capture.
type PageRecorder interface {
	SavePage(ctx context.Context, page *models.CapturedPageRecord) error
}

// Request describes one capture.
type Request struct {
	Mode        models.CaptureMode
	ServerURL   string
	Collections []string
	OllamaURL   string
	Model       models.ModelChoice
	Source      Source
}

// NewRequest returns a capture request for target. Mode and Source are left
// for the caller.
func NewRequest(target registry.Target) *Request {
	return &Request{
		ServerURL:   target.ServerURL,
		Collections: target.Collections,
		OllamaURL:   target.OllamaURL,
		Model:       target.Model,
	}
}

// WriteError reports a capture that stopped at one collection. Collections
// before it already hold the document; later ones were never attempted.
type WriteError struct {
	Written    []string
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	if len(e.Written) == 0 {
		return fmt.Sprintf("failed to add document to %q: %v", e.Collection, e.Err)
	}
	return fmt.Sprintf("failed to add document to %q (already stored in %s): %v",
		e.Collection, strings.Join(e.Written, ", "), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Service runs captures.
type Service struct {
	stores          Stores
	embedder        embedding.Embedder
	pages           PageRecorder
	extractor       *extract.Extractor
	mainContentOnly bool
	settle          time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces time.Now, used for document ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSettleDelay sets the pause after activating a source.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Service) { s.settle = d }
}

// WithMainContentOnly makes page captures keep only the main content region.
func WithMainContentOnly(on bool) Option {
	return func(s *Service) { s.mainContentOnly = on }
}

// WithExtractor sets the HTML cleaner used for page captures.
func WithExtractor(e *extract.Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// NewService creates a capture service. pages may be nil, in which case
// captures are not recorded locally.
func NewService(stores Stores, embedder embedding.Embedder, pages PageRecorder, opts ...Option) *Service {
	s := &Service{
		stores:    stores,
		embedder:  embedder,
		pages:     pages,
		extractor: extract.NewExtractor(),
		settle:    DefaultSettleDelay,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture acquires content from req.Source, embeds it once and adds the
// document to each collection in order. The first failed add stops the
// capture with a *WriteError.
func (s *Service) Capture(ctx context.Context, req *Request) (*models.CaptureResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	content, err := s.acquire(ctx, req.Source, req.Mode)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content.URL) == "" {
		return nil, fmt.Errorf("%w: captured content has no source URL", models.ErrInvalidInput)
	}
	if isSystemURL(content.URL) {
		return nil, fmt.Errorf("%w: browser system pages cannot be captured: %s", models.ErrInvalidInput, content.URL)
	}

	text := content.Body
	title := content.Title
	if req.Mode == models.CaptureModePage {
		if title == "" {
			title = extract.ExtractTitle(content.Body)
		}
		if s.mainContentOnly {
			text = s.extractor.MainContent(content.Body)
		} else {
			text = s.extractor.Clean(content.Body)
		}
	}
	if strings.TrimSpace(text) == "" {
		if req.Mode == models.CaptureModeSelection {
			return nil, models.ErrNoSelection
		}
		return nil, fmt.Errorf("%w: page has no text content", models.ErrInvalidInput)
	}

	model := req.Model.Name()
	vec, err := s.embedder.Embed(ctx, req.OllamaURL, text, model)
	if err != nil {
		return nil, err
	}

	now := s.now()
	doc := models.Document{
		Content:   text,
		Embedding: vec,
		Metadata: models.DocumentMetadata{
			URL:       content.URL,
			Title:     title,
			Timestamp: now.UTC().Format(TimestampLayout),
		},
	}
	if req.Mode == models.CaptureModeSelection {
		doc.ID = docid.SelectionID(content.URL, now)
		doc.Metadata.Type = models.CaptureTypeSelection
	} else {
		doc.ID = docid.PageID(content.URL)
	}

	store := s.stores.Store(req.ServerURL)
	written := make([]string, 0, len(req.Collections))
	for _, name := range req.Collections {
		if err := store.AddDocument(ctx, name, doc); err != nil {
			s.logger.Warn("capture aborted",
				zap.String("collection", name),
				zap.Strings("written", written),
				zap.Error(err))
			return nil, &WriteError{Written: written, Collection: name, Err: err}
		}
		written = append(written, name)
		s.logger.Debug("document added", zap.String("collection", name), zap.String("id", doc.ID))
	}

	s.record(ctx, &models.CapturedPageRecord{
		ID:        doc.ID,
		URL:       content.URL,
		Title:     title,
		Type:      doc.Metadata.Type,
		Timestamp: now,
	})

	s.logger.Info("captured",
		zap.String("mode", string(req.Mode)),
		zap.String("url", content.URL),
		zap.Strings("collections", written),
		zap.Int("characters", len([]rune(text))))
	return &models.CaptureResult{
		DocumentID:  doc.ID,
		Mode:        string(req.Mode),
		URL:         content.URL,
		Title:       title,
		Collections: written,
		Characters:  len([]rune(text)),
		Dimensions:  len(vec),
	}, nil
}

func validate(req *Request) error {
	if req == nil || req.Source == nil {
		return fmt.Errorf("%w: no content source", models.ErrInvalidInput)
	}
	if req.Mode != models.CaptureModePage && req.Mode != models.CaptureModeSelection {
		return fmt.Errorf("%w: unknown capture mode %q", models.ErrInvalidInput, req.Mode)
	}
	if strings.TrimSpace(req.ServerURL) == "" {
		return fmt.Errorf("%w: no vector store server selected", models.ErrInvalidInput)
	}
	if len(req.Collections) == 0 {
		return fmt.Errorf("%w: select at least one collection to capture into", models.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Model.Name()) == "" {
		return fmt.Errorf("%w: no embedding model selected", models.ErrInvalidInput)
	}
	return nil
}

// acquire reads content, activating the source and retrying once if it
// reports that it is not active yet.
func (s *Service) acquire(ctx context.Context, src Source, mode models.CaptureMode) (*Content, error) {
	c, err := src.Content(ctx, mode)
	if err == nil {
		return c, nil
	}
	act, ok := src.(Activator)
	if !ok || !errors.Is(err, models.ErrSourceInactive) {
		return nil, err
	}
	s.logger.Debug("activating content source")
	if err := act.Activate(ctx); err != nil {
		return nil, fmt.Errorf("failed to activate content source: %w", err)
	}
	if s.settle > 0 {
		t := time.NewTimer(s.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return src.Content(ctx, mode)
}

func (s *Service) record(ctx context.Context, page *models.CapturedPageRecord) {
	if s.pages == nil {
		return
	}
	if err := s.pages.SavePage(ctx, page); err != nil {
		s.logger.Warn("failed to record captured page", zap.String("id", page.ID), zap.Error(err))
	}
}

var systemPrefixes = []string{"chrome://", "chrome-extension://", "edge://", "about:"}

func isSystemURL(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	for _, p := range systemPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}
