package watcher

import (
	"context"
	"fmt"

	"github.com/hyperjump/pagestash/internal/capture"
	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

// Capturer runs one capture.
type Capturer interface {
	Capture(ctx context.Context, req *capture.Request) (*models.CaptureResult, error)
}

// TargetFunc returns the destination for the next inbox capture: server,
// collections and embedding settings. Mode and Source are filled in by the inbox.
type TargetFunc func(ctx context.Context) (*capture.Request, error)

// Inbox captures saved HTML files as full pages.
type Inbox struct {
	capturer Capturer
	target   TargetFunc
	logger   *zap.Logger
}

// NewInbox creates an inbox. A nil logger means no logging.
func NewInbox(capturer Capturer, target TargetFunc, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{capturer: capturer, target: target, logger: logger}
}

// Capture captures the file at path into the current capture selection.
func (b *Inbox) Capture(ctx context.Context, path string) (*models.CaptureResult, error) {
	req, err := b.target(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve capture target: %w", err)
	}
	req.Mode = models.CaptureModePage
	req.Source = &capture.FileSource{Path: path}
	res, err := b.capturer.Capture(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", path, err)
	}
	return res, nil
}

// Handler adapts the inbox to a watcher Handler. Failures are logged.
func (b *Inbox) Handler(ctx context.Context) Handler {
	return func(path string) {
		res, err := b.Capture(ctx, path)
		if err != nil {
			b.logger.Warn("inbox capture failed", zap.String("path", path), zap.Error(err))
			return
		}
		b.logger.Info("inbox file captured",
			zap.String("path", path),
			zap.String("id", res.DocumentID),
			zap.Strings("collections", res.Collections))
	}
}
