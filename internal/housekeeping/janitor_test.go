package housekeeping

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/storage"
)

func TestJanitor_RunOnce(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	for _, p := range []*models.CapturedPageRecord{
		{ID: "old", URL: "https://old", Timestamp: now.Add(-31 * 24 * time.Hour)},
		{ID: "edge", URL: "https://edge", Timestamp: now.Add(-30 * 24 * time.Hour)},
		{ID: "new", URL: "https://new", Timestamp: now.Add(-29 * 24 * time.Hour)},
	} {
		if err := store.SavePage(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	j := NewJanitor(store, 30*24*time.Hour, time.Hour, WithClock(func() time.Time { return now }))
	n, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	pages, err := store.ListPages(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].ID != "new" {
		t.Errorf("remaining = %+v", pages)
	}
}

type countingPruner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPruner) PrunePages(context.Context, time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 0, p.err
}

func (p *countingPruner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestJanitor_Run(t *testing.T) {
	p := &countingPruner{err: errors.New("locked")}
	j := NewJanitor(p, time.Hour, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	time.Sleep(55 * time.Millisecond)
	cancel()
	<-done
	if p.count() < 3 {
		t.Errorf("prune calls = %d, want at least 3", p.count())
	}
}

func TestJanitor_RunOnce_error(t *testing.T) {
	p := &countingPruner{err: errors.New("locked")}
	if _, err := NewJanitor(p, time.Hour, 0).RunOnce(context.Background()); err == nil {
		t.Error("expected error")
	}
	// Without an interval Run returns after the first pass.
	NewJanitor(p, time.Hour, 0).Run(context.Background())
	if p.count() != 2 {
		t.Errorf("calls = %d", p.count())
	}
}
