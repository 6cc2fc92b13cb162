package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/pagestash/internal/models"
	"go.uber.org/zap"
)

// Refresh lists the collections of serverURL and stores them as that
// server's group. Any selection that is still empty gets the first listed
// collection.
func (r *Registry) Refresh(ctx context.Context, serverURL string) ([]models.Collection, error) {
	key := normalizeURL(serverURL)
	if key == "" {
		return nil, fmt.Errorf("%w: server url is empty", models.ErrInvalidInput)
	}
	list, err := r.Store(key).GetCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh collections of %s: %w", key, err)
	}

	r.mu.Lock()
	r.groups[key] = list
	var autoSelected []models.SelectionKind
	if len(list) > 0 {
		for _, kind := range []models.SelectionKind{models.SelectionCapture, models.SelectionSearch} {
			if len(r.selections[kind]) == 0 {
				r.selections[kind] = []string{list[0].Name}
				autoSelected = append(autoSelected, kind)
			}
		}
	}
	r.mu.Unlock()

	for _, kind := range autoSelected {
		if err := r.store.SaveSelection(ctx, kind, []string{list[0].Name}); err != nil {
			return nil, fmt.Errorf("save %s selection: %w", kind, err)
		}
		r.logger.Debug("selected first collection", zap.String("selection", string(kind)), zap.String("collection", list[0].Name))
	}
	return append([]models.Collection(nil), list...), nil
}

// RefreshAll refreshes every registered server. Failures are logged and
// returned per server URL; they do not stop the other servers.
func (r *Registry) RefreshAll(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for _, s := range r.Servers() {
		if _, err := r.Refresh(ctx, s.URL); err != nil {
			r.logger.Warn("refresh failed", zap.String("server", s.URL), zap.Error(err))
			failed[s.URL] = err
		}
	}
	return failed
}

// Collections returns the last refreshed group of serverURL.
func (r *Registry) Collections(serverURL string) []models.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Collection(nil), r.groups[normalizeURL(serverURL)]...)
}

// Union returns the collections of every refreshed server: registered servers
// first in list order, then unregistered ones by URL. Names seen on an earlier
// server are not repeated.
func (r *Registry) Union() []models.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make([]string, 0, len(r.groups))
	listed := make(map[string]bool, len(r.servers))
	for _, s := range r.servers {
		key := normalizeURL(s.URL)
		if _, ok := r.groups[key]; ok && !listed[key] {
			order = append(order, key)
			listed[key] = true
		}
	}
	var extra []string
	for key := range r.groups {
		if !listed[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	seen := make(map[string]bool)
	var out []models.Collection
	for _, key := range order {
		for _, c := range r.groups[key] {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			out = append(out, c)
		}
	}
	return out
}

// Selection returns the collection names selected for kind.
func (r *Registry) Selection(kind models.SelectionKind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.selections[kind]...)
}

// Select replaces the selection for kind. Duplicate and blank names are dropped.
// Names are not checked against any server so a selection survives a refresh
// that fails.
func (r *Registry) Select(ctx context.Context, kind models.SelectionKind, names []string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown selection %q", models.ErrInvalidInput, kind)
	}
	clean := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		clean = append(clean, n)
	}
	if err := r.store.SaveSelection(ctx, kind, clean); err != nil {
		return fmt.Errorf("save %s selection: %w", kind, err)
	}
	r.mu.Lock()
	r.selections[kind] = clean
	r.mu.Unlock()
	return nil
}

// CreateCollection creates name on serverURL. Names already known on that
// server are rejected without a request.
func (r *Registry) CreateCollection(ctx context.Context, serverURL, name string) (models.Collection, error) {
	key := normalizeURL(serverURL)
	name = strings.TrimSpace(name)
	if key == "" {
		return models.Collection{}, fmt.Errorf("%w: server url is empty", models.ErrInvalidInput)
	}
	if name == "" {
		return models.Collection{}, fmt.Errorf("%w: collection name is empty", models.ErrInvalidInput)
	}
	r.mu.Lock()
	for _, c := range r.groups[key] {
		if c.Name == name {
			r.mu.Unlock()
			return models.Collection{}, fmt.Errorf("%w: %q on %s", models.ErrCollectionConflict, name, key)
		}
	}
	r.mu.Unlock()

	col, err := r.Store(key).CreateCollection(ctx, name)
	if err != nil {
		return models.Collection{}, err
	}
	r.mu.Lock()
	r.groups[key] = append(r.groups[key], col)
	r.mu.Unlock()
	return col, nil
}

// DeleteCollection deletes name from serverURL and drops it from that
// server's group. Selections keep the name.
func (r *Registry) DeleteCollection(ctx context.Context, serverURL, name string) error {
	key := normalizeURL(serverURL)
	if key == "" {
		return fmt.Errorf("%w: server url is empty", models.ErrInvalidInput)
	}
	if err := r.Store(key).DeleteCollection(ctx, name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	group := r.groups[key]
	kept := group[:0]
	for _, c := range group {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	r.groups[key] = kept
	return nil
}
