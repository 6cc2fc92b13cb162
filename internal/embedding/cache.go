package embedding

import (
	"container/list"
	"context"
	"sync"
)

// cacheKey identifies one embedding: the same text embeds differently per
// server and model.
type cacheKey struct {
	server string
	model  string
	text   string
}

type cached struct {
	key    cacheKey
	vector []float32
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// CachingEmbedder memoizes successful embeddings of another Embedder in a
// bounded least-recently-used cache. Failures are never cached.
type CachingEmbedder struct {
	next     Embedder
	capacity int

	mu      sync.Mutex
	entries map[cacheKey]*list.Element
	order   *list.List // front is most recently used
	hits    uint64
	misses  uint64
}

var _ Embedder = (*CachingEmbedder)(nil)

// NewCachingEmbedder wraps next with a cache of the given capacity. A capacity
// of zero or less disables caching and returns next unchanged.
func NewCachingEmbedder(next Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return next
	}
	return &CachingEmbedder{
		next:     next,
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// Embed returns the cached vector or delegates to the wrapped embedder.
func (e *CachingEmbedder) Embed(ctx context.Context, serverURL, text, model string) ([]float32, error) {
	key := cacheKey{server: serverURL, model: model, text: text}
	if v, ok := e.lookup(key); ok {
		return v, nil
	}
	v, err := e.next.Embed(ctx, serverURL, text, model)
	if err != nil {
		return nil, err
	}
	e.store(key, v)
	return v, nil
}

// Stats returns a snapshot of the cache counters.
func (e *CachingEmbedder) Stats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CacheStats{Entries: e.order.Len(), Hits: e.hits, Misses: e.misses}
}

func (e *CachingEmbedder) lookup(key cacheKey) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.entries[key]
	if !ok {
		e.misses++
		return nil, false
	}
	e.hits++
	e.order.MoveToFront(el)
	return el.Value.(*cached).vector, true
}

func (e *CachingEmbedder) store(key cacheKey, vector []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if el, ok := e.entries[key]; ok {
		el.Value.(*cached).vector = vector
		e.order.MoveToFront(el)
		return
	}
	e.entries[key] = e.order.PushFront(&cached{key: key, vector: vector})
	for e.order.Len() > e.capacity {
		last := e.order.Back()
		e.order.Remove(last)
		delete(e.entries, last.Value.(*cached).key)
	}
}
