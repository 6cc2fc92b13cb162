package chromatest

import (
	"fmt"
	"sort"

	"github.com/hyperjump/pagestash/pkg/utils"
)

// index is a brute-force store of one collection's documents. Search ranks
// by squared L2 distance, the store's default space.
type index struct {
	dimensions int
	ids        []string
	documents  []string
	metadatas  []map[string]interface{}
	vectors    [][]float32
}

// Doc is a stored document as seen by tests.
type Doc struct {
	ID        string
	Document  string
	Metadata  map[string]interface{}
	Embedding []float32
}

// add appends documents; ids already present are ignored, as the store does.
func (x *index) add(ids, docs []string, metas []map[string]interface{}, vectors [][]float32) error {
	if len(ids) != len(vectors) || len(ids) != len(docs) || len(ids) != len(metas) {
		return fmt.Errorf("ids, documents, metadatas and embeddings length mismatch")
	}
	for i, id := range ids {
		if x.dimensions == 0 {
			x.dimensions = len(vectors[i])
		}
		if len(vectors[i]) != x.dimensions {
			return fmt.Errorf("embedding dimension %d does not match collection dimensionality %d", len(vectors[i]), x.dimensions)
		}
		if x.position(id) >= 0 {
			continue
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		x.ids = append(x.ids, id)
		x.documents = append(x.documents, docs[i])
		x.metadatas = append(x.metadatas, metas[i])
		x.vectors = append(x.vectors, vec)
	}
	return nil
}

func (x *index) position(id string) int {
	for i, have := range x.ids {
		if have == id {
			return i
		}
	}
	return -1
}

type scored struct {
	pos      int
	distance float64
}

// search returns up to k positions matching where, nearest first.
func (x *index) search(query []float32, k int, where map[string]interface{}) ([]scored, error) {
	if x.dimensions != 0 && len(query) != x.dimensions {
		return nil, fmt.Errorf("query embedding dimension %d does not match collection dimensionality %d", len(query), x.dimensions)
	}
	var out []scored
	for i, vec := range x.vectors {
		if !matches(x.metadatas[i], where) {
			continue
		}
		out = append(out, scored{pos: i, distance: utils.SquaredL2(query, vec)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].distance < out[j].distance })
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// remove deletes ids and returns how many were present.
func (x *index) remove(ids []string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	removed := 0
	keep := 0
	for i, id := range x.ids {
		if drop[id] {
			removed++
			continue
		}
		x.ids[keep] = x.ids[i]
		x.documents[keep] = x.documents[i]
		x.metadatas[keep] = x.metadatas[i]
		x.vectors[keep] = x.vectors[i]
		keep++
	}
	x.ids = x.ids[:keep]
	x.documents = x.documents[:keep]
	x.metadatas = x.metadatas[:keep]
	x.vectors = x.vectors[:keep]
	return removed
}

// matches supports top-level equality filters only.
func matches(meta, where map[string]interface{}) bool {
	for k, want := range where {
		if got, ok := meta[k]; !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
