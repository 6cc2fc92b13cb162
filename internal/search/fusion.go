package search

import (
	"sort"

	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/vectorstore"
)

// Flatten turns the first row of a query result into hits tagged with
// collection. Missing metadata becomes an empty map and a missing distance 0.
func Flatten(collection string, result *vectorstore.QueryResult) []*models.SearchHit {
	if result == nil || len(result.IDs) == 0 {
		return nil
	}
	ids := result.IDs[0]
	hits := make([]*models.SearchHit, 0, len(ids))
	for i, id := range ids {
		hit := &models.SearchHit{Collection: collection, ID: id}
		if len(result.Documents) > 0 && i < len(result.Documents[0]) {
			hit.Document = result.Documents[0][i]
		}
		if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
			hit.Metadata = result.Metadatas[0][i]
		}
		if hit.Metadata == nil {
			hit.Metadata = map[string]interface{}{}
		}
		if len(result.Distances) > 0 && i < len(result.Distances[0]) {
			hit.Distance = result.Distances[0][i]
		}
		hits = append(hits, hit)
	}
	return hits
}

// Normalize sets each hit's similarity percentage relative to the batch:
// max(0, (1 - distance/maxDistance) * 100) with maxDistance never below floor.
// When every distance and the floor are 0 all hits are exact matches.
func Normalize(hits []*models.SearchHit, floor float64) {
	maxDistance := floor
	for _, h := range hits {
		if h.Distance > maxDistance {
			maxDistance = h.Distance
		}
	}
	for _, h := range hits {
		if maxDistance <= 0 {
			h.Similarity = 100
			continue
		}
		sim := (1 - h.Distance/maxDistance) * 100
		if sim < 0 {
			sim = 0
		}
		h.Similarity = sim
	}
}

// Rank normalizes hits over the whole batch, orders them by ascending
// distance (ties keep discovery order), keeps the first topK and numbers them
// from 1.
func Rank(hits []*models.SearchHit, floor float64, topK int) []*models.SearchHit {
	Normalize(hits, floor)
	ranked := make([]*models.SearchHit, len(hits))
	copy(ranked, hits)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Distance < ranked[j].Distance })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	for i, h := range ranked {
		h.Rank = i + 1
	}
	return ranked
}
