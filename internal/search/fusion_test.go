package search

import (
	"math"
	"testing"

	"github.com/hyperjump/pagestash/internal/models"
	"github.com/hyperjump/pagestash/internal/vectorstore"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 0.05 }

func hitsAt(distances ...float64) []*models.SearchHit {
	hits := make([]*models.SearchHit, len(distances))
	for i, d := range distances {
		hits[i] = &models.SearchHit{ID: string(rune('a' + i)), Distance: d}
	}
	return hits
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		distances []float64
		floor     float64
		want      []float64
	}{
		{"floor one", []float64{0.1, 0.5, 0.9}, 1, []float64{90, 50, 10}},
		{"batch max", []float64{0.1, 0.5, 0.9}, 0, []float64{88.9, 44.4, 0}},
		{"above floor", []float64{0.5, 2}, 1, []float64{75, 0}},
		{"all exact", []float64{0, 0}, 0, []float64{100, 100}},
		{"zero distance", []float64{0, 1}, 1, []float64{100, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := hitsAt(tt.distances...)
			Normalize(hits, tt.floor)
			for i, h := range hits {
				if !approx(h.Similarity, tt.want[i]) {
					t.Errorf("hit %d: similarity = %.2f, want %.1f", i, h.Similarity, tt.want[i])
				}
			}
		})
	}
}

func TestRank(t *testing.T) {
	hits := hitsAt(0.9, 0.1, 0.5, 0.1)
	ranked := Rank(hits, 1, 3)
	if len(ranked) != 3 {
		t.Fatalf("len = %d", len(ranked))
	}
	want := []string{"b", "d", "c"}
	for i, h := range ranked {
		if h.ID != want[i] || h.Rank != i+1 {
			t.Errorf("position %d: %s rank %d, want %s", i, h.ID, h.Rank, want[i])
		}
	}
	// The truncated hit still took part in normalization.
	if !approx(hits[0].Similarity, 10) {
		t.Errorf("dropped hit similarity = %.2f", hits[0].Similarity)
	}
}

func TestRank_empty(t *testing.T) {
	if got := Rank(nil, 1, 10); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestFlatten(t *testing.T) {
	res := &vectorstore.QueryResult{
		IDs:       [][]string{{"x", "y"}},
		Documents: [][]string{{"doc x", "doc y"}},
		Metadatas: [][]map[string]interface{}{{{"title": "X"}, nil}},
		Distances: [][]float64{{0.2}},
	}
	hits := Flatten("notes", res)
	if len(hits) != 2 {
		t.Fatalf("len = %d", len(hits))
	}
	if hits[0].Collection != "notes" || hits[0].Document != "doc x" || hits[0].Title() != "X" || hits[0].Distance != 0.2 {
		t.Errorf("hit 0 = %+v", hits[0])
	}
	if hits[1].Metadata == nil || len(hits[1].Metadata) != 0 {
		t.Errorf("missing metadata should be empty map, got %v", hits[1].Metadata)
	}
	if hits[1].Distance != 0 {
		t.Errorf("missing distance should be 0, got %v", hits[1].Distance)
	}
	if Flatten("notes", &vectorstore.QueryResult{}) != nil {
		t.Error("empty result should flatten to nil")
	}
}
