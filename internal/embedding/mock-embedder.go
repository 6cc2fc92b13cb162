package embedding

import (
	"context"
	"math"
	"sync"

	"github.com/hyperjump/pagestash/pkg/utils"
)

// MockEmbedder stands in for Ollama in tests. Equal texts always map to the
// same unit vector. Vectors pins the result for chosen texts and a non-nil
// Err fails every call. Calls are recorded.
type MockEmbedder struct {
	dimensions int
	Vectors    map[string][]float32
	Err        error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records the arguments of one Embed call.
type MockCall struct {
	ServerURL string
	Text      string
	Model     string
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder returns a MockEmbedder producing vectors of the given size,
// 768 when dimensions is not positive.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed records the call and derives a vector from the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, serverURL, text, model string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{ServerURL: serverURL, Text: text, Model: model})
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}

	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h%100003)*float64(i+1))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Calls returns a copy of the recorded calls.
func (e *MockEmbedder) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]MockCall(nil), e.calls...)
}

// Dimensions is the length of generated vectors.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// HashString returns a non-negative polynomial hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
