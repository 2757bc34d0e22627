package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// mockProvider is a controllable Provider for chain and cache tests.
type mockProvider struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int

	dims      int
	name      string
	available bool
	batchErr  error
	failTexts map[string]bool
}

var _ Provider = (*mockProvider)(nil)

func newMockProvider() *mockProvider {
	return &mockProvider{dims: 4, name: "mock", available: true}
}

func (m *mockProvider) vectorFor(text string) []float32 {
	return normalizeVector([]float32{float32(len(text)), 1, 2, 3})
}

func (m *mockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	if m.failTexts[text] {
		return nil, fmt.Errorf("mock failure for %q", text)
	}
	return m.vectorFor(text), nil
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batchCalls++
	m.mu.Unlock()

	if m.batchErr != nil {
		return nil, m.batchErr
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if m.failTexts[text] {
			return nil, fmt.Errorf("mock batch failure for %q", text)
		}
		results[i] = m.vectorFor(text)
	}
	return results, nil
}

func (m *mockProvider) Dimensions() int { return m.dims }

func (m *mockProvider) ModelName() string { return m.name }

func (m *mockProvider) Available(_ context.Context) bool { return m.available }

func (m *mockProvider) Close() error { return nil }

func (m *mockProvider) calls() (embed, batch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls, m.batchCalls
}
