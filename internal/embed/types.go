// Package embed provides the embedding provider chain used by the
// vector index. Providers form a closed set: a remote OpenAI-compatible
// API, a local Ollama server, a deterministic hash-based fallback, and
// an explicit unavailable variant. Selection happens once per process;
// a corpus indexed without embeddings stays keyword-only until restart.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// DefaultTimeout is the default timeout for embedding requests
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3
)

// Static embedder constants
const (
	// StaticDimensions is the embedding dimension for the static embedder
	StaticDimensions = 256
)

// Kind identifies an embedding provider variant.
type Kind string

const (
	// KindRemote uses an OpenAI-compatible embeddings API
	KindRemote Kind = "remote"

	// KindLocal uses a local Ollama server
	KindLocal Kind = "local"

	// KindStatic uses deterministic hash-based embeddings (opt-in only,
	// never auto-selected)
	KindStatic Kind = "static"

	// KindUnavailable is the degraded variant when no provider can run
	KindUnavailable Kind = "unavailable"
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	return string(k)
}

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one row per
	// input in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the provider is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
