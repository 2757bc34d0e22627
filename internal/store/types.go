// Package store holds the persistence primitives behind the knowledge
// engine: an HNSW vector store for chunk embeddings, an in-memory
// inverted index for lexical search, and a SQLite store for documents,
// chunks, and cached embeddings.
package store

import (
	"context"

	"github.com/scholia-dev/scholia/internal/chunk"
	"github.com/scholia-dev/scholia/internal/corpus"
)

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// KeywordResult is a single lexical search hit.
type KeywordResult struct {
	DocID string
	Score float64
}

// IndexStats summarizes the keyword index contents.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension (1536 for the default remote
	// model, 768 for nomic-embed-text, 256 for the static fallback).
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for a given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   32,
	}
}

// VectorStore provides nearest-neighbor search over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Contains reports whether an ID is indexed.
	Contains(id string) bool

	// Count returns the number of live vectors.
	Count() int

	// Dimensions returns the configured embedding dimension.
	Dimensions() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordIndex provides lexical search over whole documents.
type KeywordIndex interface {
	// Add indexes a document, replacing any previous version under the
	// same ID.
	Add(id, content string, metadata map[string]string)

	// Remove drops a document. Reports whether it was present.
	Remove(id string) bool

	// Search returns up to limit documents ranked by summed query-token
	// term frequency normalized by document length. Ties keep insertion
	// order.
	Search(query string, limit int) []*KeywordResult

	// Get returns the stored content and metadata for a document.
	Get(id string) (content string, metadata map[string]string, ok bool)

	// DocumentIDs returns all indexed IDs in insertion order.
	DocumentIDs() []string

	// Count returns the number of indexed documents.
	Count() int

	// Stats returns index statistics.
	Stats() *IndexStats
}

// MetadataStore persists documents, chunks, and cached embeddings.
type MetadataStore interface {
	// Document operations. GetDocument returns (nil, nil) when the ID is
	// not stored.
	SaveDocuments(ctx context.Context, docs []*corpus.Document) error
	GetDocument(ctx context.Context, id string) (*corpus.Document, error)
	AllDocuments(ctx context.Context) ([]*corpus.Document, error)
	DeleteDocuments(ctx context.Context, ids []string) error
	CountDocuments(ctx context.Context) (int, error)

	// Chunk operations. GetChunks preserves the requested ID order and
	// silently skips unknown IDs.
	SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error
	ReplaceAllChunks(ctx context.Context, chunks []*chunk.Chunk) error
	GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error)
	ChunkIDsByDocument(ctx context.Context, docID string) ([]string, error)
	DeleteChunksByDocument(ctx context.Context, docID string) error
	CountChunks(ctx context.Context) (int, error)

	// Embedding cache operations. Keys are opaque; the caller namespaces
	// them before they arrive here.
	GetEmbedding(ctx context.Context, key, model string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, key, model string, vector []float32) error

	// Lifecycle
	Close() error
}
