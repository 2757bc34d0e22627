// Package search provides hybrid retrieval combining semantic vector
// search with lexical keyword search. The two ranked lists are fused by
// weighted max-normalized score summation into one deterministic list.
package search

import (
	"context"
	"time"
)

// Source labels describe which branch produced a hit.
const (
	SourceHybrid  = "hybrid"
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// Method labels describe how a whole search executed.
const (
	MethodHybrid  = "hybrid"
	MethodKeyword = "keyword"
)

// Well-known metadata keys attached to indexed documents. Tags are
// stored as a single comma-joined value.
const (
	MetaTitle  = "title"
	MetaDomain = "domain"
	MetaTags   = "tags"
	MetaPath   = "path"
)

// Searcher is the retrieval surface consumers depend on.
type Searcher interface {
	// Search executes a hybrid query and returns ranked, hydrated hits.
	Search(ctx context.Context, query string, topK int, domain string) (*Result, error)
}

// Weights configures the relative importance of the two branches.
type Weights struct {
	// Vector is the weight for semantic search (default: 0.6).
	Vector float64

	// Keyword is the weight for lexical search (default: 0.4).
	Keyword float64
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Vector:  0.6,
		Keyword: 0.4,
	}
}

// Hit is a single retrieved document after fusion and hydration.
type Hit struct {
	// DocID identifies the parent document.
	DocID string

	// Title is the document title, falling back to the id.
	Title string

	// Content is the text used downstream: the best-matching chunk when
	// the vector branch saw the document, the stored document content
	// otherwise.
	Content string

	// Score is the fused, weighted score.
	Score float64

	// Source is "hybrid", "vector", or "keyword" depending on which
	// branches ranked the document.
	Source string

	// Metadata carries document metadata such as domain and tags.
	Metadata map[string]string
}

// Result is the outcome of one retrieval.
type Result struct {
	// Query is the trimmed query text.
	Query string

	// Hits are the ranked results, best first.
	Hits []*Hit

	// Count is len(Hits), kept explicit for serialization.
	Count int

	// Method is "hybrid" when the vector branch participated and
	// "keyword" when retrieval fell back to lexical search only.
	Method string

	// Elapsed is the wall-clock retrieval time.
	Elapsed time.Duration
}
