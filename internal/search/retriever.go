package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/store"
)

// overFetchFactor widens both branch queries beyond topK so fusion has
// enough candidates to reorder before the final cut.
const overFetchFactor = 2

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// VectorSearcher is the slice of the vector index hybrid retrieval
// needs. It is unavailable when no embedding provider could be
// selected, and its errors degrade a search to keyword-only instead of
// failing it.
type VectorSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]*index.ChunkHit, error)
	Available() bool
}

// Retriever fans a query out to the vector and keyword indexes in
// parallel and fuses the two ranked lists.
type Retriever struct {
	cfg     *config.Config
	vector  VectorSearcher
	keyword store.KeywordIndex
	fusion  *ScoreFusion
}

var _ Searcher = (*Retriever)(nil)

// NewRetriever creates a hybrid retriever. Fusion weights and the
// default topK come from the retrieval section of the config.
func NewRetriever(cfg *config.Config, vector VectorSearcher, keyword store.KeywordIndex) (*Retriever, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector searcher", ErrNilDependency)
	}
	if keyword == nil {
		return nil, fmt.Errorf("%w: keyword index", ErrNilDependency)
	}

	weights := Weights{
		Vector:  cfg.Retrieval.VectorWeight,
		Keyword: cfg.Retrieval.KeywordWeight,
	}

	return &Retriever{
		cfg:     cfg,
		vector:  vector,
		keyword: keyword,
		fusion:  NewScoreFusion(weights),
	}, nil
}

// Search runs both branches, fuses their results, and hydrates the top
// topK documents. A non-empty domain boosts matching hits before the
// cut. The vector branch failing or being unavailable degrades the
// search to keyword-only; zero hits from both branches is a valid
// outcome, not an error.
func (r *Retriever) Search(ctx context.Context, query string, topK int, domain string) (*Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if topK <= 0 {
		topK = r.cfg.Retrieval.TopK
	}
	if query == "" {
		return &Result{Query: query, Hits: []*Hit{}, Method: MethodKeyword, Elapsed: time.Since(start)}, nil
	}

	vecHits, kwResults, vectorOK, err := r.parallelSearch(ctx, query, topK*overFetchFactor)
	if err != nil {
		return nil, err
	}

	fused := r.fusion.Fuse(vecHits, kwResults)
	hits := r.hydrate(fused)
	if domain != "" {
		hits = BoostByDomains(hits, []string{domain})
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	method := MethodKeyword
	if vectorOK {
		method = MethodHybrid
	}

	result := &Result{
		Query:   query,
		Hits:    hits,
		Count:   len(hits),
		Method:  method,
		Elapsed: time.Since(start),
	}

	slog.Debug("search_complete",
		slog.String("query", query),
		slog.String("method", method),
		slog.Int("hits", result.Count),
		slog.Duration("elapsed", result.Elapsed))

	return result, nil
}

// parallelSearch executes both branches concurrently. The vector
// branch's error is captured, logged, and reported through vectorOK
// rather than failing the search; only context cancellation aborts.
func (r *Retriever) parallelSearch(ctx context.Context, query string, limit int) (
	vecHits []*index.ChunkHit,
	kwResults []*store.KeywordResult,
	vectorOK bool,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var vecErr error
	vectorAvailable := r.vector.Available()

	g.Go(func() error {
		if !vectorAvailable {
			return nil
		}
		hits, searchErr := r.vector.Search(gctx, query, limit)
		if searchErr != nil {
			vecErr = searchErr
			// Degrade to keyword-only instead of failing the group.
			return nil
		}
		vecHits = hits
		return nil
	})

	g.Go(func() error {
		kwResults = r.keyword.Search(query, limit)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, false, waitErr
	}

	if vecErr != nil {
		slog.Warn("vector_search_degraded",
			slog.String("query", query),
			slog.Any("error", vecErr))
	}

	return vecHits, kwResults, vectorAvailable && vecErr == nil, nil
}

// hydrate turns fused entries into full hits. The vector snippet is
// preferred as content; documents the vector branch never saw fall back
// to the stored document content. Title and domain metadata come from
// the keyword index.
func (r *Retriever) hydrate(fused []*fusedHit) []*Hit {
	hits := make([]*Hit, 0, len(fused))
	for _, f := range fused {
		hit := &Hit{
			DocID:   f.docID,
			Content: f.snippet,
			Score:   f.score,
			Source:  f.source,
		}

		if content, meta, ok := r.keyword.Get(f.docID); ok {
			if hit.Content == "" {
				hit.Content = content
			}
			hit.Title = meta[MetaTitle]
			hit.Metadata = meta
		}

		if hit.Title == "" {
			hit.Title = f.docID
		}
		if hit.Metadata == nil {
			hit.Metadata = map[string]string{}
		}

		hits = append(hits, hit)
	}
	return hits
}
