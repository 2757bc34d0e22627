package index

import (
	"context"
	"strings"

	"github.com/scholia-dev/scholia/internal/chunk"
	scherr "github.com/scholia-dev/scholia/internal/errors"
	"github.com/scholia-dev/scholia/internal/store"
)

// chunkOverFetch is how many raw chunk results are fetched per
// requested document hit. Chunks from the same document collapse into
// a single hit, so the raw list must run deeper than topK.
const chunkOverFetch = 4

// Search embeds the query and returns the closest chunks, collapsed to
// at most one hit per parent document: overlapping chunks of a single
// note would otherwise crowd out every other source. topK <= 0 uses
// the configured retrieval default.
func (v *VectorIndex) Search(ctx context.Context, query string, topK int) ([]*ChunkHit, error) {
	if strings.TrimSpace(query) == "" {
		return []*ChunkHit{}, nil
	}
	if topK <= 0 {
		topK = v.cfg.Retrieval.TopK
	}

	results, err := v.searchChunks(ctx, query, topK*chunkOverFetch)
	if err != nil {
		return nil, err
	}
	return v.hydrate(ctx, results, topK, true)
}

// Query embeds the query, fetches the topK nearest chunks, and
// accumulates their text up to maxTotalChars. The chunk that would
// overflow the budget is truncated rather than dropped; chunks after
// it are cut entirely. maxTotalChars <= 0 means unbounded. Returns the
// accumulated text and the hits that contributed to it.
func (v *VectorIndex) Query(ctx context.Context, query string, topK, maxTotalChars int) (string, []*ChunkHit, error) {
	if strings.TrimSpace(query) == "" {
		return "", []*ChunkHit{}, nil
	}
	if topK <= 0 {
		topK = v.cfg.Retrieval.TopK
	}

	results, err := v.searchChunks(ctx, query, topK)
	if err != nil {
		return "", nil, err
	}
	hits, err := v.hydrate(ctx, results, topK, false)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	remaining := maxTotalChars
	kept := make([]*ChunkHit, 0, len(hits))
	for _, hit := range hits {
		if maxTotalChars > 0 {
			if remaining <= 0 {
				break
			}
			if runes := []rune(hit.Snippet); len(runes) > remaining {
				hit.Snippet = string(runes[:remaining])
			}
			remaining -= len([]rune(hit.Snippet))
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(hit.Snippet)
		kept = append(kept, hit)
	}
	return b.String(), kept, nil
}

// searchChunks runs the raw nearest-neighbor lookup against the live
// graph.
func (v *VectorIndex) searchChunks(ctx context.Context, query string, k int) ([]*store.VectorResult, error) {
	v.mu.RLock()
	graph := v.vectors
	ready := v.ready && !v.closed
	v.mu.RUnlock()

	if !ready || graph == nil {
		return nil, scherr.New(scherr.ErrCodeSearchFailed, "vector index is not available", nil)
	}

	qvec, err := v.queryEmbed.Embed(ctx, query)
	if err != nil {
		return nil, scherr.New(scherr.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	results, err := graph.Search(ctx, qvec, k)
	if err != nil {
		return nil, scherr.New(scherr.ErrCodeSearchFailed, "vector search failed", err)
	}
	return results, nil
}

// hydrate resolves raw vector results into chunk hits using the chunk
// table. When dedupe is set, only the best-scoring chunk per parent
// document survives. Chunks missing from the metadata store are
// skipped.
func (v *VectorIndex) hydrate(ctx context.Context, results []*store.VectorResult, topK int, dedupe bool) ([]*ChunkHit, error) {
	if len(results) == 0 {
		return []*ChunkHit{}, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	chunks, err := v.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, scherr.New(scherr.ErrCodeSearchFailed, "failed to hydrate chunks", err)
	}

	byID := make(map[string]*chunk.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	hits := make([]*ChunkHit, 0, topK)
	seen := make(map[string]struct{})
	for _, r := range results {
		c, ok := byID[r.ID]
		if !ok {
			continue
		}
		if dedupe {
			if _, dup := seen[c.DocID]; dup {
				continue
			}
			seen[c.DocID] = struct{}{}
		}
		hits = append(hits, &ChunkHit{
			ChunkID: c.ID,
			DocID:   c.DocID,
			Score:   float64(r.Score),
			Snippet: c.Content,
		})
		if len(hits) >= topK {
			break
		}
	}
	return hits, nil
}
