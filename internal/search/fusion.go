package search

import (
	"sort"

	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/store"
)

// fusedHit holds intermediate fusion state for one document.
type fusedHit struct {
	docID    string
	score    float64 // weighted sum of normalized branch scores
	vecScore float64 // original vector score (best chunk)
	kwScore  float64 // original keyword score
	snippet  string  // best vector chunk content, empty when keyword-only
	source   string
	order    int // first-seen position, vector list before keyword list
}

// ScoreFusion merges a vector and a keyword result list into one ranked
// list.
//
// Each list is normalized by its own maximum score so the two scales
// become comparable, then scaled by the configured weight:
//
//	fused(d) = Vector*vec(d)/max(vec) + Keyword*kw(d)/max(kw)
//
// A document present in both lists sums both contributions and is
// tagged "hybrid"; a document in one list keeps its single weighted
// score and the matching tag.
type ScoreFusion struct {
	weights Weights
}

// NewScoreFusion creates a fusion instance. Non-positive weights fall
// back to the defaults.
func NewScoreFusion(weights Weights) *ScoreFusion {
	if weights.Vector <= 0 && weights.Keyword <= 0 {
		weights = DefaultWeights()
	}
	return &ScoreFusion{weights: weights}
}

// Fuse combines the two branch lists. Results are sorted by fused score
// descending; equal scores keep first-seen order, with the vector list
// processed first.
func (f *ScoreFusion) Fuse(vec []*index.ChunkHit, kw []*store.KeywordResult) []*fusedHit {
	if len(vec) == 0 && len(kw) == 0 {
		return []*fusedHit{}
	}

	vecMax := maxVectorScore(vec)
	kwMax := maxKeywordScore(kw)

	byID := make(map[string]*fusedHit, len(vec)+len(kw))
	fused := make([]*fusedHit, 0, len(vec)+len(kw))

	for _, r := range vec {
		h, ok := byID[r.DocID]
		if !ok {
			h = &fusedHit{docID: r.DocID, order: len(fused)}
			byID[r.DocID] = h
			fused = append(fused, h)
		}
		h.vecScore = r.Score
		h.snippet = r.Snippet
		h.source = SourceVector
		h.score += f.weights.Vector * (r.Score / vecMax)
	}

	for _, r := range kw {
		h, ok := byID[r.DocID]
		if !ok {
			h = &fusedHit{docID: r.DocID, order: len(fused)}
			byID[r.DocID] = h
			fused = append(fused, h)
		}
		h.kwScore = r.Score
		if h.source == SourceVector {
			h.source = SourceHybrid
		} else {
			h.source = SourceKeyword
		}
		h.score += f.weights.Keyword * (r.Score / kwMax)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].order < fused[j].order
	})

	return fused
}

// maxVectorScore returns the normalization reference for the vector
// list. An empty list or a non-positive maximum normalizes as 1.0 so
// scores pass through unscaled instead of dividing by zero.
func maxVectorScore(hits []*index.ChunkHit) float64 {
	best := 0.0
	for _, r := range hits {
		if r.Score > best {
			best = r.Score
		}
	}
	if best <= 0 {
		return 1.0
	}
	return best
}

func maxKeywordScore(results []*store.KeywordResult) float64 {
	best := 0.0
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	if best <= 0 {
		return 1.0
	}
	return best
}
