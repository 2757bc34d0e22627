package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/store"
)

func TestScoreFusion_WeightedSum(t *testing.T) {
	// Each list is normalized by its own max, scaled by its
	// weight, and documents in both lists sum the two contributions.
	fusion := NewScoreFusion(Weights{Vector: 0.6, Keyword: 0.4})

	vec := []*index.ChunkHit{
		{ChunkID: "a-0", DocID: "a", Score: 0.8, Snippet: "alpha chunk"},
		{ChunkID: "b-0", DocID: "b", Score: 0.4, Snippet: "beta chunk"},
	}
	kw := []*store.KeywordResult{
		{DocID: "b", Score: 0.5},
		{DocID: "c", Score: 0.25},
	}

	fused := fusion.Fuse(vec, kw)
	require.Len(t, fused, 3)

	// b: 0.6*(0.4/0.8) + 0.4*(0.5/0.5) = 0.7, hybrid
	assert.Equal(t, "b", fused[0].docID)
	assert.InDelta(t, 0.7, fused[0].score, 1e-9)
	assert.Equal(t, SourceHybrid, fused[0].source)
	assert.Equal(t, "beta chunk", fused[0].snippet)

	// a: 0.6*(0.8/0.8) = 0.6, vector only
	assert.Equal(t, "a", fused[1].docID)
	assert.InDelta(t, 0.6, fused[1].score, 1e-9)
	assert.Equal(t, SourceVector, fused[1].source)

	// c: 0.4*(0.25/0.5) = 0.2, keyword only
	assert.Equal(t, "c", fused[2].docID)
	assert.InDelta(t, 0.2, fused[2].score, 1e-9)
	assert.Equal(t, SourceKeyword, fused[2].source)
	assert.Empty(t, fused[2].snippet)
}

func TestScoreFusion_EmptyInputs(t *testing.T) {
	// Two empty lists fuse to an empty, non-nil slice.
	fusion := NewScoreFusion(DefaultWeights())

	fused := fusion.Fuse(nil, nil)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestScoreFusion_ZeroMaxGuard(t *testing.T) {
	// An all-zero list normalizes by 1.0 instead of dividing
	// by zero, so fused scores stay finite.
	fusion := NewScoreFusion(Weights{Vector: 0.6, Keyword: 0.4})

	kw := []*store.KeywordResult{
		{DocID: "a", Score: 0},
		{DocID: "b", Score: 0},
	}

	fused := fusion.Fuse(nil, kw)
	require.Len(t, fused, 2)
	for _, h := range fused {
		assert.Equal(t, 0.0, h.score)
		assert.Equal(t, SourceKeyword, h.source)
	}
	// Ties keep first-seen order.
	assert.Equal(t, "a", fused[0].docID)
	assert.Equal(t, "b", fused[1].docID)
}

func TestScoreFusion_TieBreaksByFirstSeen(t *testing.T) {
	// Equal fused scores rank the vector-list document first
	// because the vector list is processed first.
	fusion := NewScoreFusion(Weights{Vector: 0.5, Keyword: 0.5})

	vec := []*index.ChunkHit{{ChunkID: "v-0", DocID: "vecdoc", Score: 0.9}}
	kw := []*store.KeywordResult{{DocID: "kwdoc", Score: 0.3}}

	fused := fusion.Fuse(vec, kw)
	require.Len(t, fused, 2)
	assert.InDelta(t, fused[0].score, fused[1].score, 1e-9)
	assert.Equal(t, "vecdoc", fused[0].docID)
	assert.Equal(t, "kwdoc", fused[1].docID)
}

func TestScoreFusion_SingleListPassthrough(t *testing.T) {
	// With one branch empty the other's ranking survives,
	// scaled by its weight.
	fusion := NewScoreFusion(Weights{Vector: 0.6, Keyword: 0.4})

	vec := []*index.ChunkHit{
		{ChunkID: "a-0", DocID: "a", Score: 1.0},
		{ChunkID: "b-0", DocID: "b", Score: 0.5},
	}

	fused := fusion.Fuse(vec, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].docID)
	assert.InDelta(t, 0.6, fused[0].score, 1e-9)
	assert.Equal(t, "b", fused[1].docID)
	assert.InDelta(t, 0.3, fused[1].score, 1e-9)
}

func TestNewScoreFusion_DefaultsOnInvalidWeights(t *testing.T) {
	// Non-positive weights fall back to the defaults instead
	// of silencing both branches.
	fusion := NewScoreFusion(Weights{})
	assert.Equal(t, DefaultWeights(), fusion.weights)
}

func BenchmarkScoreFusion_Fuse(b *testing.B) {
	// 200 vector hits and 200 keyword hits with half the documents
	// overlapping, roughly what a broad query produces.
	fusion := NewScoreFusion(DefaultWeights())

	vec := make([]*index.ChunkHit, 200)
	for i := range vec {
		vec[i] = &index.ChunkHit{
			ChunkID: fmt.Sprintf("doc-%d-0", i),
			DocID:   fmt.Sprintf("doc-%d", i),
			Score:   1.0 - float64(i)/200,
		}
	}
	kw := make([]*store.KeywordResult, 200)
	for i := range kw {
		kw[i] = &store.KeywordResult{
			DocID: fmt.Sprintf("doc-%d", i+100),
			Score: 20.0 - float64(i)/10,
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fusion.Fuse(vec, kw)
	}
}
