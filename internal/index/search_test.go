package index

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/embed"
	scherr "github.com/scholia-dev/scholia/internal/errors"
)

func TestVectorIndex_SearchDedupesByDocument(t *testing.T) {
	// Multiple chunks of the same document collapse into a
	// single hit carrying the best-scoring chunk.
	corpusDir := t.TempDir()

	// Content with period 800 makes consecutive 1000-rune windows
	// (step 800) byte-identical, so the same document lands twice at
	// the top of the raw chunk results.
	period := strings.Repeat("ab", 400)
	writeNote(t, corpusDir, "periodic.md", period+period+period)
	writeNote(t, corpusDir, "other.md", "A different note about topology")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	ready, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
	require.Greater(t, idx.Count(), 3)

	query := strings.Repeat("ab", 500)
	hits, err := idx.Search(context.Background(), query, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "periodic.md", hits[0].DocID)
	assert.Equal(t, "other.md", hits[1].DocID)
	assert.Greater(t, hits[0].Score, 0.99)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorIndex_SearchHitFields(t *testing.T) {
	// A hit carries the chunk id, the parent document id,
	// the similarity score, and the chunk content as snippet.
	corpusDir := t.TempDir()
	content := "Permutation tests shuffle labels to build a null distribution"
	writeNote(t, corpusDir, "permutation.md", content)

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	hits, err := idx.Search(context.Background(), content, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hit := hits[0]
	assert.NotEmpty(t, hit.ChunkID)
	assert.Equal(t, "permutation.md", hit.DocID)
	assert.Equal(t, content, hit.Snippet)
	assert.Greater(t, hit.Score, 0.99)
	assert.LessOrEqual(t, hit.Score, 1.0)
}

func TestVectorIndex_SearchDeterministic(t *testing.T) {
	// The same query returns identical results on repeat
	// runs against an unchanged index.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "a.md", "Cross validation estimates out-of-sample error")
	writeNote(t, corpusDir, "b.md", "Regularization shrinks coefficients toward zero")
	writeNote(t, corpusDir, "c.md", "Feature scaling changes gradient descent behavior")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	first, err := idx.Search(context.Background(), "estimating model error", 3)
	require.NoError(t, err)
	second, err := idx.Search(context.Background(), "estimating model error", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestVectorIndex_SearchEmptyQuery(t *testing.T) {
	// A blank query is answered with no hits and no error,
	// even before the index is built.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "notes.md", "Some indexed content")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())

	hits, err := idx.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	text, hits, err := idx.Query(context.Background(), "", 5, 1000)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, hits)
}

func TestVectorIndex_SearchUnavailable(t *testing.T) {
	// Searching an index that never became ready fails with
	// a typed search error the caller can map to degraded mode.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "notes.md", "Content that never gets embedded")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewUnavailableProvider())
	ready, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)
	require.False(t, ready)

	_, err = idx.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Equal(t, scherr.ErrCodeSearchFailed, scherr.GetCode(err))

	_, _, err = idx.Query(context.Background(), "anything", 5, 1000)
	require.Error(t, err)
	assert.Equal(t, scherr.ErrCodeSearchFailed, scherr.GetCode(err))
}

func TestVectorIndex_QueryTruncatesOverflowingChunk(t *testing.T) {
	// The chunk that overflows the character budget is
	// truncated, not dropped, and later chunks are cut.
	corpusDir := t.TempDir()
	content := strings.Repeat("a", 100) + strings.Repeat("b", 100) + strings.Repeat("c", 100)
	writeNote(t, corpusDir, "notes.md", content)

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder(), func(cfg *config.Config) {
		cfg.Index.ChunkSize = 100
		cfg.Index.ChunkOverlap = 0
	})
	ready, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, 3, idx.Count())

	query := strings.Repeat("a", 100)
	text, hits, err := idx.Query(context.Background(), query, 3, 150)
	require.NoError(t, err)

	// First chunk fits whole, second is cut at the 150-rune budget,
	// third is dropped because nothing remains.
	require.Len(t, hits, 2)
	assert.Equal(t, 100, utf8.RuneCountInString(hits[0].Snippet))
	assert.Equal(t, 50, utf8.RuneCountInString(hits[1].Snippet))
	assert.Equal(t, query, hits[0].Snippet)

	joined := hits[0].Snippet + "\n\n" + hits[1].Snippet
	assert.Equal(t, joined, text)
}

func TestVectorIndex_QueryLargeBudgetKeepsEverything(t *testing.T) {
	// A budget larger than the total content leaves every
	// snippet untouched.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "one.md", "Short note on stratified sampling")
	writeNote(t, corpusDir, "two.md", "Short note on cluster sampling")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	text, hits, err := idx.Query(context.Background(), "sampling strategies", 5, 100000)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Contains(t, text, "stratified sampling")
	assert.Contains(t, text, "cluster sampling")
	for _, hit := range hits {
		assert.NotContains(t, hit.Snippet, "\x00")
		assert.NotEmpty(t, hit.Snippet)
	}
	assert.Equal(t, 1, strings.Count(text, "\n\n"))
}

func TestVectorIndex_QueryZeroBudgetDisablesTrimming(t *testing.T) {
	// A maxTotalChars of zero or less means unlimited.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "notes.md", "Budgetless retrieval keeps the full chunk text")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	text, hits, err := idx.Query(context.Background(), "retrieval", 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Budgetless retrieval keeps the full chunk text", hits[0].Snippet)
	assert.Equal(t, hits[0].Snippet, text)
}
