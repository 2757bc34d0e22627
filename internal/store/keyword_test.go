package store

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ranking by normalized term overlap
func TestMemoryKeywordIndex_RanksByNormalizedOverlap(t *testing.T) {
	// Given: two statistics notes
	idx := NewMemoryKeywordIndex()
	idx.Add("ttest.md", "Use a two-sample t-test to compare means of two groups", nil)
	idx.Add("anova.md", "ANOVA compares means across three or more groups", nil)

	// When: searching for "compare two groups"
	results := idx.Search("compare two groups", 10)

	// Then: the t-test note ranks first, matching 4 of its 12 tokens
	require.Len(t, results, 2)
	assert.Equal(t, "ttest.md", results[0].DocID)
	assert.InDelta(t, 4.0/12.0, results[0].Score, 1e-9)

	// And: the ANOVA note only matches "groups", 1 of its 8 tokens
	assert.Equal(t, "anova.md", results[1].DocID)
	assert.InDelta(t, 1.0/8.0, results[1].Score, 1e-9)
}

// Top-1 returns only the best match
func TestMemoryKeywordIndex_TopOne(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("ttest.md", "Use a two-sample t-test to compare means of two groups", nil)
	idx.Add("anova.md", "ANOVA compares means across three or more groups", nil)

	results := idx.Search("compare two groups", 1)

	require.Len(t, results, 1)
	assert.Equal(t, "ttest.md", results[0].DocID)
}

// Repeated query tokens weigh once per occurrence
func TestMemoryKeywordIndex_DuplicateQueryTokens(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("ttest.md", "Use a two-sample t-test to compare means of two groups", nil)

	single := idx.Search("two", 1)
	double := idx.Search("two two", 1)

	require.Len(t, single, 1)
	require.Len(t, double, 1)
	assert.InDelta(t, 2*single[0].Score, double[0].Score, 1e-9)
}

// Equal scores keep insertion order, including across updates
func TestMemoryKeywordIndex_TiesKeepInsertionOrder(t *testing.T) {
	// Given: two documents with identical content, "b.md" added first
	idx := NewMemoryKeywordIndex()
	idx.Add("b.md", "hypothesis testing notes", nil)
	idx.Add("a.md", "hypothesis testing notes", nil)

	// Then: "b.md" ranks first despite sorting after "a.md" by name
	results := idx.Search("hypothesis", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "b.md", results[0].DocID)
	assert.Equal(t, "a.md", results[1].DocID)

	// When: "b.md" is re-indexed with the same content
	idx.Add("b.md", "hypothesis testing notes", nil)

	// Then: it keeps its original insertion slot
	results = idx.Search("hypothesis", 10)
	require.Len(t, results, 2)
	assert.Equal(t, "b.md", results[0].DocID)
}

// Removal drops the document everywhere
func TestMemoryKeywordIndex_Remove(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("keep.md", "bayesian inference", nil)
	idx.Add("drop.md", "bayesian networks", nil)

	require.True(t, idx.Remove("drop.md"))

	results := idx.Search("bayesian", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "keep.md", results[0].DocID)

	_, _, ok := idx.Get("drop.md")
	assert.False(t, ok)
	assert.Equal(t, 1, idx.Count())

	// Removing again reports absence
	assert.False(t, idx.Remove("drop.md"))
}

// Re-adding an ID replaces its content and postings
func TestMemoryKeywordIndex_UpdateReplacesContent(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("notes.md", "bayesian inference", nil)
	idx.Add("notes.md", "frequentist inference", nil)

	assert.Empty(t, idx.Search("bayesian", 10))

	results := idx.Search("frequentist", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "notes.md", results[0].DocID)

	// Stale postings are cleaned up, not just shadowed
	assert.Equal(t, 1, idx.Count())
	content, _, ok := idx.Get("notes.md")
	require.True(t, ok)
	assert.Equal(t, "frequentist inference", content)
}

// CJK queries match per-character tokens
func TestMemoryKeywordIndex_CJKSearch(t *testing.T) {
	// Given: a Japanese note of ten CJK characters
	idx := NewMemoryKeywordIndex()
	idx.Add("kentei.md", "統計的仮説検定の手順", nil)
	idx.Add("other.md", "regression diagnostics", nil)

	// When: searching for 検定
	results := idx.Search("検定", 10)

	// Then: both characters match, 2 of 10 tokens
	require.Len(t, results, 1)
	assert.Equal(t, "kentei.md", results[0].DocID)
	assert.InDelta(t, 0.2, results[0].Score, 1e-9)
}

// Length normalization favors focused documents
func TestMemoryKeywordIndex_LengthNormalization(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("long.md", "regression "+strings.Repeat("filler ", 9), nil)
	idx.Add("short.md", "regression", nil)

	results := idx.Search("regression", 10)

	require.Len(t, results, 2)
	assert.Equal(t, "short.md", results[0].DocID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.1, results[1].Score, 1e-9)
}

// Degenerate queries return empty non-nil results
func TestMemoryKeywordIndex_EmptyQueries(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("doc.md", "some content", nil)

	assert.Empty(t, idx.Search("", 10))
	assert.Empty(t, idx.Search("   ", 10))
	assert.Empty(t, idx.Search("nomatchanywhere", 10))
	assert.Empty(t, idx.Search("content", 0))
	assert.NotNil(t, idx.Search("", 10))
}

// Stored metadata comes back with Get
func TestMemoryKeywordIndex_GetMetadata(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("anova.md", "ANOVA compares means", map[string]string{"domain": "statistics"})

	content, metadata, ok := idx.Get("anova.md")

	require.True(t, ok)
	assert.Equal(t, "ANOVA compares means", content)
	assert.Equal(t, "statistics", metadata["domain"])
}

// Stats and ID listing
func TestMemoryKeywordIndex_Stats(t *testing.T) {
	idx := NewMemoryKeywordIndex()
	idx.Add("first.md", "alpha beta", nil)
	idx.Add("second.md", "alpha beta gamma delta", nil)

	stats := idx.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 4, stats.TermCount)
	assert.InDelta(t, 3.0, stats.AvgDocLength, 1e-9)

	assert.Equal(t, []string{"first.md", "second.md"}, idx.DocumentIDs())
}

func BenchmarkMemoryKeywordIndex_Search(b *testing.B) {
	idx := NewMemoryKeywordIndex()
	terms := []string{
		"regression", "variance", "sample", "estimate", "interval",
		"braising", "emulsion", "fermentation", "gradient", "descent",
	}
	for i := 0; i < 500; i++ {
		var doc strings.Builder
		for j := 0; j < 80; j++ {
			doc.WriteString(terms[(i+j)%len(terms)])
			doc.WriteByte(' ')
		}
		idx.Add(fmt.Sprintf("doc-%d.md", i), doc.String(), nil)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Search("regression variance estimate", 10)
	}
}
