package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_Split_ShortContentSingleChunk(t *testing.T) {
	splitter := NewSplitter()

	chunks := splitter.Split("doc1", "A short note about effect sizes.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "A short note about effect sizes.", chunks[0].Content)
	assert.Equal(t, "doc1", chunks[0].DocID)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, 0, chunks[0].Start)
}

func TestSplitter_Split_EmptyContentNoChunks(t *testing.T) {
	splitter := NewSplitter()

	assert.Nil(t, splitter.Split("doc1", ""))
	assert.Nil(t, splitter.Split("doc1", "   \n\t  "))
}

func TestSplitter_Split_OverlappingWindows(t *testing.T) {
	splitter := NewSplitterWithOptions(SplitterOptions{ChunkSize: 10, ChunkOverlap: 4})

	// 26 characters, step 6: windows at 0, 6, 12, 18, 24
	content := "abcdefghijklmnopqrstuvwxyz"
	chunks := splitter.Split("doc1", content)

	require.Len(t, chunks, 5)
	assert.Equal(t, "abcdefghij", chunks[0].Content)
	assert.Equal(t, "ghijklmnop", chunks[1].Content)
	assert.Equal(t, "mnopqrstuv", chunks[2].Content)
	assert.Equal(t, "stuvwxyz", chunks[3].Content)
	assert.Equal(t, "yz", chunks[4].Content)

	// Adjacent chunks share the configured overlap
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		tail := prev[len(prev)-4:]
		assert.True(t, strings.HasPrefix(chunks[i].Content, tail) || len(chunks[i].Content) < 4,
			"chunk %d should begin with the previous chunk's tail", i)
	}
}

func TestSplitter_Split_SequencesAreOrdered(t *testing.T) {
	splitter := NewSplitterWithOptions(SplitterOptions{ChunkSize: 50, ChunkOverlap: 10})

	content := strings.Repeat("statistical power analysis ", 40)
	chunks := splitter.Split("doc1", content)

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		if i > 0 {
			assert.Greater(t, c.Start, chunks[i-1].Start)
		}
	}
}

func TestSplitter_Split_MultibyteRunesNotSplit(t *testing.T) {
	splitter := NewSplitterWithOptions(SplitterOptions{ChunkSize: 4, ChunkOverlap: 1})

	content := "統計的仮説検定の手順"
	chunks := splitter.Split("doc1", content)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		// Every chunk must round-trip through runes without replacement chars
		assert.NotContains(t, c.Content, "�")
		assert.LessOrEqual(t, len([]rune(c.Content)), 4)
	}
	assert.Equal(t, "統計的仮", chunks[0].Content)
}

func TestSplitter_Split_DeterministicIDs(t *testing.T) {
	splitter := NewSplitter()

	first := splitter.Split("doc1", "The null hypothesis is rejected at p < 0.05.")
	second := splitter.Split("doc1", "The null hypothesis is rejected at p < 0.05.")

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	// Different parent document yields a different ID for the same text
	other := splitter.Split("doc2", "The null hypothesis is rejected at p < 0.05.")
	assert.NotEqual(t, first[0].ID, other[0].ID)
}

func TestSplitter_Split_OverlapClampedBelowSize(t *testing.T) {
	// Overlap >= size would never advance; the splitter clamps it
	splitter := NewSplitterWithOptions(SplitterOptions{ChunkSize: 10, ChunkOverlap: 10})

	chunks := splitter.Split("doc1", strings.Repeat("x", 100))
	assert.NotEmpty(t, chunks)
	assert.Less(t, len(chunks), 100)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
}

func BenchmarkSplitter_Split(b *testing.B) {
	splitter := NewSplitter()
	// Roughly a 40KB note, the size where chunking cost matters.
	paragraph := "The two-sample t-test compares the means of independent groups. " +
		"It assumes approximate normality within each group and similar variances, " +
		"though Welch's correction relaxes the variance requirement.\n\n"
	content := strings.Repeat(paragraph, 200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		splitter.Split("doc", content)
	}
}
