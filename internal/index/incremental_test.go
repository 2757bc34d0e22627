package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholia-dev/scholia/internal/corpus"
	"github.com/scholia-dev/scholia/internal/embed"
	scherr "github.com/scholia-dev/scholia/internal/errors"
)

func TestVectorIndex_IndexDocument(t *testing.T) {
	// A document added through the API becomes searchable
	// immediately and its graph update survives a restart.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "base.md", "Base note about factorial designs")

	idx, meta, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	ready, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)
	require.True(t, ready)

	doc := &corpus.Document{
		ID:      "manual:protocol",
		Title:   "Study protocol",
		Content: "Study protocol for the twin cohort experiment",
	}
	require.NoError(t, idx.IndexDocument(context.Background(), doc))
	assert.Equal(t, 2, idx.Count())

	hits, err := idx.Search(context.Background(), "Study protocol for the twin cohort experiment", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "manual:protocol", hits[0].DocID)

	chunkIDs, err := meta.ChunkIDsByDocument(context.Background(), "manual:protocol")
	require.NoError(t, err)
	assert.Len(t, chunkIDs, 1)

	// The graph write is durable: a fresh instance loads it.
	require.NoError(t, idx.Close())
	second, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	ready, err = second.BuildOrLoad(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
	assert.Equal(t, 2, second.Count())
}

func TestVectorIndex_RemoveDocument(t *testing.T) {
	// Removing a document deletes its vectors and chunk rows.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "base.md", "Base note about blocking variables")

	idx, meta, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	doc := &corpus.Document{ID: "manual:temp", Content: "Temporary note slated for removal"}
	require.NoError(t, idx.IndexDocument(context.Background(), doc))
	require.Equal(t, 2, idx.Count())

	require.NoError(t, idx.RemoveDocument(context.Background(), "manual:temp"))
	assert.Equal(t, 1, idx.Count())

	chunkIDs, err := meta.ChunkIDsByDocument(context.Background(), "manual:temp")
	require.NoError(t, err)
	assert.Empty(t, chunkIDs)

	hits, err := idx.Search(context.Background(), "Temporary note slated for removal", 5)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "manual:temp", hit.DocID)
	}
}

func TestVectorIndex_ReindexReplacesChunks(t *testing.T) {
	// Indexing the same id again replaces the old chunks
	// instead of accumulating them.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "base.md", "Base note about crossover trials")

	idx, meta, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	doc := &corpus.Document{ID: "manual:draft", Content: "First draft of the analysis plan"}
	require.NoError(t, idx.IndexDocument(context.Background(), doc))

	oldIDs, err := meta.ChunkIDsByDocument(context.Background(), "manual:draft")
	require.NoError(t, err)
	require.Len(t, oldIDs, 1)

	doc.Content = "Second draft with preregistered hypotheses"
	require.NoError(t, idx.IndexDocument(context.Background(), doc))

	newIDs, err := meta.ChunkIDsByDocument(context.Background(), "manual:draft")
	require.NoError(t, err)
	require.Len(t, newIDs, 1)
	assert.NotEqual(t, oldIDs[0], newIDs[0])
	assert.Equal(t, 2, idx.Count())

	hits, err := idx.Search(context.Background(), "Second draft with preregistered hypotheses", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "manual:draft", hits[0].DocID)
}

func TestVectorIndex_IndexDocumentNotReady(t *testing.T) {
	// Incremental indexing needs a live graph; removal works
	// regardless because chunk rows are cleaned up either way.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "base.md", "Content that never gets embedded")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewUnavailableProvider())
	ready, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)
	require.False(t, ready)

	doc := &corpus.Document{ID: "manual:late", Content: "Arrives before the index exists"}
	err = idx.IndexDocument(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, scherr.ErrCodeIndexFailed, scherr.GetCode(err))

	assert.NoError(t, idx.RemoveDocument(context.Background(), "manual:late"))
}

func TestVectorIndex_IncrementalValidation(t *testing.T) {
	// Nil documents and blank ids are rejected up front.
	corpusDir := t.TempDir()
	writeNote(t, corpusDir, "base.md", "Base note")

	idx, _, _ := newTestIndex(t, corpusDir, embed.NewStaticEmbedder())
	_, err := idx.BuildOrLoad(context.Background())
	require.NoError(t, err)

	err = idx.IndexDocument(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, scherr.ErrCodeInvalidInput, scherr.GetCode(err))

	err = idx.IndexDocument(context.Background(), &corpus.Document{Content: "no id"})
	require.Error(t, err)
	assert.Equal(t, scherr.ErrCodeInvalidInput, scherr.GetCode(err))

	err = idx.RemoveDocument(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, scherr.ErrCodeInvalidInput, scherr.GetCode(err))
}
