package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_HealthCheckResolvesModelAndDims(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text:latest", 16)
	defer srv.Close()

	e, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
	})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 16, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestLocalEmbedder_FallbackModelUsed(t *testing.T) {
	// Given: only a fallback model is installed
	srv := fakeOllama(t, "all-minilm:latest", 8)
	defer srv.Close()

	e, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
	})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "all-minilm:latest", e.ModelName())
}

func TestLocalEmbedder_NoModelsFails(t *testing.T) {
	srv := fakeOllama(t, "llama3:8b", 8) // chat model, not in fallback list
	defer srv.Close()

	_, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
	})
	assert.Error(t, err)
}

func TestLocalEmbedder_UnreachableServerFails(t *testing.T) {
	_, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL:    "http://127.0.0.1:1",
		Model:      "nomic-embed-text",
		MaxRetries: 1,
	})
	assert.Error(t, err)
}

func TestLocalEmbedder_EmptyTextZeroVector(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text:latest", 8)
	defer srv.Close()

	e, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "  \n ")
	require.NoError(t, err)
	require.Len(t, vec, 8)
	assert.Zero(t, vectorMagnitude(vec))
}

func TestLocalEmbedder_EmbedBatchOneRowPerInput(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text:latest", 8)
	defer srv.Close()

	e, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL:   srv.URL,
		Model:     "nomic-embed-text",
		BatchSize: 2,
	})
	require.NoError(t, err)
	defer e.Close()

	texts := []string{"one", "", "three", "four", "five"}
	rows, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Len(t, row, 8, "row %d", i)
	}
}

func TestLocalEmbedder_ClosedErrors(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text:latest", 8)
	defer srv.Close()

	e, err := NewLocalEmbedder(context.Background(), LocalConfig{
		BaseURL: srv.URL,
		Model:   "nomic-embed-text",
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
