package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholia-dev/scholia/internal/ui"
)

func TestStatusCmd_NoIndex(t *testing.T) {
	// Given: a corpus that was never indexed
	root := t.TempDir()

	// When: asking for status
	_, err := runCLI(t, "", "status", "--corpus", root)

	// Then: it should point at the index command instead of creating
	// an empty database
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
	assert.Contains(t, err.Error(), "scholia index")

	_, statErr := os.Stat(filepath.Join(root, ".scholia"))
	assert.True(t, os.IsNotExist(statErr), "Status must not create storage as a side effect")
}

func TestStatusCmd_AfterIndex(t *testing.T) {
	// Given: an indexed corpus
	root := seedCorpus(t)
	_, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")
	require.NoError(t, err)

	// When: asking for status in a fresh engine
	output, err := runCLI(t, "", "status", "--corpus", root, "--offline", "--no-color")

	// Then: counts, freshness, and mode should reflect the build
	require.NoError(t, err)
	assert.Contains(t, output, "Corpus Status")
	assert.Contains(t, output, "Documents: 2")
	assert.Contains(t, output, "fresh")
	assert.Contains(t, output, "hybrid", "Persisted vectors should count as hybrid-ready")
	assert.Contains(t, output, "static")
}

func TestStatusCmd_JSON(t *testing.T) {
	// Given: an indexed corpus
	root := seedCorpus(t)
	_, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")
	require.NoError(t, err)

	// When: asking for JSON status
	output, err := runCLI(t, "", "status", "--corpus", root, "--offline", "--json")

	// Then: the payload should carry the persisted counts
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(output), &info))

	assert.Equal(t, 2, info.Documents)
	assert.Greater(t, info.Chunks, 0)
	assert.Greater(t, info.VectorCount, 0, "Stored vector count should be read from the sidecar")
	assert.True(t, info.VectorReady)
	assert.False(t, info.NeedsRebuild)
	assert.Equal(t, "static", info.Provider)
	assert.True(t, info.ProviderAvailable)
	assert.Greater(t, info.StorageBytes, int64(0))
}

func TestStatusCmd_StaleAfterCorpusChange(t *testing.T) {
	// Given: an indexed corpus that changed afterwards
	root := seedCorpus(t)
	_, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")
	require.NoError(t, err)
	writeCorpusFile(t, root, "statistics/anova.md", "# ANOVA\n\nCompares three or more group means.\n")

	// When: asking for status
	output, err := runCLI(t, "", "status", "--corpus", root, "--offline", "--no-color")

	// Then: the index should report stale
	require.NoError(t, err)
	assert.Contains(t, output, "stale")
}

func TestDirSize_SumsFiles(t *testing.T) {
	// Given: a directory with two files
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o644))

	// When: summing
	total := dirSize(dir)

	// Then: both files count
	assert.Equal(t, int64(150), total)
}

func TestDirSize_MissingDirIsZero(t *testing.T) {
	assert.Equal(t, int64(0), dirSize(filepath.Join(t.TempDir(), "absent")))
}
