package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholia-dev/scholia/internal/corpus"
	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/store"
)

func TestIndexCmd_BuildsIndex(t *testing.T) {
	// Given: a small corpus
	root := seedCorpus(t)

	// When: running index offline with plain output
	output, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")

	// Then: the build should complete and persist its artifacts
	require.NoError(t, err)
	assert.Contains(t, output, "documents", "Plain output should report the completion summary")

	storageDir := filepath.Join(root, ".scholia")
	for _, name := range []string{store.DatabaseFile, index.VectorFile, corpus.FingerprintFile} {
		_, statErr := os.Stat(filepath.Join(storageDir, name))
		assert.NoError(t, statErr, "Artifact %s should exist after indexing", name)
	}
}

func TestIndexCmd_SecondRunLoadsWithoutRebuild(t *testing.T) {
	// Given: an already indexed corpus
	root := seedCorpus(t)
	_, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")
	require.NoError(t, err)

	// When: indexing again with no changes
	_, err = runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")

	// Then: the unchanged corpus should load cleanly
	require.NoError(t, err)
}

func TestIndexCmd_ForceRebuild(t *testing.T) {
	// Given: an already indexed corpus
	root := seedCorpus(t)
	_, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")
	require.NoError(t, err)

	// When: forcing a rebuild
	output, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain", "--force")

	// Then: it should clear and rebuild
	require.NoError(t, err)
	assert.Contains(t, output, "Cleared existing index data")

	_, statErr := os.Stat(filepath.Join(root, ".scholia", store.DatabaseFile))
	assert.NoError(t, statErr, "Database should exist after forced rebuild")
}

func TestIndexCmd_EmptyCorpus(t *testing.T) {
	// Given: a corpus directory with no markdown files
	root := t.TempDir()

	// When: indexing it
	_, err := runCLI(t, "", "index", "--corpus", root, "--offline", "--plain")

	// Then: an empty corpus is a valid, empty index
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, ".scholia", store.DatabaseFile))
	assert.NoError(t, statErr, "Empty corpus should still produce a database")
}

func TestIndexCmd_RejectsPositionalArgs(t *testing.T) {
	// Given: an index command with stray arguments

	// When: executing it
	_, err := runCLI(t, "", "index", "extra")

	// Then: it should refuse
	require.Error(t, err)
}

func TestClearStorage_MissingDirIsFine(t *testing.T) {
	// Given: a storage path that does not exist
	dir := filepath.Join(t.TempDir(), "absent")

	// When: clearing it
	err := clearStorage(dir)

	// Then: nothing to remove is not an error
	assert.NoError(t, err)
}

func TestClearStorage_RemovesArtifacts(t *testing.T) {
	// Given: a storage dir with index artifacts and a config bystander
	dir := t.TempDir()
	artifacts := []string{
		store.DatabaseFile,
		store.DatabaseFile + "-wal",
		corpus.FingerprintFile,
		index.VectorFile,
		index.VectorFile + ".meta",
	}
	for _, name := range artifacts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	bystander := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(bystander, []byte("x"), 0o644))

	// When: clearing storage
	require.NoError(t, clearStorage(dir))

	// Then: artifacts are gone, other files stay
	for _, name := range artifacts {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}
	_, err := os.Stat(bystander)
	assert.NoError(t, err, "Unrelated files should survive")
}
