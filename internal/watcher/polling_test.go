package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectPolling gathers events until the predicate matches one or the
// timeout expires.
func collectPolling(t *testing.T, p *PollingWatcher, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-p.Events():
			if !ok {
				t.Fatal("event channel closed before match")
			}
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatal("timeout waiting for polling event")
		}
	}
}

func startPolling(t *testing.T, dir string, skip SkipFunc) *PollingWatcher {
	t.Helper()
	p := NewPollingWatcher(30*time.Millisecond, skip)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = p.Stop()
	})
	go func() { _ = p.Start(ctx, dir) }()
	// Give the baseline scan a moment to land.
	time.Sleep(100 * time.Millisecond)
	return p
}

func TestPollingWatcher_DetectsCreate(t *testing.T) {
	dir := t.TempDir()
	p := startPolling(t, dir, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("fresh"), 0644))

	event := collectPolling(t, p, func(e FileEvent) bool { return e.Path == "note.md" })
	assert.Equal(t, OpCreate, event.Operation)
	assert.False(t, event.IsDir)
}

func TestPollingWatcher_DetectsModify(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("v1"), 0644))
	p := startPolling(t, dir, nil)

	// A different length guarantees the size check fires even on file
	// systems with coarse mtime resolution.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.md"), []byte("version two"), 0644))

	event := collectPolling(t, p, func(e FileEvent) bool { return e.Path == "note.md" })
	assert.Equal(t, OpModify, event.Operation)
}

func TestPollingWatcher_DetectsDelete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doomed.md"), []byte("bye"), 0644))
	p := startPolling(t, dir, nil)

	require.NoError(t, os.Remove(filepath.Join(dir, "doomed.md")))

	event := collectPolling(t, p, func(e FileEvent) bool { return e.Path == "doomed.md" })
	assert.Equal(t, OpDelete, event.Operation)
}

func TestPollingWatcher_SkipPrunesSubtree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0755))
	skip := func(relPath string, isDir bool) bool {
		return relPath == "archive" || strings.HasPrefix(relPath, "archive/")
	}
	p := startPolling(t, dir, skip)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive", "old.md"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.md"), []byte("seen"), 0644))

	event := collectPolling(t, p, func(e FileEvent) bool { return e.Path == "kept.md" })
	assert.Equal(t, OpCreate, event.Operation)

	// Nothing from the pruned subtree should ever surface.
	select {
	case extra, ok := <-p.Events():
		if ok {
			assert.NotContains(t, extra.Path, "archive")
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPollingWatcher_StopClosesChannels(t *testing.T) {
	p := NewPollingWatcher(time.Second, nil)
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	_, ok := <-p.Events()
	assert.False(t, ok)
	_, ok = <-p.Errors()
	assert.False(t, ok)
}
