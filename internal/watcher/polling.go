package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// SkipFunc reports whether a root-relative path should be left out of a
// polling scan. Returning true for a directory prunes the whole subtree.
type SkipFunc func(relPath string, isDir bool) bool

// PollingWatcher detects changes by periodically rescanning the tree and
// diffing modification times and sizes. It is the fallback for file
// systems where fsnotify cannot deliver events.
type PollingWatcher struct {
	interval time.Duration
	skip     SkipFunc
	mu       sync.Mutex
	seen     map[string]fileSnapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	stopped  bool
	root     string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher. A nil skip function scans
// everything.
func NewPollingWatcher(interval time.Duration, skip SkipFunc) *PollingWatcher {
	if skip == nil {
		skip = func(string, bool) bool { return false }
	}
	return &PollingWatcher{
		interval: interval,
		skip:     skip,
		seen:     make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 100),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start scans once to establish a baseline, then diffs on every tick
// until the context is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	p.root = absRoot

	p.mu.Lock()
	p.seen = p.snapshot()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.diff()
		}
	}
}

// snapshot walks the tree and records state for every unskipped entry.
func (p *PollingWatcher) snapshot() map[string]fileSnapshot {
	current := make(map[string]fileSnapshot)
	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(p.root, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if p.skip(relPath, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		current[relPath] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}
		return nil
	})
	return current
}

// diff compares the tree against the last snapshot and emits events for
// every difference.
func (p *PollingWatcher) diff() {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.snapshot()
	now := time.Now()

	for path, snap := range current {
		prev, existed := p.seen[path]
		switch {
		case !existed:
			p.emit(FileEvent{Path: path, Operation: OpCreate, IsDir: snap.isDir, Timestamp: now})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emit(FileEvent{Path: path, Operation: OpModify, IsDir: snap.isDir, Timestamp: now})
		}
	}
	for path, snap := range p.seen {
		if _, still := current[path]; !still {
			p.emit(FileEvent{Path: path, Operation: OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}

	p.seen = current
}

// emit sends an event without blocking. Must be called with the lock held.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}

// Events returns the channel of raw file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of scan errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// Stop stops polling and closes the channels. Safe to call more than
// once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}
