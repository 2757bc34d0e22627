package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scholia-dev/scholia/internal/corpus"
	"github.com/scholia-dev/scholia/internal/ignore"
)

// CorpusWatcher watches a corpus root and emits debounced batches of
// change events for eligible documents. fsnotify is the primary
// mechanism with polling as the fallback.
type CorpusWatcher struct {
	fsWatcher   *fsnotify.Watcher
	poller      *PollingWatcher
	useFsnotify bool
	debouncer   *Debouncer
	opts        Options
	ignoreDirs  []string
	ignores     *ignore.Matcher
	events      chan []FileEvent
	errors      chan error
	stopCh      chan struct{}
	root        string
	mu          sync.RWMutex
	stopped     bool
	dropped     atomic.Uint64
}

// NewCorpusWatcher creates a watcher with the given options. When
// fsnotify cannot initialize, the watcher silently runs on polling.
func NewCorpusWatcher(opts Options) (*CorpusWatcher, error) {
	opts = opts.WithDefaults()

	w := &CorpusWatcher{
		debouncer:  NewDebouncer(opts.DebounceWindow),
		opts:       opts,
		ignoreDirs: normalizeIgnoreDirs(opts.IgnoreDirs),
		events:     make(chan []FileEvent, opts.EventBufferSize),
		errors:     make(chan error, 10),
		stopCh:     make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		w.fsWatcher = fsw
		w.useFsnotify = true
	} else {
		slog.Warn("fsnotify_unavailable",
			slog.Any("error", err),
			slog.Duration("poll_interval", opts.PollInterval))
		w.poller = NewPollingWatcher(opts.PollInterval, w.skipScan)
	}

	return w, nil
}

func normalizeIgnoreDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = strings.Trim(filepath.ToSlash(strings.TrimSpace(d)), "/")
		if d != "" && d != "." {
			out = append(out, d)
		}
	}
	return out
}

// Start watches the given root until the context is cancelled or Stop is
// called. It blocks while running the event pump.
func (w *CorpusWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()
	w.reloadIgnores()

	go w.forwardBatches(ctx)

	if w.useFsnotify {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// runFsnotify registers every directory and pumps raw events into the
// debouncer.
func (w *CorpusWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("register watch directories: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// runPolling forwards filtered polling events into the debouncer.
func (w *CorpusWatcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.filterAndAdd(event.Path, event.Operation, event.IsDir)
			case err, ok := <-w.poller.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()

	return w.poller.Start(ctx, w.root)
}

// handleFsnotifyEvent converts one fsnotify event into a corpus event.
func (w *CorpusWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		relPath = event.Name
	}
	relPath = filepath.ToSlash(relPath)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// A directory moved into the corpus arrives as one create, so
		// register its whole subtree before its files change again.
		if isDir && !w.skipScan(relPath, true) {
			_ = w.addRecursive(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.filterAndAdd(relPath, op, isDir)
}

// filterAndAdd applies corpus eligibility rules and feeds the debouncer.
// Directory events pass through because a moved directory can carry
// documents that never get per-file events.
func (w *CorpusWatcher) filterAndAdd(relPath string, op Operation, isDir bool) {
	if isConfigFile(relPath) {
		if relPath == ignore.File {
			// The exclusion rules just changed, refresh them before
			// the rebuild this event triggers.
			w.reloadIgnores()
		}
		w.debouncer.Add(FileEvent{
			Path:      relPath,
			Operation: OpConfigChange,
			Timestamp: time.Now(),
		})
		return
	}
	if w.skipPath(relPath, isDir) {
		return
	}
	w.debouncer.Add(FileEvent{
		Path:      relPath,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

func isConfigFile(relPath string) bool {
	base := path.Base(relPath)
	return base == ".scholia.yaml" || base == ".scholia.yml" || base == ignore.File
}

// reloadIgnores reads the corpus ignore file. A broken file keeps
// watching alive with no exclusions instead of killing the loop.
func (w *CorpusWatcher) reloadIgnores() {
	matcher, err := ignore.Load(w.root)
	if err != nil {
		slog.Warn("ignore_file_unreadable",
			slog.String("path", filepath.Join(w.root, ignore.File)),
			slog.Any("error", err))
		matcher = ignore.New()
	}
	w.mu.Lock()
	w.ignores = matcher
	w.mu.Unlock()
}

func (w *CorpusWatcher) matcher() *ignore.Matcher {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignores
}

// skipScan prunes subtrees that never hold corpus documents: hidden
// directories (the storage directory among them), configured ignores,
// and .scholiaignore exclusions. Files are kept so later filtering can
// classify them.
func (w *CorpusWatcher) skipScan(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return false
	}
	if isDir && strings.HasPrefix(path.Base(relPath), ".") {
		return true
	}
	for _, dir := range w.ignoreDirs {
		if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
			return true
		}
	}
	// Config files stay visible so their edits surface even when a broad
	// pattern would cover them.
	if m := w.matcher(); m != nil && !isConfigFile(relPath) && m.Match(relPath, isDir) {
		return true
	}
	return false
}

// skipPath reports whether an event path is outside corpus scope.
func (w *CorpusWatcher) skipPath(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	for _, dir := range w.ignoreDirs {
		if relPath == dir || strings.HasPrefix(relPath, dir+"/") {
			return true
		}
	}
	if m := w.matcher(); m != nil && m.Match(relPath, isDir) {
		return true
	}
	if isDir {
		return false
	}
	return !corpus.IsEligible(path.Base(relPath))
}

// addRecursive registers root and every unskipped directory below it.
func (w *CorpusWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if relPath == "." {
			return w.fsWatcher.Add(p)
		}
		if w.skipScan(relPath, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

// forwardBatches moves debounced batches to the output channel.
func (w *CorpusWatcher) forwardBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			w.emitBatch(batch)
		}
	}
}

// emitBatch sends a batch without blocking. The read lock is held across
// the send so Stop cannot close the channel mid-send.
func (w *CorpusWatcher) emitBatch(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		count := w.dropped.Add(1)
		slog.Warn("watch_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_batches", count))
	}
}

func (w *CorpusWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes both channels. Safe to call more than
// once.
func (w *CorpusWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced event batches.
func (w *CorpusWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *CorpusWatcher) Errors() <-chan error {
	return w.errors
}

// Healthy reports whether the watcher is still running.
func (w *CorpusWatcher) Healthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.stopped
}

// Backend returns "fsnotify" or "polling".
func (w *CorpusWatcher) Backend() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute path being watched.
func (w *CorpusWatcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}
