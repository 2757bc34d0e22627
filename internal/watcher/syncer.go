package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	scherr "github.com/scholia-dev/scholia/internal/errors"
)

// Reindexer is the slice of the knowledge engine the syncer needs: a
// staleness check and a rebuild.
type Reindexer interface {
	NeedsRebuild(ctx context.Context) (bool, error)
	BuildOrLoad(ctx context.Context) (bool, error)
}

// Syncer consumes debounced corpus batches and rebuilds the index when
// the fingerprint check says the snapshot is stale. Rebuild failures are
// logged and watching continues.
type Syncer struct {
	index    Reindexer
	rebuilds atomic.Uint64
	checks   atomic.Uint64
}

// NewSyncer creates a syncer over the given index.
func NewSyncer(index Reindexer) *Syncer {
	return &Syncer{index: index}
}

// Run consumes batches until the context is cancelled or the event
// channel closes. Watcher errors are logged and never stop the loop.
func (s *Syncer) Run(ctx context.Context, events <-chan []FileEvent, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				continue
			}
			s.handleBatch(ctx, batch)
		case err, ok := <-errs:
			if !ok {
				// A nil channel blocks forever, leaving only the
				// other cases selectable.
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.Any("error", err))
		}
	}
}

func (s *Syncer) handleBatch(ctx context.Context, batch []FileEvent) {
	slog.Debug("corpus_changed",
		slog.Int("events", len(batch)),
		slog.String("first", batch[0].Path))

	for _, event := range batch {
		if event.Operation == OpConfigChange {
			slog.Info("config_changed",
				slog.String("path", event.Path),
				slog.String("hint", "restart to apply configuration changes"))
		}
	}

	s.checks.Add(1)
	stale, err := s.index.NeedsRebuild(ctx)
	if err != nil {
		slog.Warn("staleness_check_failed", slog.Any("error", err))
		return
	}
	if !stale {
		slog.Debug("index_fresh")
		return
	}

	start := time.Now()
	ready, err := s.index.BuildOrLoad(ctx)
	if err != nil {
		attrs := make([]any, 0, 8)
		for k, v := range scherr.FormatForLog(err) {
			attrs = append(attrs, slog.Any(k, v))
		}
		slog.Error("rebuild_failed", attrs...)
		return
	}
	s.rebuilds.Add(1)
	slog.Info("index_rebuilt",
		slog.Bool("vector_ready", ready),
		slog.Duration("elapsed", time.Since(start)))
}

// Rebuilds returns how many rebuilds this syncer has completed.
func (s *Syncer) Rebuilds() uint64 {
	return s.rebuilds.Load()
}

// Checks returns how many staleness checks this syncer has run.
func (s *Syncer) Checks() uint64 {
	return s.checks.Load()
}
