package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/knowledge"
	"github.com/scholia-dev/scholia/internal/logging"
	"github.com/scholia-dev/scholia/internal/preflight"
	"github.com/scholia-dev/scholia/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the corpus and reindex on changes",
		Long: `Watch the corpus directory and keep the index in sync.

File events are debounced into batches; each batch triggers a
staleness check and, when needed, an incremental rebuild. Watcher
errors are logged and watching continues. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
	// Watch is a foreground loop, so rebuild activity goes to stderr
	// where the user can see it.
	logCfg := logging.DefaultConfig()
	if v := os.Getenv("SCHOLIA_LOG_LEVEL"); v != "" {
		logCfg.Level = v
	}
	if flags.debug {
		logCfg.Level = "debug"
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Watching registers a descriptor per directory, so surface a low
	// limit before the corpus walk starts hitting it.
	if res := preflight.New().CheckFileDescriptors(); res.Status == preflight.StatusFail {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: file descriptor limit is low: %s. %s\n",
			res.Message, res.Details)
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if _, err := eng.BuildOrLoad(ctx); err != nil {
		return fmt.Errorf("initial index build failed: %w", err)
	}

	opts := watcher.DefaultOptions()
	opts.DebounceWindow = cfg.DebounceWindow()
	// A storage directory inside the corpus must not feed its own
	// writes back into the watcher.
	if rel, err := filepath.Rel(cfg.Corpus.Root, cfg.StorageDir()); err == nil &&
		rel != "." && !strings.HasPrefix(rel, "..") {
		opts.IgnoreDirs = append(opts.IgnoreDirs, filepath.ToSlash(rel))
	}

	w, err := watcher.NewCorpusWatcher(opts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- w.Start(ctx, cfg.Corpus.Root)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (%s backend, debounce %s). Ctrl-C to stop.\n",
		cfg.Corpus.Root, w.Backend(), opts.DebounceWindow)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- watcher.NewSyncer(eng).Run(ctx, w.Events(), w.Errors())
	}()

	select {
	case err := <-watchErr:
		if ctx.Err() == nil {
			// Close the event channels so the syncer drains out.
			_ = w.Stop()
			if err != nil {
				return fmt.Errorf("watcher stopped: %w", err)
			}
		}
		return <-syncErr
	case err := <-syncErr:
		return err
	}
}
