package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/corpus"
	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/knowledge"
	"github.com/scholia-dev/scholia/internal/store"
	"github.com/scholia-dev/scholia/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the corpus index",
		Long: `Scan the corpus, chunk and embed its documents, and persist the
hybrid index under the storage directory.

An unchanged corpus loads the persisted index without re-embedding.
Use --force to discard the existing index and rebuild everything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing index and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, force bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if force {
		if err := clearStorage(cfg.StorageDir()); err != nil {
			return fmt.Errorf("failed to clear index data: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared existing index data, rebuilding from scratch...")
		slog.Info("index_force_clear", slog.String("storage_dir", cfg.StorageDir()))
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(flags.plain),
		ui.WithNoColor(flags.noColor),
		ui.WithCorpusDir(cfg.Corpus.Root),
	))
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("renderer_start_failed", slog.Any("error", err))
	}
	defer func() { _ = renderer.Stop() }()

	eng, err := knowledge.New(ctx, cfg, knowledge.WithRenderer(renderer))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ready, err := eng.BuildOrLoad(ctx)
	if err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	if !ready {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No embedding provider available; search will run in keyword-only mode.")
		fmt.Fprintln(out, "Run with --offline for deterministic static embeddings, or configure a provider.")
	}
	return nil
}

// clearStorage removes the persisted index artifacts, leaving the
// corpus and its config file untouched.
func clearStorage(dir string) error {
	targets := []string{
		filepath.Join(dir, store.DatabaseFile),
		filepath.Join(dir, store.DatabaseFile+"-wal"),
		filepath.Join(dir, store.DatabaseFile+"-shm"),
		filepath.Join(dir, corpus.FingerprintFile),
	}
	for _, path := range targets {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
		}
	}
	return store.RemoveVectorFiles(filepath.Join(dir, index.VectorFile))
}
