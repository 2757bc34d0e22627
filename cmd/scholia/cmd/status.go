package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/index"
	"github.com/scholia-dev/scholia/internal/knowledge"
	"github.com/scholia-dev/scholia/internal/store"
	"github.com/scholia-dev/scholia/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show corpus index health",
		Long: `Display the state of the persisted index: document, chunk, and
vector counts, freshness against the corpus on disk, the search mode
(hybrid or keyword-only), and provider availability.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, asJSON bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Opening the engine would create an empty database as a side
	// effect, so refuse before that when nothing was ever indexed.
	dbPath := filepath.Join(cfg.StorageDir(), store.DatabaseFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found in %s\nRun 'scholia index' to create one", cfg.Corpus.Root)
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	st, err := eng.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	info := ui.StatusInfo{
		CorpusRoot:        st.CorpusRoot,
		StorageDir:        st.StorageDir,
		Documents:         st.Documents,
		Chunks:            st.Chunks,
		VectorCount:       st.VectorCount,
		VectorReady:       st.VectorReady,
		NeedsRebuild:      st.NeedsRebuild,
		Provider:          st.Provider,
		ProviderAvailable: st.ProviderAvailable,
		StorageBytes:      dirSize(cfg.StorageDir()),
	}

	// This process has not loaded the graph, so report the persisted
	// artifact instead of the empty in-memory index.
	if !info.VectorReady {
		vectorPath := filepath.Join(cfg.StorageDir(), index.VectorFile)
		if count, err := store.ReadStoredCount(vectorPath); err == nil && count > 0 {
			info.VectorCount = count
			info.VectorReady = !info.NeedsRebuild
		}
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), flags.noColor || ui.DetectNoColor())
	if asJSON {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// dirSize sums the file sizes under a directory.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
