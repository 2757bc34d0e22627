package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/configs"
	"github.com/scholia-dev/scholia/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		force      bool
		configOnly bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a corpus for scholia",
		Long: `Set up the current directory (or --corpus) as a scholia corpus.

This command:
1. Writes a .scholia.yaml configuration template to the corpus root
2. Builds the initial index (unless --config-only)

The template ships with every setting commented out, so defaults apply
until you uncomment and edit them.`,
		Example: `  # Initialize the current directory
  scholia init

  # Overwrite an existing configuration
  scholia init --force

  # Write the config without indexing
  scholia init --config-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInit(ctx, cmd, force, configOnly)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .scholia.yaml")
	cmd.Flags().BoolVar(&configOnly, "config-only", false, "Write the config template, skip indexing")

	return cmd
}

func runInit(ctx context.Context, cmd *cobra.Command, force, configOnly bool) error {
	out := cmd.OutOrStdout()

	root := flags.corpus
	if root == "" {
		if found, err := config.FindCorpusRoot("."); err == nil {
			root = found
		} else if root, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve corpus path: %w", err)
	}

	fmt.Fprintf(out, "Corpus: %s\n", absRoot)

	created, err := writeConfigTemplate(absRoot, force)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintln(out, "Created .scholia.yaml (every setting optional, defaults apply).")
	} else {
		fmt.Fprintln(out, "Existing configuration preserved. Use --force to overwrite.")
	}

	if configOnly {
		return nil
	}

	fmt.Fprintln(out, "Building the initial index...")
	return runIndex(ctx, cmd, false)
}

// writeConfigTemplate writes the embedded template to .scholia.yaml,
// preserving an existing config unless forced.
func writeConfigTemplate(root string, force bool) (bool, error) {
	yamlPath := filepath.Join(root, ".scholia.yaml")
	if !force {
		if _, err := os.Stat(yamlPath); err == nil {
			return false, nil
		}
		if _, err := os.Stat(filepath.Join(root, ".scholia.yml")); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(yamlPath, []byte(configs.CorpusConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write .scholia.yaml: %w", err)
	}
	return true, nil
}
