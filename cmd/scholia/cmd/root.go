// Package cmd implements the scholia command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/logging"
	"github.com/scholia-dev/scholia/pkg/version"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	corpus     string
	storageDir string
	configFile string
	offline    bool
	debug      bool
	noColor    bool
	plain      bool
}

var (
	flags          globalOptions
	loggingCleanup func()
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scholia",
		Short: "Hybrid knowledge retrieval for research assistants",
		Long: `Scholia indexes a markdown knowledge corpus and serves hybrid
(vector + keyword) retrieval over it.

Point it at a directory of notes, run 'scholia index' to build the
index, then use 'scholia search' for sourced excerpts or
'scholia inject' to fold them into assistant instructions.`,
		Version: version.Version,
		// Errors are rendered once by main, with suggestions attached.
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("scholia version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.corpus, "corpus", "", "Corpus root directory (default: discovered from the working directory)")
	pf.StringVar(&flags.storageDir, "storage-dir", "", "Index storage directory (default: <corpus>/.scholia)")
	pf.StringVar(&flags.configFile, "config", "", "Config file path (default: <corpus>/.scholia.yaml)")
	pf.BoolVar(&flags.offline, "offline", false, "Use deterministic static embeddings, no network providers")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&flags.plain, "plain", false, "Force plain progress output instead of the TUI")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newInjectCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// startLogging routes slog to the log file so command output stays
// clean. Commands that want console logging opt back in themselves.
func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if v := os.Getenv("SCHOLIA_LOG_LEVEL"); v != "" {
		logCfg.Level = v
	}
	if flags.debug {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is best effort; run the command without it.
		return nil
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves configuration for the current invocation. An
// explicit --config file wins over corpus discovery; flags override
// whatever the files and environment produced.
func loadConfig() (*config.Config, error) {
	if flags.configFile != "" {
		cfg, err := config.LoadFile(flags.configFile)
		if err != nil {
			return nil, err
		}
		return applyFlagOverrides(cfg)
	}

	root := flags.corpus
	if root == "" {
		found, err := config.FindCorpusRoot(".")
		if err != nil {
			found, err = os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to determine corpus directory: %w", err)
			}
		}
		root = found
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve corpus path: %w", err)
	}

	cfg, err := config.Load(abs)
	if err != nil {
		return nil, err
	}
	return applyFlagOverrides(cfg)
}

func applyFlagOverrides(cfg *config.Config) (*config.Config, error) {
	if flags.corpus != "" {
		abs, err := filepath.Abs(flags.corpus)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve corpus path: %w", err)
		}
		cfg.Corpus.Root = abs
	}
	if flags.storageDir != "" {
		abs, err := filepath.Abs(flags.storageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage path: %w", err)
		}
		cfg.Corpus.StorageDir = abs
	}
	if flags.offline {
		cfg.Embedding.Provider = "static"
	}
	if flags.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
