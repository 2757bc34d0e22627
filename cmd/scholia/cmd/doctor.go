package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/logging"
	"github.com/scholia-dev/scholia/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure scholia can index and watch the corpus.

Checks:
  - Corpus root access
  - Write permissions for the storage directory
  - Disk space (100MB minimum)
  - File descriptor limits (1024 minimum, matters for 'scholia watch')

Use --verbose for remediation hints on failed checks.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  scholia doctor

  # Verbose output with details
  scholia doctor --verbose

  # JSON output for scripting
  scholia doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, verbose, asJSON)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, verbose, asJSON bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, cfg.Corpus.Root, cfg.StorageDir())

	if asJSON {
		if err := writeDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
		if verbose {
			if logPath, err := logging.FindLogFile(""); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nLog file: %s\n", logPath)
			}
		}
	}

	if checker.HasCriticalFailures(results) {
		return errors.New("system check failed")
	}
	return nil
}

type doctorJSONCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

type doctorJSONResult struct {
	Status   string            `json:"status"`
	Checks   []doctorJSONCheck `json:"checks"`
	LogFile  string            `json:"log_file,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

func writeDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSONResult{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheck, len(results)),
	}
	if logPath, err := logging.FindLogFile(""); err == nil {
		out.LogFile = logPath
	}

	for i, r := range results {
		out.Checks[i] = doctorJSONCheck{
			Name:     r.Name,
			Status:   strings.ToLower(r.Status.String()),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
