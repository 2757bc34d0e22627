package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/inject"
	"github.com/scholia-dev/scholia/internal/knowledge"
)

type injectOptions struct {
	instructionsFile string
	domain           string
	profileTags      []string
	asJSON           bool
}

func newInjectCmd() *cobra.Command {
	var opts injectOptions

	cmd := &cobra.Command{
		Use:   "inject <query>",
		Short: "Augment assistant instructions with corpus knowledge",
		Long: `Retrieve excerpts relevant to the query and append them to a set of
assistant instructions as a cited knowledge block.

Instructions are read from --instructions-file, or from stdin when no
file is given. When nothing relevant is found the instructions pass
through unchanged, so the command is safe to keep in a pipeline.

Examples:
  scholia inject "two-sample comparison" --instructions-file base.md
  cat base.md | scholia inject "anova assumptions" --domain statistics
  scholia inject "stock reduction" --profile-tags cooking --json < base.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runInject(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.instructionsFile, "instructions-file", "", "File holding the base instructions (default: stdin)")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "Prefer excerpts from this domain")
	cmd.Flags().StringSliceVar(&opts.profileTags, "profile-tags", nil, "Profile tags that extend the preferred domains")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output the augmented instructions and citations as JSON")

	return cmd
}

func runInject(ctx context.Context, cmd *cobra.Command, query string, opts injectOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	instructions, err := readInstructions(cmd, opts.instructionsFile)
	if err != nil {
		return err
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	// Injection is best-effort: a failed load still passes the
	// instructions through unchanged.
	if _, err := eng.BuildOrLoad(ctx); err != nil {
		slog.Warn("index_load_failed", slog.Any("error", err))
	}

	var profile *inject.Profile
	if len(opts.profileTags) > 0 {
		profile = &inject.Profile{Tags: opts.profileTags}
	}

	augmented, kctx := eng.Inject(ctx, query, instructions, knowledge.InjectOptions{
		Domain:  opts.domain,
		Profile: profile,
	})

	if opts.asJSON {
		return writeInjectJSON(cmd, augmented, kctx)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), augmented)
	return err
}

// readInstructions loads the base instructions from the given file, or
// from stdin when no file is set.
func readInstructions(cmd *cobra.Command, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read instructions: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read instructions from stdin: %w", err)
	}
	return string(data), nil
}

type injectJSONCitation struct {
	Index   int     `json:"index"`
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

type injectJSONResult struct {
	Query       string               `json:"query"`
	Augmented   string               `json:"augmented"`
	Citations   []injectJSONCitation `json:"citations"`
	TotalTokens int                  `json:"total_tokens"`
}

func writeInjectJSON(cmd *cobra.Command, augmented string, kctx *inject.KnowledgeContext) error {
	payload := injectJSONResult{
		Augmented: augmented,
		Citations: []injectJSONCitation{},
	}
	if kctx != nil {
		payload.Query = kctx.Query
		payload.TotalTokens = kctx.TotalTokens
		for _, c := range kctx.Citations {
			payload.Citations = append(payload.Citations, injectJSONCitation{
				Index:   c.Index,
				DocID:   c.DocID,
				Title:   c.Title,
				Excerpt: c.Excerpt,
				Score:   c.Score,
			})
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
