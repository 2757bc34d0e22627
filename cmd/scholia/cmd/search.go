package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholia-dev/scholia/internal/knowledge"
	"github.com/scholia-dev/scholia/internal/search"
	"github.com/scholia-dev/scholia/internal/ui"
)

type searchOptions struct {
	topK   int
	domain string
	asJSON bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the corpus",
		Long: `Run one hybrid retrieval over the indexed corpus.

Vector and keyword results are fetched in parallel, normalized, and
fused with the configured weights. Without an embedding provider the
query degrades to keyword-only retrieval.

Examples:
  scholia search "comparing two group means"
  scholia search "assumptions of ANOVA" --top-k 3
  scholia search "braising tough cuts" --domain cooking --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default: from config)")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "Boost results from this domain")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if _, err := eng.BuildOrLoad(ctx); err != nil {
		return fmt.Errorf("failed to prepare index: %w", err)
	}

	result, err := eng.Search(ctx, query, knowledge.SearchOptions{
		TopK:   opts.topK,
		Domain: opts.domain,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.asJSON {
		return writeSearchJSON(cmd, result)
	}
	return writeSearchText(cmd, result)
}

func writeSearchText(cmd *cobra.Command, result *search.Result) error {
	out := cmd.OutOrStdout()
	styles := ui.GetStyles(flags.noColor || ui.DetectNoColor())

	if len(result.Hits) == 0 {
		fmt.Fprintf(out, "No results for %q.\n", result.Query)
		return nil
	}

	summary := fmt.Sprintf("Found %d results for %q (%s, %s)",
		result.Count, result.Query, result.Method, result.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "%s\n\n", styles.Header.Render(summary))

	for i, hit := range result.Hits {
		title := hit.Title
		if title == "" {
			title = hit.DocID
		}
		fmt.Fprintf(out, "%d. %s  %s\n", i+1,
			styles.Active.Render(title),
			styles.Dim.Render(fmt.Sprintf("(score %.3f, %s)", hit.Score, hit.Source)))
		fmt.Fprintf(out, "   %s\n", styles.Label.Render(hit.DocID))
		if domain := hit.Metadata[search.MetaDomain]; domain != "" {
			fmt.Fprintf(out, "   %s\n", styles.Dim.Render("domain: "+domain))
		}
		for _, line := range snippet(hit.Content, 3) {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// snippet returns up to n leading lines of content, dropping trailing
// blanks.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type searchJSONHit struct {
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
	Domain  string  `json:"domain,omitempty"`
	Content string  `json:"content"`
}

type searchJSONResult struct {
	Query     string          `json:"query"`
	Method    string          `json:"method"`
	Count     int             `json:"count"`
	ElapsedMS float64         `json:"elapsed_ms"`
	Hits      []searchJSONHit `json:"hits"`
}

func writeSearchJSON(cmd *cobra.Command, result *search.Result) error {
	payload := searchJSONResult{
		Query:     result.Query,
		Method:    result.Method,
		Count:     result.Count,
		ElapsedMS: float64(result.Elapsed.Microseconds()) / 1000.0,
		Hits:      make([]searchJSONHit, 0, len(result.Hits)),
	}
	for _, hit := range result.Hits {
		payload.Hits = append(payload.Hits, searchJSONHit{
			DocID:   hit.DocID,
			Title:   hit.Title,
			Score:   hit.Score,
			Source:  hit.Source,
			Domain:  hit.Metadata[search.MetaDomain],
			Content: hit.Content,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
