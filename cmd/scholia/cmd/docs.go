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

	"github.com/scholia-dev/scholia/internal/knowledge"
	"github.com/scholia-dev/scholia/internal/search"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage individual documents",
		Long: `Add, remove, and inspect individual documents without touching the
corpus directory.

Documents added here live in the index but not on disk, so a later
full rebuild resyncs from corpus files and drops them.`,
	}

	cmd.AddCommand(newDocsAddCmd())
	cmd.AddCommand(newDocsRemoveCmd())
	cmd.AddCommand(newDocsGetCmd())

	return cmd
}

type docsAddOptions struct {
	file    string
	content string
	title   string
	domain  string
	source  string
	tags    []string
}

func newDocsAddCmd() *cobra.Command {
	var opts docsAddOptions

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a document to the index",
		Long: `Add a single document under the given ID.

Content comes from --content, --file, or stdin, in that order of
precedence. Adding an existing ID replaces the document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsAdd(cmd.Context(), cmd, args[0], opts)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.file, "file", "", "Read content from this file")
	fl.StringVar(&opts.content, "content", "", "Document content")
	fl.StringVar(&opts.title, "title", "", "Document title (default: the ID)")
	fl.StringVar(&opts.domain, "domain", "", "Knowledge domain")
	fl.StringVar(&opts.source, "source", "", "Source attribution")
	fl.StringSliceVar(&opts.tags, "tags", nil, "Tags, comma separated")

	return cmd
}

func runDocsAdd(ctx context.Context, cmd *cobra.Command, id string, opts docsAddOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	content := opts.content
	if content == "" {
		content, err = readDocContent(cmd, opts.file)
		if err != nil {
			return err
		}
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	// Load the index first so the document is vectorized too, not
	// only keyword-indexed.
	if _, err := eng.BuildOrLoad(ctx); err != nil {
		slog.Warn("index_load_failed", slog.Any("error", err))
	}

	metadata := map[string]string{}
	if opts.domain != "" {
		metadata[search.MetaDomain] = opts.domain
	}
	if opts.source != "" {
		metadata["source"] = opts.source
	}
	if len(opts.tags) > 0 {
		metadata[search.MetaTags] = strings.Join(opts.tags, ",")
	}

	if !eng.AddDocument(ctx, id, content, opts.title, metadata) {
		return fmt.Errorf("document %q was not added", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added document %q.\n", id)
	return nil
}

// readDocContent loads document content from the given file, or from
// stdin when no file is set.
func readDocContent(cmd *cobra.Command, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read content from stdin: %w", err)
	}
	return string(data), nil
}

func newDocsRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a document from the index",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsRemove(cmd.Context(), cmd, args[0])
		},
	}
	return cmd
}

func runDocsRemove(ctx context.Context, cmd *cobra.Command, id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	// Load the index so the removal reaches the persisted vectors.
	if _, err := eng.BuildOrLoad(ctx); err != nil {
		slog.Warn("index_load_failed", slog.Any("error", err))
	}

	if !eng.RemoveDocument(ctx, id) {
		return fmt.Errorf("document %q not found", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed document %q.\n", id)
	return nil
}

func newDocsGetCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsGet(cmd.Context(), cmd, args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

type docJSON struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Domain  string   `json:"domain,omitempty"`
	Source  string   `json:"source,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Content string   `json:"content"`
}

func runDocsGet(ctx context.Context, cmd *cobra.Command, id string, asJSON bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := knowledge.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	doc, err := eng.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document %q not found", id)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(docJSON{
			ID:      doc.ID,
			Title:   doc.Title,
			Domain:  doc.Metadata[search.MetaDomain],
			Source:  doc.Metadata["source"],
			Tags:    doc.Tags,
			Content: doc.Content,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:     %s\n", doc.ID)
	fmt.Fprintf(out, "Title:  %s\n", doc.Title)
	if domain := doc.Metadata[search.MetaDomain]; domain != "" {
		fmt.Fprintf(out, "Domain: %s\n", domain)
	}
	if source := doc.Metadata["source"]; source != "" {
		fmt.Fprintf(out, "Source: %s\n", source)
	}
	if len(doc.Tags) > 0 {
		fmt.Fprintf(out, "Tags:   %s\n", strings.Join(doc.Tags, ", "))
	}
	fmt.Fprintf(out, "\n%s\n", doc.Content)
	return nil
}
