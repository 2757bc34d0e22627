package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// StatusInfo describes the health of a corpus index.
type StatusInfo struct {
	CorpusRoot string `json:"corpus_root"`
	StorageDir string `json:"storage_dir"`

	Documents   int `json:"documents"`
	Chunks      int `json:"chunks"`
	VectorCount int `json:"vector_count"`

	VectorReady  bool `json:"vector_ready"`
	NeedsRebuild bool `json:"needs_rebuild"`

	Provider          string `json:"provider"`
	ProviderAvailable bool   `json:"provider_available"`

	StorageBytes int64 `json:"storage_bytes"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Corpus Status"))

	_, _ = fmt.Fprintf(r.out, "  Corpus:  %s\n", info.CorpusRoot)
	_, _ = fmt.Fprintf(r.out, "  Storage: %s", info.StorageDir)
	if info.StorageBytes > 0 {
		_, _ = fmt.Fprintf(r.out, " (%s)", FormatBytes(info.StorageBytes))
	}
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Documents: %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Chunks:    %d\n", info.Chunks)
	_, _ = fmt.Fprintf(r.out, "  Vectors:   %d\n", info.VectorCount)
	_, _ = fmt.Fprintln(r.out)

	freshness := "fresh"
	if info.NeedsRebuild {
		freshness = "stale"
	}
	mode := "keyword-only"
	if info.VectorReady {
		mode = "hybrid"
	}
	_, _ = fmt.Fprintf(r.out, "  Index:       %s\n", r.renderStatus(freshness))
	_, _ = fmt.Fprintf(r.out, "  Search mode: %s\n", mode)
	_, _ = fmt.Fprintln(r.out)

	providerStatus := "offline"
	if info.ProviderAvailable {
		providerStatus = "ready"
	}
	_, _ = fmt.Fprintf(r.out, "  Provider: %s (%s)\n", info.Provider, r.renderStatus(providerStatus))

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status word with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "fresh":
		return r.styles.Success.Render(status)
	case "offline", "stale":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// FormatBytes formats bytes to a human-readable size.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
