// Package ui renders index-build progress and corpus status to the
// terminal. Interactive terminals get a bubbletea TUI, pipes and CI get
// plain text.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage identifies a phase of an index build.
type Stage int

const (
	// StageScanning walks the corpus and loads documents.
	StageScanning Stage = iota
	// StageChunking splits documents into overlapping spans.
	StageChunking
	// StageEmbedding turns chunks into vectors.
	StageEmbedding
	// StageIndexing inserts vectors into the graph and persists it.
	StageIndexing
	// StageComplete means the build finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// Unit names what Current/Total count during this stage.
func (s Stage) Unit() string {
	switch s {
	case StageScanning, StageChunking:
		return "documents"
	case StageEmbedding, StageIndexing:
		return "chunks"
	default:
		return "items"
	}
}

// ProgressEvent is one progress update from the index build.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file problem surfaced during the build.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings breaks the build duration down by stage.
type StageTimings struct {
	Scan  time.Duration
	Chunk time.Duration
	Embed time.Duration
	Index time.Duration
}

// EmbedderInfo describes the embedding backend that served the build.
type EmbedderInfo struct {
	Backend    string // "remote", "local", or "static"
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished build.
type CompletionStats struct {
	Files    int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer displays build progress.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress shows a progress update.
	UpdateProgress(event ProgressEvent)

	// AddError records a per-file error or warning.
	AddError(event ErrorEvent)

	// Complete shows the final summary.
	Complete(stats CompletionStats)

	// Stop tears the renderer down.
	Stop() error
}

// Config configures renderer selection and appearance.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	CorpusDir  string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithCorpusDir sets the corpus path shown in the TUI header.
func WithCorpusDir(dir string) ConfigOption {
	return func(c *Config) { c.CorpusDir = dir }
}

// NewConfig creates a Config for the given output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer picks a renderer for the environment: TUI on interactive
// terminals, plain text for pipes, CI, or when forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
