// Package corpus discovers and loads the markdown knowledge files that
// feed the retrieval indexes. It walks a corpus directory, skipping
// index files, hidden directories, and oversized files, and computes
// content fingerprints used to decide when the vector index is stale.
package corpus

import (
	"strings"
	"time"
)

// DefaultMaxFileSize is the default maximum file size (5MB).
const DefaultMaxFileSize = 5 * 1024 * 1024

// FileInfo contains metadata about a discovered knowledge file.
type FileInfo struct {
	Path    string    // Relative to corpus root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// ScanOptions configures the corpus scanner.
type ScanOptions struct {
	// RootDir is the corpus root directory to scan.
	RootDir string

	// MaxFileSize is the maximum file size to include in bytes (0 = 5MB default).
	MaxFileSize int64

	// ExtraIgnoreNames lists additional basenames to skip, beyond the
	// conventional index files.
	ExtraIgnoreNames []string
}

// indexFileNames are the conventional corpus index files. They hold
// tables of contents rather than knowledge content, so they are never
// indexed.
var indexFileNames = []string{"index.md", "readme.md"}

// IsEligible reports whether a basename names an indexable knowledge
// file. Only markdown files count, and conventional index files are
// excluded case-insensitively.
func IsEligible(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".md") {
		return false
	}
	for _, idx := range indexFileNames {
		if lower == idx {
			return false
		}
	}
	return true
}
