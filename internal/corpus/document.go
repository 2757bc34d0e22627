package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a loaded knowledge file ready for indexing.
type Document struct {
	ID       string            // Relative path within the corpus
	Path     string            // Relative path (same as ID for file-backed documents)
	Title    string            // From frontmatter, first heading, or filename
	Content  string            // Body with frontmatter removed
	Tags     []string          // From frontmatter
	Metadata map[string]string // domain, source, and other frontmatter fields
	Position int               // Insertion order during indexing
}

var (
	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)

	// Matches the first markdown heading
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

// docFrontmatter is the subset of frontmatter fields the engine reads.
type docFrontmatter struct {
	Title  string   `yaml:"title"`
	Domain string   `yaml:"domain"`
	Source string   `yaml:"source"`
	Tags   []string `yaml:"tags"`
}

// LoadDocument reads and parses a scanned corpus file.
func LoadDocument(file *FileInfo) (*Document, error) {
	raw, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	return ParseDocument(file.Path, raw), nil
}

// ParseDocument builds a Document from raw markdown bytes. Frontmatter
// is stripped from the content and folded into Title, Tags, and
// Metadata. Malformed frontmatter is ignored rather than rejected.
func ParseDocument(relPath string, raw []byte) *Document {
	content := string(raw)

	doc := &Document{
		ID:       relPath,
		Path:     relPath,
		Metadata: map[string]string{},
	}

	if match := frontmatterPattern.FindStringSubmatch(content); match != nil {
		var fm docFrontmatter
		if err := yaml.Unmarshal([]byte(match[1]), &fm); err == nil {
			doc.Title = fm.Title
			doc.Tags = fm.Tags
			if fm.Domain != "" {
				doc.Metadata["domain"] = fm.Domain
			}
			if fm.Source != "" {
				doc.Metadata["source"] = fm.Source
			}
		}
		content = content[len(match[0]):]
	}

	doc.Content = content

	if doc.Title == "" {
		if match := headingPattern.FindStringSubmatch(content); match != nil {
			doc.Title = strings.TrimSpace(match[1])
		}
	}
	if doc.Title == "" {
		base := filepath.Base(relPath)
		doc.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return doc
}
