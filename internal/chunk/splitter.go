package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SplitterOptions configures the fixed-window splitter
type SplitterOptions struct {
	ChunkSize    int // Maximum characters per chunk (default: DefaultChunkSize)
	ChunkOverlap int // Characters repeated from the previous chunk (default: DefaultChunkOverlap)
}

// Splitter cuts document content into overlapping fixed-size windows.
// Overlap keeps sentences that straddle a boundary retrievable from
// either side of it.
type Splitter struct {
	options SplitterOptions
}

// NewSplitter creates a splitter with default options
func NewSplitter() *Splitter {
	return NewSplitterWithOptions(SplitterOptions{})
}

// NewSplitterWithOptions creates a splitter with custom options
func NewSplitterWithOptions(opts SplitterOptions) *Splitter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	return &Splitter{options: opts}
}

// Split cuts content into chunks of at most ChunkSize characters, each
// sharing ChunkOverlap characters with its predecessor. Content shorter
// than ChunkSize yields a single chunk. Empty or whitespace-only content
// yields no chunks.
func (s *Splitter) Split(docID, content string) []*Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)
	size := s.options.ChunkSize
	step := size - s.options.ChunkOverlap

	var chunks []*Chunk
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		text := string(runes[start:end])
		chunks = append(chunks, &Chunk{
			ID:      chunkID(docID, seq, text),
			DocID:   docID,
			Seq:     seq,
			Content: text,
			Start:   start,
			End:     end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}

// chunkID derives a stable identifier from the parent document, the
// chunk's position, and its content. Identical content at the same
// position always hashes to the same ID, so re-indexing an unchanged
// document is idempotent.
func chunkID(docID string, seq int, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	input := fmt.Sprintf("%s:%d:%s", docID, seq, hex.EncodeToString(contentHash[:])[:16])
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
