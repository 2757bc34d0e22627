package chunk

// Chunk size defaults, tuned for prose-heavy knowledge notes
const (
	DefaultChunkSize    = 1000 // Characters per chunk
	DefaultChunkOverlap = 200  // Characters shared between adjacent chunks
	TokensPerChar       = 4    // Rough approximation: 4 chars = 1 token
)

// Chunk is a retrievable window of a document's content.
type Chunk struct {
	ID      string // SHA256(doc_id + seq + content)[:16]
	DocID   string // Parent document identifier
	Seq     int    // 0-indexed position within the document
	Content string
	Start   int // Rune offset of the first character, inclusive
	End     int // Rune offset past the last character, exclusive
}

// EstimateTokens estimates the number of tokens in content.
func EstimateTokens(content string) int {
	return len(content) / TokensPerChar
}
