// Package inject assembles retrieval results into a token-bounded,
// citation-annotated context block prepended to a downstream model's
// instructions. Injection is best-effort by contract: the knowledge
// engine converts any failure here into "instructions unchanged".
package inject

// Citation records where one numbered excerpt came from.
type Citation struct {
	// Index is the 1-based bracket number used in the rendered block.
	Index int

	// DocID identifies the source document.
	DocID string

	// Title is the document title shown in the block.
	Title string

	// Excerpt is the possibly truncated text that was injected.
	Excerpt string

	// Score is the hit's score after domain boosting.
	Score float64
}

// KnowledgeContext describes what one injection call added.
type KnowledgeContext struct {
	// Query is the trimmed query the excerpts answer.
	Query string

	// Documents are the rendered excerpt lines, in injected order.
	Documents []string

	// Citations map bracket indexes back to source documents.
	Citations []*Citation

	// TotalTokens is the estimated token cost of the injected block.
	TotalTokens int
}

// Profile describes the caller on whose behalf knowledge is injected.
// Its tags extend the preferred-domain list used for boosting.
type Profile struct {
	Name string
	Tags []string
}

// emptyContext is the context returned when nothing was injected.
func emptyContext(query string) *KnowledgeContext {
	return &KnowledgeContext{
		Query:     query,
		Documents: []string{},
		Citations: []*Citation{},
	}
}
