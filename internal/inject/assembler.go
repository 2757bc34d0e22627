package inject

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/search"
)

const (
	// charsPerToken is the character-to-token estimate used for budget
	// math. Four characters per token tracks English prose closely
	// enough for a safety-margined budget.
	charsPerToken = 4

	// trimMargin shrinks per-excerpt character budgets so formatting
	// overhead (bracket numbers, titles, separators) fits inside the
	// token budget.
	trimMargin = 0.9

	// ellipsis marks a truncated excerpt.
	ellipsis = "..."
)

const (
	// contextHeader introduces the injected block.
	contextHeader = "Relevant knowledge:"

	// citeInstruction is the fixed instruction appended after the
	// block.
	citeInstruction = "When you use information from the knowledge above, cite it by its bracketed index, e.g. [1]."
)

// Assembler turns hybrid retrieval results into an instruction suffix.
type Assembler struct {
	cfg      *config.Config
	searcher search.Searcher
}

// NewAssembler creates a context assembler. The token budget comes from
// the injection section of the config.
func NewAssembler(cfg *config.Config, searcher search.Searcher) (*Assembler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config", search.ErrNilDependency)
	}
	if searcher == nil {
		return nil, fmt.Errorf("%w: searcher", search.ErrNilDependency)
	}
	return &Assembler{cfg: cfg, searcher: searcher}, nil
}

// Inject retrieves knowledge for the query and appends a numbered,
// budgeted excerpt block to baseInstructions. Zero hits return
// baseInstructions unchanged with an empty context; that is the
// expected path for corpus-less or off-topic queries, not an error.
// Errors are returned for the engine to log and absorb.
func (a *Assembler) Inject(ctx context.Context, query, baseInstructions, domain string, profile *Profile) (string, *KnowledgeContext, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return baseInstructions, emptyContext(query), nil
	}

	result, err := a.searcher.Search(ctx, query, a.cfg.Retrieval.TopK, "")
	if err != nil {
		return baseInstructions, emptyContext(query), err
	}
	if len(result.Hits) == 0 {
		return baseInstructions, emptyContext(query), nil
	}

	hits := search.BoostByDomains(result.Hits, preferredDomains(domain, profile))

	block, lines, citations := a.renderBudgeted(hits)

	augmented := baseInstructions + "\n\n" + contextHeader + "\n" + block + "\n\n" + citeInstruction

	kctx := &KnowledgeContext{
		Query:       query,
		Documents:   lines,
		Citations:   citations,
		TotalTokens: estimateTokens(block),
	}

	slog.Debug("knowledge_injected",
		slog.String("query", query),
		slog.Int("excerpts", len(citations)),
		slog.Int("total_tokens", kctx.TotalTokens))

	return augmented, kctx, nil
}

// preferredDomains joins the explicit domain argument with any profile
// tags into one boost list.
func preferredDomains(domain string, profile *Profile) []string {
	var domains []string
	if domain != "" {
		domains = append(domains, domain)
	}
	if profile != nil {
		domains = append(domains, profile.Tags...)
	}
	return domains
}

// renderBudgeted renders the excerpt block, dropping the lowest-ranked
// hit and re-rendering until the block fits the token budget or a
// single excerpt remains. Dropping an excerpt raises the per-excerpt
// budget for the survivors, so the loop always terminates.
func (a *Assembler) renderBudgeted(hits []*search.Hit) (string, []string, []*Citation) {
	budget := a.cfg.Injection.MaxTokens

	for {
		lines, citations := a.renderExcerpts(hits, budget)
		block := strings.Join(lines, "\n")

		if estimateTokens(block) <= budget || len(hits) <= 1 {
			return block, lines, citations
		}
		hits = hits[:len(hits)-1]
	}
}

// renderExcerpts formats hits as "[n] title: excerpt" lines, each
// trimmed to its proportional share of the token budget.
func (a *Assembler) renderExcerpts(hits []*search.Hit, budget int) ([]string, []*Citation) {
	perExcerptChars := excerptCharBudget(budget, len(hits))

	lines := make([]string, 0, len(hits))
	citations := make([]*Citation, 0, len(hits))

	for i, hit := range hits {
		excerpt := truncateExcerpt(flatten(hit.Content), perExcerptChars)
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, hit.Title, excerpt))
		citations = append(citations, &Citation{
			Index:   i + 1,
			DocID:   hit.DocID,
			Title:   hit.Title,
			Excerpt: excerpt,
			Score:   hit.Score,
		})
	}

	return lines, citations
}

// excerptCharBudget converts an even share of the token budget into a
// margined character count.
func excerptCharBudget(budget, count int) int {
	if count <= 0 {
		count = 1
	}
	perExcerptTokens := budget / count
	chars := int(float64(perExcerptTokens*charsPerToken) * trimMargin)
	if chars < charsPerToken {
		chars = charsPerToken
	}
	return chars
}

// flatten collapses all whitespace runs to single spaces so every
// excerpt renders as one line.
func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncateExcerpt cuts text to maxChars runes, marking the cut with an
// ellipsis. Text that fits is returned unchanged.
func truncateExcerpt(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	cut := maxChars - len(ellipsis)
	if cut < 1 {
		cut = 1
	}
	return string(runes[:cut]) + ellipsis
}

// estimateTokens approximates the token cost of text, rounding up.
func estimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	return (runes + charsPerToken - 1) / charsPerToken
}
