package inject

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholia-dev/scholia/internal/config"
	"github.com/scholia-dev/scholia/internal/search"
)

// fakeSearcher returns canned hits, rebuilding them on every call
// because the assembler boosts scores in place.
type fakeSearcher struct {
	build      func() []*search.Hit
	err        error
	lastTopK   int
	lastDomain string
}

func (f *fakeSearcher) Search(_ context.Context, query string, topK int, domain string) (*search.Result, error) {
	f.lastTopK = topK
	f.lastDomain = domain
	if f.err != nil {
		return nil, f.err
	}
	hits := f.build()
	return &search.Result{Query: query, Hits: hits, Count: len(hits), Method: search.MethodHybrid}, nil
}

func newTestAssembler(t *testing.T, searcher search.Searcher, mutate ...func(*config.Config)) *Assembler {
	t.Helper()
	cfg := config.NewConfig()
	for _, fn := range mutate {
		fn(cfg)
	}
	a, err := NewAssembler(cfg, searcher)
	require.NoError(t, err)
	return a
}

func hit(id, title, content string, score float64, meta map[string]string) *search.Hit {
	return &search.Hit{
		DocID:    id,
		Title:    title,
		Content:  content,
		Score:    score,
		Source:   search.SourceHybrid,
		Metadata: meta,
	}
}

func TestAssembler_ZeroHitsLeavesInstructionsUntouched(t *testing.T) {
	// No hits means the base instructions come back
	// byte-for-byte and the context is empty.
	searcher := &fakeSearcher{build: func() []*search.Hit { return nil }}
	a := newTestAssembler(t, searcher)

	base := "System: you are a careful statistician.\n\nAlways show your work.  "
	augmented, kctx, err := a.Inject(context.Background(), "anything", base, "", nil)
	require.NoError(t, err)

	assert.Equal(t, base, augmented)
	assert.Equal(t, "anything", kctx.Query)
	assert.NotNil(t, kctx.Documents)
	assert.Empty(t, kctx.Documents)
	assert.NotNil(t, kctx.Citations)
	assert.Empty(t, kctx.Citations)
	assert.Equal(t, 0, kctx.TotalTokens)
}

func TestAssembler_EmptyQueryShortCircuits(t *testing.T) {
	// A blank query never reaches the searcher.
	searcher := &fakeSearcher{build: func() []*search.Hit {
		t.Fatal("searcher must not be called for a blank query")
		return nil
	}}
	a := newTestAssembler(t, searcher)

	base := "base instructions"
	augmented, kctx, err := a.Inject(context.Background(), "   ", base, "", nil)
	require.NoError(t, err)
	assert.Equal(t, base, augmented)
	assert.Empty(t, kctx.Citations)
}

func TestAssembler_InjectsNumberedExcerpts(t *testing.T) {
	// Hits render as numbered "[n] title: excerpt" lines
	// between the base instructions and the citation instruction.
	searcher := &fakeSearcher{build: func() []*search.Hit {
		return []*search.Hit{
			hit("ttest.md", "T-test", "Compare two group means with a t-test.", 0.9, nil),
			hit("anova.md", "ANOVA", "Compare three or more groups with ANOVA.", 0.7, nil),
		}
	}}
	a := newTestAssembler(t, searcher)

	base := "You are a research assistant."
	augmented, kctx, err := a.Inject(context.Background(), " comparing groups ", base, "", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(augmented, base+"\n\n"))
	assert.Contains(t, augmented, "Relevant knowledge:\n")
	assert.Contains(t, augmented, "[1] T-test: Compare two group means with a t-test.")
	assert.Contains(t, augmented, "[2] ANOVA: Compare three or more groups with ANOVA.")
	assert.True(t, strings.HasSuffix(augmented, citeInstruction))

	assert.Equal(t, "comparing groups", kctx.Query)
	require.Len(t, kctx.Citations, 2)
	assert.Equal(t, 1, kctx.Citations[0].Index)
	assert.Equal(t, "ttest.md", kctx.Citations[0].DocID)
	assert.Equal(t, 2, kctx.Citations[1].Index)
	assert.Equal(t, "anova.md", kctx.Citations[1].DocID)
	require.Len(t, kctx.Documents, 2)
	assert.Greater(t, kctx.TotalTokens, 0)
	assert.LessOrEqual(t, kctx.TotalTokens, a.cfg.Injection.MaxTokens)

	// The searcher is called without a domain; boosting happens here.
	assert.Equal(t, "", searcher.lastDomain)
	assert.Equal(t, a.cfg.Retrieval.TopK, searcher.lastTopK)
}

func TestAssembler_DomainBoostReorders(t *testing.T) {
	// The explicit domain argument boosts matching hits
	// before rendering.
	searcher := &fakeSearcher{build: func() []*search.Hit {
		return []*search.Hit{
			hit("general.md", "General", "general content", 0.60, nil),
			hit("stats.md", "Stats", "stats content", 0.55, map[string]string{search.MetaDomain: "statistics"}),
		}
	}}
	a := newTestAssembler(t, searcher)

	_, neutral, err := a.Inject(context.Background(), "query", "base", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "general.md", neutral.Citations[0].DocID)

	_, boosted, err := a.Inject(context.Background(), "query", "base", "statistics", nil)
	require.NoError(t, err)
	assert.Equal(t, "stats.md", boosted.Citations[0].DocID)
	assert.InDelta(t, 0.66, boosted.Citations[0].Score, 1e-9)
}

func TestAssembler_ProfileTagsExtendPreferredDomains(t *testing.T) {
	// Profile tags boost alongside the explicit domain.
	searcher := &fakeSearcher{build: func() []*search.Hit {
		return []*search.Hit{
			hit("general.md", "General", "general content", 0.60, nil),
			hit("methods.md", "Methods", "methods content", 0.55, map[string]string{search.MetaTags: "methodology,design"}),
		}
	}}
	a := newTestAssembler(t, searcher)

	profile := &Profile{Name: "grad-student", Tags: []string{"methodology"}}
	_, kctx, err := a.Inject(context.Background(), "query", "base", "", profile)
	require.NoError(t, err)
	assert.Equal(t, "methods.md", kctx.Citations[0].DocID)
}

func TestAssembler_TruncatesExcerptsToShare(t *testing.T) {
	// Long excerpts are trimmed to their proportional share
	// of the token budget with an ellipsis marker.
	long := strings.Repeat("x", 200)
	searcher := &fakeSearcher{build: func() []*search.Hit {
		return []*search.Hit{
			hit("one.md", "T1", long, 0.9, nil),
			hit("two.md", "T2", long, 0.8, nil),
		}
	}}
	a := newTestAssembler(t, searcher, func(cfg *config.Config) {
		cfg.Injection.MaxTokens = 60
	})

	_, kctx, err := a.Inject(context.Background(), "query", "base", "", nil)
	require.NoError(t, err)

	require.Len(t, kctx.Citations, 2)
	for _, c := range kctx.Citations {
		assert.True(t, strings.HasSuffix(c.Excerpt, ellipsis))
		// 60 tokens / 2 excerpts * 4 chars * 0.9 margin = 108 chars.
		assert.Equal(t, 108, utf8.RuneCountInString(c.Excerpt))
	}
	assert.LessOrEqual(t, kctx.TotalTokens, 60)
}

func TestAssembler_DropsLowestRankedUntilFit(t *testing.T) {
	// When trimming alone cannot fit the budget, the lowest
	// ranked excerpts are dropped; the best hit always survives.
	long := strings.Repeat("y", 500)
	searcher := &fakeSearcher{build: func() []*search.Hit {
		return []*search.Hit{
			hit("best.md", "Best", long, 0.9, nil),
			hit("mid.md", "Mid", long, 0.8, nil),
			hit("low.md", "Low", long, 0.7, nil),
		}
	}}
	a := newTestAssembler(t, searcher, func(cfg *config.Config) {
		cfg.Injection.MaxTokens = 10
	})

	_, kctx, err := a.Inject(context.Background(), "query", "base", "", nil)
	require.NoError(t, err)

	require.Len(t, kctx.Citations, 1)
	assert.Equal(t, "best.md", kctx.Citations[0].DocID)
	assert.Equal(t, 1, kctx.Citations[0].Index)
}

func TestAssembler_ShortExcerptsStayWhole(t *testing.T) {
	// Content inside the per-excerpt budget is injected
	// unmodified, with internal whitespace flattened to single spaces.
	searcher := &fakeSearcher{build: func() []*search.Hit {
		return []*search.Hit{
			hit("notes.md", "Notes", "line one\nline two\t end", 0.9, nil),
		}
	}}
	a := newTestAssembler(t, searcher)

	_, kctx, err := a.Inject(context.Background(), "query", "base", "", nil)
	require.NoError(t, err)

	require.Len(t, kctx.Citations, 1)
	assert.Equal(t, "line one line two end", kctx.Citations[0].Excerpt)
	assert.NotContains(t, kctx.Citations[0].Excerpt, ellipsis)
}

func TestAssembler_SearchErrorPropagates(t *testing.T) {
	// A searcher failure returns the base instructions
	// unchanged plus the error; the engine logs and absorbs it.
	searcher := &fakeSearcher{err: fmt.Errorf("retrieval broke")}
	a := newTestAssembler(t, searcher)

	base := "base instructions"
	augmented, kctx, err := a.Inject(context.Background(), "query", base, "", nil)
	require.Error(t, err)
	assert.Equal(t, base, augmented)
	assert.Empty(t, kctx.Citations)
}

func TestNewAssembler_RequiresDependencies(t *testing.T) {
	// Nil dependencies are rejected.
	_, err := NewAssembler(nil, &fakeSearcher{})
	assert.ErrorIs(t, err, search.ErrNilDependency)

	_, err = NewAssembler(config.NewConfig(), nil)
	assert.ErrorIs(t, err, search.ErrNilDependency)
}
