package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func domainHit(id string, score float64, meta map[string]string) *Hit {
	return &Hit{DocID: id, Title: id, Score: score, Source: SourceKeyword, Metadata: meta}
}

func TestBoostByDomains_MatchingHitMovesUp(t *testing.T) {
	// A matching hit gets score x1.2 and overtakes a close
	// non-matching hit; a clearly better hit stays on top.
	hits := []*Hit{
		domainHit("top", 0.60, nil),
		domainHit("mid", 0.55, nil),
		domainHit("boosted", 0.50, map[string]string{MetaDomain: "statistics"}),
	}

	out := BoostByDomains(hits, []string{"statistics"})
	require.Len(t, out, 3)

	assert.Equal(t, "top", out[0].DocID)
	assert.Equal(t, "boosted", out[1].DocID)
	assert.Equal(t, "mid", out[2].DocID)
	assert.InDelta(t, 0.60, out[1].Score, 1e-9)
}

func TestBoostByDomains_TagsMatchCaseInsensitive(t *testing.T) {
	// Tag values and domain names match regardless of case
	// and surrounding whitespace.
	hits := []*Hit{
		domainHit("plain", 0.5, nil),
		domainHit("tagged", 0.5, map[string]string{MetaTags: "Methods, Causal-Inference"}),
	}

	out := BoostByDomains(hits, []string{"  CAUSAL-INFERENCE "})
	assert.Equal(t, "tagged", out[0].DocID)
	assert.InDelta(t, 0.6, out[0].Score, 1e-9)
	assert.InDelta(t, 0.5, out[1].Score, 1e-9)
}

func TestBoostByDomains_NoDomainsIsNoOp(t *testing.T) {
	// An empty preferred list leaves scores and order alone.
	hits := []*Hit{
		domainHit("a", 0.9, map[string]string{MetaDomain: "statistics"}),
		domainHit("b", 0.8, nil),
	}

	out := BoostByDomains(hits, nil)
	assert.Equal(t, "a", out[0].DocID)
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)

	out = BoostByDomains(hits, []string{"", "   "})
	assert.Equal(t, "a", out[0].DocID)
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)
}

func TestBoostByDomains_Monotonic(t *testing.T) {
	// Boosting never moves a boosted hit below its pre-boost
	// rank, even when the boost creates ties.
	hits := []*Hit{
		domainHit("first", 0.6, map[string]string{MetaDomain: "stats"}),
		domainHit("second", 0.6, map[string]string{MetaDomain: "stats"}),
		domainHit("third", 0.5, nil),
	}

	out := BoostByDomains(hits, []string{"stats"})

	rank := func(id string) int {
		for i, h := range out {
			if h.DocID == id {
				return i
			}
		}
		return -1
	}
	assert.Equal(t, 0, rank("first"))
	assert.Equal(t, 1, rank("second"))
	assert.Equal(t, 2, rank("third"))
}
