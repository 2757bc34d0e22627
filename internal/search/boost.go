package search

import (
	"sort"
	"strings"
)

// DomainBoost is the score multiplier for hits matching a preferred
// domain.
const DomainBoost = 1.2

// BoostByDomains multiplies the score of every hit whose domain or tags
// metadata case-insensitively matches one of the preferred domains,
// then re-sorts. The sort is stable over the incoming order, so a
// boosted hit never ends up below its pre-boost rank. Hits are modified
// in place; the slice is returned for chaining.
func BoostByDomains(hits []*Hit, domains []string) []*Hit {
	preferred := normalizeDomains(domains)
	if len(preferred) == 0 {
		return hits
	}

	for _, hit := range hits {
		if matchesDomain(hit, preferred) {
			hit.Score *= DomainBoost
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	return hits
}

func normalizeDomains(domains []string) map[string]bool {
	preferred := make(map[string]bool, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			preferred[d] = true
		}
	}
	return preferred
}

// matchesDomain reports whether the hit's domain or any of its tags is
// in the preferred set. Tags are stored comma-joined in metadata.
func matchesDomain(hit *Hit, preferred map[string]bool) bool {
	if hit.Metadata == nil {
		return false
	}
	if preferred[strings.ToLower(strings.TrimSpace(hit.Metadata[MetaDomain]))] {
		return true
	}
	for _, tag := range strings.Split(hit.Metadata[MetaTags], ",") {
		if preferred[strings.ToLower(strings.TrimSpace(tag))] {
			return true
		}
	}
	return false
}
