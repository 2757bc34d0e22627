package store

import (
	"sort"
	"sync"
)

// MemoryKeywordIndex is an in-memory inverted index over whole
// documents. Scoring is the sum of query-token term frequencies
// normalized by document length, so short focused documents outrank
// long ones with the same overlap. It is the lexical half of hybrid
// retrieval and the only search path when no embedding provider is
// available.
type MemoryKeywordIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{} // term -> IDs of documents containing it
	docs     map[string]*keywordDoc
	nextSeq  int
}

// keywordDoc is the indexed form of one document.
type keywordDoc struct {
	content  string
	metadata map[string]string
	terms    map[string]int // term -> occurrences
	length   int            // total token count, the score denominator
	seq      int            // insertion sequence, breaks score ties
}

// Verify interface implementation at compile time
var _ KeywordIndex = (*MemoryKeywordIndex)(nil)

// NewMemoryKeywordIndex creates an empty keyword index.
func NewMemoryKeywordIndex() *MemoryKeywordIndex {
	return &MemoryKeywordIndex{
		postings: make(map[string]map[string]struct{}),
		docs:     make(map[string]*keywordDoc),
	}
}

// Add indexes a document, replacing any previous version under the same
// ID. Re-adding keeps the original insertion slot so refreshing a
// document does not shuffle tie order between unchanged documents.
func (m *MemoryKeywordIndex) Add(id, content string, metadata map[string]string) {
	tokens := Tokenize(content)

	terms := make(map[string]int, len(tokens))
	for _, token := range tokens {
		terms[token]++
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.nextSeq
	if prev, ok := m.docs[id]; ok {
		seq = prev.seq
		m.removePostingsLocked(id, prev)
	} else {
		m.nextSeq++
	}

	for term := range terms {
		ids, ok := m.postings[term]
		if !ok {
			ids = make(map[string]struct{})
			m.postings[term] = ids
		}
		ids[id] = struct{}{}
	}

	m.docs[id] = &keywordDoc{
		content:  content,
		metadata: metadata,
		terms:    terms,
		length:   len(tokens),
		seq:      seq,
	}
}

// Remove drops a document from the index. Reports whether it was
// present.
func (m *MemoryKeywordIndex) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return false
	}

	m.removePostingsLocked(id, doc)
	delete(m.docs, id)
	return true
}

// removePostingsLocked unlinks a document from every posting list it
// appears in. Caller must hold the write lock.
func (m *MemoryKeywordIndex) removePostingsLocked(id string, doc *keywordDoc) {
	for term := range doc.terms {
		ids, ok := m.postings[term]
		if !ok {
			continue
		}
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.postings, term)
		}
	}
}

// Search returns up to limit documents ranked by score. Duplicate query
// tokens count once per occurrence, so "two two" weighs "two" twice.
// Equal scores keep insertion order.
func (m *MemoryKeywordIndex) Search(query string, limit int) []*KeywordResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tokens := Tokenize(query)
	if len(tokens) == 0 || limit <= 0 {
		return []*KeywordResult{}
	}

	matched := make(map[string]int)
	for _, token := range tokens {
		ids, ok := m.postings[token]
		if !ok {
			continue
		}
		for id := range ids {
			matched[id] += m.docs[id].terms[token]
		}
	}

	results := make([]*KeywordResult, 0, len(matched))
	for id, freq := range matched {
		doc := m.docs[id]
		if doc.length == 0 {
			continue
		}
		results = append(results, &KeywordResult{
			DocID: id,
			Score: float64(freq) / float64(doc.length),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return m.docs[results[i].DocID].seq < m.docs[results[j].DocID].seq
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Get returns the stored content and metadata for a document.
func (m *MemoryKeywordIndex) Get(id string) (string, map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return "", nil, false
	}
	return doc.content, doc.metadata, true
}

// DocumentIDs returns all indexed IDs in insertion order.
func (m *MemoryKeywordIndex) DocumentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.docs[ids[i]].seq < m.docs[ids[j]].seq
	})
	return ids
}

// Count returns the number of indexed documents.
func (m *MemoryKeywordIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.docs)
}

// Stats returns index statistics.
func (m *MemoryKeywordIndex) Stats() *IndexStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &IndexStats{
		DocumentCount: len(m.docs),
		TermCount:     len(m.postings),
	}
	if len(m.docs) > 0 {
		var total int
		for _, doc := range m.docs {
			total += doc.length
		}
		stats.AvgDocLength = float64(total) / float64(len(m.docs))
	}
	return stats
}
