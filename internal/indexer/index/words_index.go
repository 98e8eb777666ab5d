package index

import (
	"cmp"
	"slices"
)

// WordsIndex maps a stem to the spans it occupies in every verse containing
// it. It is filled by the builder and read-only afterwards.
type WordsIndex struct {
	terms map[string]map[ScriptureID][]Span
	spans int
}

func NewWordsIndex() *WordsIndex {
	return &WordsIndex{
		terms: make(map[string]map[ScriptureID][]Span),
	}
}

// Add records one occurrence of term in verse id. Spans for a verse must be
// added in text order.
func (w *WordsIndex) Add(term string, id ScriptureID, span Span) {
	docs, exists := w.terms[term]
	if !exists {
		docs = make(map[ScriptureID][]Span)
		w.terms[term] = docs
	}
	docs[id] = append(docs[id], span)
	w.spans++
}

// Lookup returns the postings of term sorted by id, or nil for an unknown
// stem.
func (w *WordsIndex) Lookup(term string) PostingList {
	docs, exists := w.terms[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for id, spans := range docs {
		result = append(result, Posting{ID: id, Spans: spans})
	}
	slices.SortFunc(result, func(a, b Posting) int { return cmp.Compare(a.ID, b.ID) })
	return result
}

// Snapshot returns every term with its postings, sorted by term and then
// by id, so equal indexes produce equal snapshots.
func (w *WordsIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(w.terms))
	for term := range w.terms {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: w.Lookup(term),
		})
	}
	slices.SortFunc(entries, func(a, b TermEntry) int { return cmp.Compare(a.Term, b.Term) })
	return entries
}

// Len returns the number of distinct stems.
func (w *WordsIndex) Len() int { return len(w.terms) }

// SpanCount returns the total number of recorded occurrences.
func (w *WordsIndex) SpanCount() int { return w.spans }
