// Package index holds the in-memory forms of the search index: the words
// index from stem to per-verse occurrence spans, the paths index from
// ScriptureID to VersePath, and the reverse paths index used for ordering.
package index

import (
	"math"
	"slices"
)

// ScriptureID is the dense verse identifier assigned by the builder. Ids are
// contiguous from 1; 0 is never assigned.
type ScriptureID uint16

// MaxScriptureID is the largest id the width can hold.
const MaxScriptureID = math.MaxUint16

// Span locates one occurrence of a word inside a verse's original text.
type Span struct {
	Offset uint16
	Length uint8
}

// End returns the byte offset just past the span.
func (s Span) End() int { return int(s.Offset) + int(s.Length) }

// Posting is every occurrence of one stem in one verse, in text order.
type Posting struct {
	ID    ScriptureID
	Spans []Span
}

// PostingList is sorted by ID.
type PostingList []Posting

// IDs returns the ids of the list in order.
func (pl PostingList) IDs() []ScriptureID {
	ids := make([]ScriptureID, len(pl))
	for i, p := range pl {
		ids[i] = p.ID
	}
	return ids
}

// Find returns the posting for id using binary search.
func (pl PostingList) Find(id ScriptureID) (Posting, bool) {
	i, ok := slices.BinarySearchFunc(pl, id, func(p Posting, id ScriptureID) int {
		return int(p.ID) - int(id)
	})
	if !ok {
		return Posting{}, false
	}
	return pl[i], true
}

// TermEntry pairs a stem with its postings.
type TermEntry struct {
	Term     string
	Postings PostingList
}
