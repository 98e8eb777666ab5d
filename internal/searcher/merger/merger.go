// Package merger combines the per-term occurrence lists of one verse into a
// single list ordered by offset.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
)

// MergeSpans k-way merges lists that are each sorted by offset. Ties keep
// the order of the input lists. Overlapping spans are kept.
func MergeSpans(lists [][]index.Span) []index.Span {
	total := 0
	h := &cursorHeap{}
	for i, l := range lists {
		if len(l) == 0 {
			continue
		}
		total += len(l)
		*h = append(*h, cursor{list: i, spans: l})
	}
	if len(*h) == 1 {
		return append([]index.Span(nil), (*h)[0].spans...)
	}
	heap.Init(h)
	result := make([]index.Span, 0, total)
	for h.Len() > 0 {
		c := &(*h)[0]
		result = append(result, c.spans[c.pos])
		c.pos++
		if c.pos == len(c.spans) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return result
}

type cursor struct {
	list  int
	spans []index.Span
	pos   int
}

func (c cursor) head() index.Span { return c.spans[c.pos] }

type cursorHeap []cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return h[i].list < h[j].list
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(cursor))
}

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
