// Package highlight renders matched verses as HTML list items.
package highlight

import (
	"html"
	"math"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
)

const (
	openMatch  = `<span class="match">`
	closeMatch = `</span>`
)

// Coalesce merges spans that overlap or touch so each byte is wrapped at
// most once. Input must be sorted by offset; the result is too. A merged
// run longer than a Span can hold is emitted as consecutive spans of at
// most math.MaxUint8 bytes.
func Coalesce(spans []index.Span) []index.Span {
	if len(spans) == 0 {
		return nil
	}
	out := make([]index.Span, 0, len(spans))
	start, end := int(spans[0].Offset), spans[0].End()
	for _, s := range spans[1:] {
		if int(s.Offset) <= end {
			end = max(end, s.End())
			continue
		}
		out = appendRun(out, start, end)
		start, end = int(s.Offset), s.End()
	}
	return appendRun(out, start, end)
}

func appendRun(out []index.Span, start, end int) []index.Span {
	for start < end {
		n := min(end-start, math.MaxUint8)
		out = append(out, index.Span{Offset: uint16(start), Length: uint8(n)})
		start += n
	}
	return out
}

// Mark wraps every span of text in a match marker. Spans must be sorted and
// disjoint; they are applied last to first so earlier offsets stay valid.
// Text outside and inside the markers is HTML-escaped, and spans running
// past the end of text are clipped.
func Mark(text string, spans []index.Span) string {
	pieces := make([]string, 0, 4*len(spans)+1)
	tail := len(text)
	for _, s := range slices.Backward(spans) {
		start, end := int(s.Offset), s.End()
		if start >= tail {
			continue
		}
		if end > tail {
			end = tail
		}
		pieces = append(pieces, html.EscapeString(text[end:tail]), closeMatch, html.EscapeString(text[start:end]), openMatch)
		tail = start
	}
	pieces = append(pieces, html.EscapeString(text[:tail]))
	slices.Reverse(pieces)
	return strings.Join(pieces, "")
}

// Line renders one result list item.
func Line(link, path, reference, marked string) string {
	var b strings.Builder
	b.Grow(len(link) + len(path) + len(reference) + len(marked) + 96)
	b.WriteString(`<li><a target="_blank" rel="noopener noreferrer" href="`)
	b.WriteString(html.EscapeString(link))
	b.WriteString(`" data-verse-path="`)
	b.WriteString(html.EscapeString(path))
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(reference))
	b.WriteString(`</a>: `)
	b.WriteString(marked)
	b.WriteString(`</li>`)
	return b.String()
}
