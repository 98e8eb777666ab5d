package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
)

func TestMergeSpans(t *testing.T) {
	got := MergeSpans([][]index.Span{
		{{Offset: 3, Length: 3}, {Offset: 40, Length: 4}},
		{{Offset: 0, Length: 2}, {Offset: 17, Length: 3}, {Offset: 90, Length: 1}},
		nil,
		{{Offset: 17, Length: 5}},
	})
	assert.Equal(t, []index.Span{
		{Offset: 0, Length: 2},
		{Offset: 3, Length: 3},
		{Offset: 17, Length: 3},
		{Offset: 17, Length: 5},
		{Offset: 40, Length: 4},
		{Offset: 90, Length: 1},
	}, got)
}

func TestMergeSpansSingleList(t *testing.T) {
	in := []index.Span{{Offset: 1, Length: 1}}
	got := MergeSpans([][]index.Span{nil, in})
	assert.Equal(t, in, got)
	got[0].Offset = 9
	assert.Equal(t, uint16(1), in[0].Offset)
}

func TestMergeSpansEmpty(t *testing.T) {
	assert.Empty(t, MergeSpans(nil))
	assert.Empty(t, MergeSpans([][]index.Span{{}, nil}))
}
