package preferences

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus/corpustest"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

func TestParse(t *testing.T) {
	p, err := Parse([]byte(`{
		"and": true,
		"caseSensitive": false,
		"exact": true,
		"includedSources": {"ot": true, "nt": false, "bom": true, "dc": true, "pogp": false},
		"includedBooks": {"ot": ["Genesis"], "nt": [], "bom": ["Alma"], "dc": [1, 20], "pogp": []}
	}`))
	require.NoError(t, err)
	assert.Equal(t, And, p.CombineMode())
	assert.True(t, p.Exact)
	assert.Equal(t, SectionRange{Lo: 1, Hi: 20}, p.IncludedBooks.DC)
	assert.Equal(t, []string{"Alma"}, p.IncludedBooks.BoM)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"dc":[1,20]`)
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, doc := range []string{
		`{`,
		`{"includedBooks": {"dc": "all"}}`,
		`{"includedBooks": {"dc": [20, 1]}}`,
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, doc)
	}
}

func TestCanSearch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		prefs Preferences
		want  bool
	}{
		{"empty query", "", *Bootstrap(), false},
		{"no sources", "asdf", Preferences{
			IncludedBooks: IncludedBooks{BoM: []string{"Alma"}, DC: SectionRange{1, 1}},
		}, false},
		{"no books", "asdf", Preferences{
			IncludedSources: IncludedSources{OT: true, NT: true, BoM: true, DC: true, PoGP: true},
			IncludedBooks:   IncludedBooks{DC: SectionRange{1, 1}},
		}, false},
		{"books in enabled source", "asdf", Preferences{
			IncludedSources: IncludedSources{BoM: true, DC: true},
			IncludedBooks:   IncludedBooks{BoM: []string{"Alma"}, DC: SectionRange{1, 1}},
		}, true},
		{"books only in disabled source", "asdf", Preferences{
			IncludedSources: IncludedSources{OT: true},
			IncludedBooks:   IncludedBooks{BoM: []string{"Alma"}},
		}, false},
		{"dc range only", "asdf", Preferences{
			IncludedSources: IncludedSources{DC: true},
			IncludedBooks:   IncludedBooks{DC: SectionRange{1, 138}},
		}, true},
		{"bootstrap", "god and the faith", *Bootstrap(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.prefs.CanSearch(tt.query))
		})
	}
}

func TestAllows(t *testing.T) {
	p := Preferences{
		IncludedSources: IncludedSources{OT: true, DC: true},
		IncludedBooks: IncludedBooks{
			OT:  []string{"Genesis"},
			BoM: []string{"Alma"},
			DC:  SectionRange{Lo: 2, Hi: 4},
		},
	}
	assert.True(t, p.Allows(corpus.OT, "Genesis", 0))
	assert.False(t, p.Allows(corpus.OT, "Exodus", 0))
	assert.False(t, p.Allows(corpus.BoM, "Alma", 0))
	assert.False(t, p.Allows(corpus.DC, "", 1))
	assert.True(t, p.Allows(corpus.DC, "", 2))
	assert.True(t, p.Allows(corpus.DC, "", 4))
	assert.False(t, p.Allows(corpus.DC, "", 5))
}

func TestDefault(t *testing.T) {
	c := corpustest.New()
	p := Default(c)
	assert.Equal(t, Or, p.CombineMode())
	assert.Equal(t, []string{"Genesis", "Exodus"}, p.IncludedBooks.OT)
	assert.Equal(t, SectionRange{Lo: 1, Hi: 2}, p.IncludedBooks.DC)
	for _, col := range corpus.Collections {
		assert.True(t, p.Source(col), col.String())
	}
	assert.True(t, p.CanSearch("god"))
	require.NoError(t, p.Validate())
}
