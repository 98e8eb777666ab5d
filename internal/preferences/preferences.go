// Package preferences describes which collections and books a search covers
// and how its terms combine.
package preferences

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// CombineMode selects whether every term or any term must match a verse.
type CombineMode int

const (
	Or CombineMode = iota
	And
)

func (m CombineMode) String() string {
	if m == And {
		return "AND"
	}
	return "OR"
}

// Preferences is read-only once handed to the search engine.
type Preferences struct {
	And             bool            `json:"and"`
	CaseSensitive   bool            `json:"caseSensitive"`
	Exact           bool            `json:"exact"`
	IncludedSources IncludedSources `json:"includedSources"`
	IncludedBooks   IncludedBooks   `json:"includedBooks"`
}

type IncludedSources struct {
	OT   bool `json:"ot"`
	NT   bool `json:"nt"`
	BoM  bool `json:"bom"`
	DC   bool `json:"dc"`
	PoGP bool `json:"pogp"`
}

// IncludedBooks lists allowed book names per collection. The Doctrine and
// Covenants uses an inclusive range of 1-based section numbers instead.
type IncludedBooks struct {
	OT   []string     `json:"ot"`
	NT   []string     `json:"nt"`
	BoM  []string     `json:"bom"`
	DC   SectionRange `json:"dc"`
	PoGP []string     `json:"pogp"`
}

// SectionRange is encoded as a two-element JSON array [lo, hi].
type SectionRange struct {
	Lo uint8
	Hi uint8
}

func (r SectionRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint8{r.Lo, r.Hi})
}

func (r *SectionRange) UnmarshalJSON(b []byte) error {
	var pair [2]uint8
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: dc range must be [lo, hi]: %v", apperrors.ErrInvalidInput, err)
	}
	r.Lo, r.Hi = pair[0], pair[1]
	return nil
}

// Empty reports whether the range admits nothing for the purpose of deciding
// whether a search can run: the upper bound must exceed the lower.
func (r SectionRange) Empty() bool { return r.Hi <= r.Lo }

// Contains reports whether the 1-based section number is in [Lo, Hi].
func (r SectionRange) Contains(section int) bool {
	return section >= int(r.Lo) && section <= int(r.Hi)
}

// CombineMode returns AND when every term is required.
func (p *Preferences) CombineMode() CombineMode {
	if p.And {
		return And
	}
	return Or
}

// Source reports whether col is enabled.
func (p *Preferences) Source(col corpus.Collection) bool {
	s := p.IncludedSources
	switch col {
	case corpus.OT:
		return s.OT
	case corpus.NT:
		return s.NT
	case corpus.BoM:
		return s.BoM
	case corpus.DC:
		return s.DC
	case corpus.PoGP:
		return s.PoGP
	default:
		panic(fmt.Sprintf("preferences: unknown collection %d", col))
	}
}

// Books returns the allow-list for a book-structured collection.
func (p *Preferences) Books(col corpus.Collection) []string {
	b := p.IncludedBooks
	switch col {
	case corpus.OT:
		return b.OT
	case corpus.NT:
		return b.NT
	case corpus.BoM:
		return b.BoM
	case corpus.PoGP:
		return b.PoGP
	case corpus.DC:
		return nil
	default:
		panic(fmt.Sprintf("preferences: unknown collection %d", col))
	}
}

// CanSearch reports whether query could produce any result: it must be
// non-empty, at least one collection must be enabled and some enabled
// collection must have an eligible book or section range.
func (p *Preferences) CanSearch(query string) bool {
	if query == "" {
		return false
	}
	for _, col := range corpus.Collections {
		if !p.Source(col) {
			continue
		}
		if col == corpus.DC {
			if !p.IncludedBooks.DC.Empty() {
				return true
			}
			continue
		}
		if len(p.Books(col)) > 0 {
			return true
		}
	}
	return false
}

// Allows reports whether a verse in col passes the filter. bookName is used
// for book-structured collections and section (1-based) for the Doctrine
// and Covenants.
func (p *Preferences) Allows(col corpus.Collection, bookName string, section int) bool {
	if !p.Source(col) {
		return false
	}
	if col == corpus.DC {
		return p.IncludedBooks.DC.Contains(section)
	}
	return slices.Contains(p.Books(col), bookName)
}

// Validate rejects preferences an API client should not send.
func (p *Preferences) Validate() error {
	if p.IncludedBooks.DC.Lo > p.IncludedBooks.DC.Hi {
		return fmt.Errorf("%w: dc range [%d, %d] is inverted", apperrors.ErrInvalidInput, p.IncludedBooks.DC.Lo, p.IncludedBooks.DC.Hi)
	}
	return nil
}

// Parse decodes and validates a JSON preferences document.
func Parse(data []byte) (*Preferences, error) {
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: preferences: %v", apperrors.ErrInvalidInput, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Default enables every collection and every book of c, OR mode.
func Default(c *corpus.Corpus) *Preferences {
	names := func(col corpus.Collection) []string {
		var out []string
		for _, b := range c.Volume(col).Books {
			out = append(out, b.Name)
		}
		return out
	}
	sections := len(c.DoctrineAndCovenants.Sections)
	if sections > 255 {
		sections = 255
	}
	return &Preferences{
		IncludedSources: IncludedSources{OT: true, NT: true, BoM: true, DC: true, PoGP: true},
		IncludedBooks: IncludedBooks{
			OT:   names(corpus.OT),
			NT:   names(corpus.NT),
			BoM:  names(corpus.BoM),
			DC:   SectionRange{Lo: 1, Hi: uint8(sections)},
			PoGP: names(corpus.PoGP),
		},
	}
}

// Bootstrap returns the minimal preferences used to warm a searcher: one
// book per collection and the first twenty sections.
func Bootstrap() *Preferences {
	return &Preferences{
		CaseSensitive:   true,
		IncludedSources: IncludedSources{OT: true, NT: true, BoM: true, DC: true, PoGP: true},
		IncludedBooks: IncludedBooks{
			OT:   []string{"Genesis"},
			NT:   []string{"Matthew"},
			BoM:  []string{"1 Nephi"},
			DC:   SectionRange{Lo: 1, Hi: 20},
			PoGP: []string{"Abraham"},
		},
	}
}
