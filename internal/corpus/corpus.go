// Package corpus models the five scripture volumes and their nested
// book/chapter/section/verse structure, and resolves VersePaths against a
// loaded corpus.
package corpus

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Collection identifies one of the five scripture volumes.
type Collection uint8

const (
	OT Collection = iota
	NT
	BoM
	DC
	PoGP
)

// NumCollections is the number of volumes in a corpus.
const NumCollections = 5

// Collections lists every volume in canonical traversal order. Index building
// and result ordering both depend on this order.
var Collections = [NumCollections]Collection{OT, NT, BoM, DC, PoGP}

// Key returns the short key used in preferences and path strings.
func (c Collection) Key() string {
	switch c {
	case OT:
		return "ot"
	case NT:
		return "nt"
	case BoM:
		return "bom"
	case DC:
		return "dc"
	case PoGP:
		return "pogp"
	default:
		panic(fmt.Sprintf("corpus: unknown collection %d", c))
	}
}

// FileName returns the JSON document name the volume is loaded from.
func (c Collection) FileName() string {
	switch c {
	case OT:
		return "old-testament.json"
	case NT:
		return "new-testament.json"
	case BoM:
		return "book-of-mormon.json"
	case DC:
		return "doctrine-and-covenants.json"
	case PoGP:
		return "pearl-of-great-price.json"
	default:
		panic(fmt.Sprintf("corpus: unknown collection %d", c))
	}
}

func (c Collection) String() string {
	switch c {
	case OT:
		return "Old Testament"
	case NT:
		return "New Testament"
	case BoM:
		return "Book of Mormon"
	case DC:
		return "Doctrine and Covenants"
	case PoGP:
		return "Pearl of Great Price"
	default:
		return fmt.Sprintf("Collection(%d)", uint8(c))
	}
}

// ParseCollection maps a short key back to its Collection.
func ParseCollection(key string) (Collection, error) {
	for _, c := range Collections {
		if c.Key() == key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown collection %q", apperrors.ErrInvalidInput, key)
}

type Verse struct {
	Heading    string `json:"heading,omitempty"`
	Pilcrow    bool   `json:"pilcrow,omitempty"`
	Reference  string `json:"reference"`
	Subheading string `json:"subheading,omitempty"`
	Text       string `json:"text"`
	Number     int    `json:"verse"`
}

type Chapter struct {
	Number    int     `json:"chapter"`
	Heading   string  `json:"heading,omitempty"`
	Note      string  `json:"note,omitempty"`
	Reference string  `json:"reference"`
	Verses    []Verse `json:"verses"`
}

type Book struct {
	Name         string    `json:"book"`
	Chapters     []Chapter `json:"chapters"`
	FullSubtitle string    `json:"full_subtitle,omitempty"`
	FullTitle    string    `json:"full_title"`
	Heading      string    `json:"heading,omitempty"`
	Slug         string    `json:"lds_slug"`
	Note         string    `json:"note,omitempty"`
}

type Section struct {
	Number    int     `json:"section"`
	Reference string  `json:"reference"`
	Verses    []Verse `json:"verses"`
	Signature string  `json:"signature,omitempty"`
}

// Volume is one scripture collection document. Books is populated for every
// collection except the Doctrine and Covenants, which uses Sections.
type Volume struct {
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle,omitempty"`
	Slug         string    `json:"lds_slug"`
	LastModified string    `json:"last_modified,omitempty"`
	Version      int       `json:"version,omitempty"`
	Books        []Book    `json:"books,omitempty"`
	Sections     []Section `json:"sections,omitempty"`
}

// Corpus holds all five volumes. It is immutable once loaded.
type Corpus struct {
	OldTestament         Volume `json:"ot"`
	NewTestament         Volume `json:"nt"`
	BookOfMormon         Volume `json:"bom"`
	DoctrineAndCovenants Volume `json:"dc"`
	PearlOfGreatPrice    Volume `json:"pogp"`
}

// Volume returns the document backing the given collection.
func (c *Corpus) Volume(col Collection) *Volume {
	switch col {
	case OT:
		return &c.OldTestament
	case NT:
		return &c.NewTestament
	case BoM:
		return &c.BookOfMormon
	case DC:
		return &c.DoctrineAndCovenants
	case PoGP:
		return &c.PearlOfGreatPrice
	default:
		panic(fmt.Sprintf("corpus: unknown collection %d", col))
	}
}

// VerseCount returns the total number of verses across all volumes.
func (c *Corpus) VerseCount() int {
	total := 0
	for _, col := range Collections {
		v := c.Volume(col)
		for _, b := range v.Books {
			for _, ch := range b.Chapters {
				total += len(ch.Verses)
			}
		}
		for _, s := range v.Sections {
			total += len(s.Verses)
		}
	}
	return total
}
