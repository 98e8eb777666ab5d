package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Load reads the five volume documents from dir.
func Load(dir string) (*Corpus, error) {
	c := &Corpus{}
	for _, col := range Collections {
		path := filepath.Join(dir, col.FileName())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := json.Unmarshal(data, c.Volume(col)); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", apperrors.ErrMalformedCorpus, path, err)
		}
		slog.Debug("volume loaded", "collection", col.Key(), "title", c.Volume(col).Title, "bytes", len(data))
	}
	return c, nil
}

// Walk visits every verse of one collection in book, chapter, verse order
// (section, verse for the Doctrine and Covenants). It fails on the first
// malformed entry: a missing book name or reference, a chapter, section or
// verse number that does not match its position, or a coordinate that does
// not fit the VersePath widths.
func (c *Corpus) Walk(col Collection, fn func(path VersePath, v *Verse) error) error {
	vol := c.Volume(col)
	if col == DC {
		if len(vol.Books) > 0 {
			return fmt.Errorf("%w: %s has books", apperrors.ErrMalformedCorpus, col)
		}
		if len(vol.Sections) > math.MaxUint8+1 {
			return fmt.Errorf("%w: %s has %d sections", apperrors.ErrMalformedCorpus, col, len(vol.Sections))
		}
		for si := range vol.Sections {
			s := &vol.Sections[si]
			if s.Number != si+1 {
				return fmt.Errorf("%w: %s section %d at position %d", apperrors.ErrMalformedCorpus, col, s.Number, si+1)
			}
			if err := walkVerses(s.Verses, s.Reference, func(vi int) VersePath {
				return DoctrineAndCovenants(uint8(si), uint16(vi))
			}, fn); err != nil {
				return err
			}
		}
		return nil
	}
	if len(vol.Sections) > 0 {
		return fmt.Errorf("%w: %s has sections", apperrors.ErrMalformedCorpus, col)
	}
	if len(vol.Books) > math.MaxUint8+1 {
		return fmt.Errorf("%w: %s has %d books", apperrors.ErrMalformedCorpus, col, len(vol.Books))
	}
	for bi := range vol.Books {
		b := &vol.Books[bi]
		if b.Name == "" {
			return fmt.Errorf("%w: %s book %d has no name", apperrors.ErrMalformedCorpus, col, bi)
		}
		if len(b.Chapters) > math.MaxUint8+1 {
			return fmt.Errorf("%w: %s has %d chapters", apperrors.ErrMalformedCorpus, b.Name, len(b.Chapters))
		}
		for ci := range b.Chapters {
			ch := &b.Chapters[ci]
			if ch.Number != ci+1 {
				return fmt.Errorf("%w: %s chapter %d at position %d", apperrors.ErrMalformedCorpus, b.Name, ch.Number, ci+1)
			}
			if err := walkVerses(ch.Verses, ch.Reference, func(vi int) VersePath {
				return BookPath{Volume: col, Book: uint8(bi), Chapter: uint8(ci), Verse: uint16(vi)}
			}, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkVerses(verses []Verse, parent string, pathAt func(int) VersePath, fn func(VersePath, *Verse) error) error {
	if len(verses) > math.MaxUint16+1 {
		return fmt.Errorf("%w: %s has %d verses", apperrors.ErrMalformedCorpus, parent, len(verses))
	}
	for vi := range verses {
		v := &verses[vi]
		if v.Reference == "" {
			return fmt.Errorf("%w: %s verse %d has no reference", apperrors.ErrMalformedCorpus, parent, vi+1)
		}
		if v.Number != vi+1 {
			return fmt.Errorf("%w: %s numbered %d at position %d", apperrors.ErrMalformedCorpus, v.Reference, v.Number, vi+1)
		}
		if err := fn(pathAt(vi), v); err != nil {
			return err
		}
	}
	return nil
}
