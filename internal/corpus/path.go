package corpus

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// BaseURL is the prefix for every verse link.
const BaseURL = "https://www.churchofjesuschrist.org/study/scriptures"

// VersePath locates one verse. It is a closed sum type: BookPath for the four
// book-structured volumes and SectionPath for the Doctrine and Covenants.
// Every switch over it must handle both cases.
//
// Coordinates are zero-based indices into the arrays of the corpus the path
// was built from.
type VersePath interface {
	Collection() Collection
	VerseIndex() uint16
	String() string
	versePath()
}

// BookPath addresses a verse in the OT, NT, BoM or PoGP.
type BookPath struct {
	Volume  Collection
	Book    uint8
	Chapter uint8
	Verse   uint16
}

// SectionPath addresses a verse in the Doctrine and Covenants.
type SectionPath struct {
	Section uint8
	Verse   uint16
}

func (p BookPath) Collection() Collection { return p.Volume }
func (p BookPath) VerseIndex() uint16     { return p.Verse }
func (BookPath) versePath()               {}

func (p BookPath) String() string {
	return fmt.Sprintf("%s:%d.%d.%d", p.Volume.Key(), p.Book, p.Chapter, p.Verse)
}

func (SectionPath) Collection() Collection { return DC }
func (p SectionPath) VerseIndex() uint16   { return p.Verse }
func (SectionPath) versePath()             {}

func (p SectionPath) String() string {
	return fmt.Sprintf("%s:%d.%d", DC.Key(), p.Section, p.Verse)
}

func OldTestament(book, chapter uint8, verse uint16) VersePath {
	return BookPath{Volume: OT, Book: book, Chapter: chapter, Verse: verse}
}

func NewTestament(book, chapter uint8, verse uint16) VersePath {
	return BookPath{Volume: NT, Book: book, Chapter: chapter, Verse: verse}
}

func BookOfMormon(book, chapter uint8, verse uint16) VersePath {
	return BookPath{Volume: BoM, Book: book, Chapter: chapter, Verse: verse}
}

func PearlOfGreatPrice(book, chapter uint8, verse uint16) VersePath {
	return BookPath{Volume: PoGP, Book: book, Chapter: chapter, Verse: verse}
}

func DoctrineAndCovenants(section uint8, verse uint16) VersePath {
	return SectionPath{Section: section, Verse: verse}
}

// ParseVersePath parses the String form of a VersePath.
func ParseVersePath(s string) (VersePath, error) {
	key, coords, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("%w: malformed verse path %q", apperrors.ErrInvalidInput, s)
	}
	col, err := ParseCollection(key)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(coords, ".")
	nums := make([]uint64, len(parts))
	for i, part := range parts {
		bits := 8
		if i == len(parts)-1 {
			bits = 16
		}
		n, err := strconv.ParseUint(part, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed verse path %q", apperrors.ErrInvalidInput, s)
		}
		nums[i] = n
	}
	if col == DC {
		if len(nums) != 2 {
			return nil, fmt.Errorf("%w: malformed verse path %q", apperrors.ErrInvalidInput, s)
		}
		return DoctrineAndCovenants(uint8(nums[0]), uint16(nums[1])), nil
	}
	if len(nums) != 3 {
		return nil, fmt.Errorf("%w: malformed verse path %q", apperrors.ErrInvalidInput, s)
	}
	return BookPath{Volume: col, Book: uint8(nums[0]), Chapter: uint8(nums[1]), Verse: uint16(nums[2])}, nil
}

// Resolve returns the verse the path points at.
func (c *Corpus) Resolve(path VersePath) (*Verse, error) {
	verses, err := c.siblings(path)
	if err != nil {
		return nil, err
	}
	i := int(path.VerseIndex())
	if i >= len(verses) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownPath, path)
	}
	return &verses[i], nil
}

// ChapterPaths returns the path of every verse sharing a chapter (or D&C
// section) with path, in order.
func (c *Corpus) ChapterPaths(path VersePath) ([]VersePath, error) {
	verses, err := c.siblings(path)
	if err != nil {
		return nil, err
	}
	paths := make([]VersePath, len(verses))
	for i := range verses {
		switch p := path.(type) {
		case BookPath:
			p.Verse = uint16(i)
			paths[i] = p
		case SectionPath:
			p.Verse = uint16(i)
			paths[i] = p
		default:
			panic(fmt.Sprintf("corpus: unhandled verse path %T", path))
		}
	}
	return paths, nil
}

// BookName returns the name of the book containing path. Doctrine and
// Covenants paths have no book and return "".
func (c *Corpus) BookName(path VersePath) (string, error) {
	switch p := path.(type) {
	case BookPath:
		book, err := c.book(p)
		if err != nil {
			return "", err
		}
		return book.Name, nil
	case SectionPath:
		return "", nil
	default:
		panic(fmt.Sprintf("corpus: unhandled verse path %T", path))
	}
}

// Link builds the canonical study URL for a verse. Pearl of Great Price
// pages need an explicit language.
func (c *Corpus) Link(path VersePath) (string, error) {
	vol := c.Volume(path.Collection())
	switch p := path.(type) {
	case BookPath:
		book, err := c.book(p)
		if err != nil {
			return "", err
		}
		link := fmt.Sprintf("%s/%s/%s/%d.%d", BaseURL, vol.Slug, book.Slug, int(p.Chapter)+1, int(p.Verse)+1)
		if p.Volume == PoGP {
			link += "?lang=eng"
		}
		return link, nil
	case SectionPath:
		return fmt.Sprintf("%s/%s/%d.%d", BaseURL, vol.Slug, int(p.Section)+1, int(p.Verse)+1), nil
	default:
		panic(fmt.Sprintf("corpus: unhandled verse path %T", path))
	}
}

func (c *Corpus) book(p BookPath) (*Book, error) {
	if p.Volume == DC {
		return nil, fmt.Errorf("%w: %s has no books", apperrors.ErrUnknownPath, p)
	}
	books := c.Volume(p.Volume).Books
	if int(p.Book) >= len(books) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownPath, p)
	}
	return &books[p.Book], nil
}

func (c *Corpus) siblings(path VersePath) ([]Verse, error) {
	switch p := path.(type) {
	case BookPath:
		book, err := c.book(p)
		if err != nil {
			return nil, err
		}
		if int(p.Chapter) >= len(book.Chapters) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownPath, p)
		}
		return book.Chapters[p.Chapter].Verses, nil
	case SectionPath:
		sections := c.DoctrineAndCovenants.Sections
		if int(p.Section) >= len(sections) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownPath, p)
		}
		return sections[p.Section].Verses, nil
	default:
		panic(fmt.Sprintf("corpus: unhandled verse path %T", path))
	}
}
