// Package tokenizer splits verse text into word spans and stems them.
// The same functions run when the index is built and when a query is
// parsed, so a word in a verse and the same word typed into a query always
// land on the same stem.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
)

const (
	enDash = '–'
	emDash = '—'
)

// Span is a half-open byte range [Start, End) into the original text.
type Span struct {
	Start int
	End   int
}

// Len returns the span width in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Token is one word of the input together with its stem.
type Token struct {
	Term  string // stemmed, lower-cased key
	Word  string // the word as it appears in the source text
	Start int
	End   int
}

// IsWordRune reports whether r belongs to a word.
func IsWordRune(r rune) bool {
	if r == enDash || r == emDash {
		return false
	}
	return r == '-' || r == 'æ' || r == 'Æ' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

// possessiveAt reports the width of a possessive "'s" starting at i, or 0.
// The s must be followed by a non-word rune or the end of the text.
func possessiveAt(text string, i int) int {
	r, n := utf8.DecodeRuneInString(text[i:])
	if !isApostrophe(r) {
		return 0
	}
	j := i + n
	if j >= len(text) || (text[j] != 's' && text[j] != 'S') {
		return 0
	}
	if j+1 < len(text) {
		next, _ := utf8.DecodeRuneInString(text[j+1:])
		if IsWordRune(next) {
			return 0
		}
	}
	return j + 1 - i
}

// Spans yields the word spans of text in order. Offsets refer to text as
// given, not to its normalized form, so callers can slice the original.
func Spans(text string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		start := -1
		alnum := false
		flush := func(end int) bool {
			ok := true
			if start >= 0 && alnum {
				ok = yield(Span{Start: start, End: end})
			}
			start, alnum = -1, false
			return ok
		}
		for i := 0; i < len(text); {
			r, n := utf8.DecodeRuneInString(text[i:])
			if IsWordRune(r) {
				if start < 0 {
					start = i
				}
				if r != '-' {
					alnum = true
				}
				i += n
				continue
			}
			if start >= 0 {
				if w := possessiveAt(text, i); w > 0 {
					if !flush(i) {
						return
					}
					i += w
					continue
				}
			}
			if !flush(i) {
				return
			}
			i += n
		}
		flush(len(text))
	}
}

// Normalize applies the textual normalizations used before tokenizing:
// dashes become spaces, possessive 's is dropped and the result is
// lower-cased.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, n := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == enDash || r == emDash:
			b.WriteByte(' ')
		case i > 0 && possessiveAt(text, i) > 0:
			prev, _ := utf8.DecodeLastRuneInString(text[:i])
			if IsWordRune(prev) {
				i += possessiveAt(text, i)
				continue
			}
			b.WriteString(strings.ToLower(text[i : i+n]))
		default:
			b.WriteString(strings.ToLower(text[i : i+n]))
		}
		i += n
	}
	return b.String()
}

// Stem lower-cases word and reduces it with the Porter2 English stemmer.
func Stem(word string) string {
	return english.Stem(strings.ToLower(word), true)
}

// Tokenize returns every word of text with its stem.
func Tokenize(text string) []Token {
	var tokens []Token
	for sp := range Spans(text) {
		word := text[sp.Start:sp.End]
		tokens = append(tokens, Token{
			Term:  Stem(word),
			Word:  word,
			Start: sp.Start,
			End:   sp.End,
		})
	}
	return tokens
}
