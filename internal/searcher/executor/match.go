package executor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
)

// MatchMode decides which occurrences of a stem count as hits. It is chosen
// once per query from the preferences.
type MatchMode int

const (
	// MatchStem accepts every occurrence of the stem.
	MatchStem MatchMode = iota
	// MatchExact requires the verse word to equal a query word ignoring case.
	MatchExact
	// MatchCase requires the verse word and a query word to agree byte for
	// byte over their common case-insensitive prefix.
	MatchCase
	// MatchExactCase requires the verse word to equal a query word.
	MatchExactCase
)

func ModeFor(p *preferences.Preferences) MatchMode {
	switch {
	case p.Exact && p.CaseSensitive:
		return MatchExactCase
	case p.Exact:
		return MatchExact
	case p.CaseSensitive:
		return MatchCase
	default:
		return MatchStem
	}
}

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchCase:
		return "case"
	case MatchExactCase:
		return "exact_case"
	default:
		return "stem"
	}
}

// accepts reports whether word, as it appears in a verse, matches any of the
// query words that produced the same stem.
func (m MatchMode) accepts(word string, queryWords []string) bool {
	for _, q := range queryWords {
		var ok bool
		switch m {
		case MatchStem:
			ok = true
		case MatchExact:
			ok = strings.EqualFold(word, q)
		case MatchCase:
			ok = samePrefixCase(word, q)
		case MatchExactCase:
			ok = word == q
		}
		if ok {
			return true
		}
	}
	return false
}

// samePrefixCase walks both words while they agree ignoring case and fails
// on the first rune that differs only in case.
func samePrefixCase(a, b string) bool {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if unicode.ToLower(ra) != unicode.ToLower(rb) {
			return true
		}
		if ra != rb {
			return false
		}
		a, b = a[na:], b[nb:]
	}
	return true
}
