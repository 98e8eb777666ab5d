// Package parser turns a raw query into the set of stems to look up.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
)

// Term is one distinct stem of a query together with every query word that
// produced it, as typed.
type Term struct {
	Stem  string
	Words []string
}

type QueryPlan struct {
	Terms    []Term
	RawQuery string
}

// Parse tokenizes query with the same tokenizer used to build the index and
// deduplicates the stems, keeping first-seen order.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]Term, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	seen := make(map[string]int)
	for _, tok := range tokenizer.Tokenize(query) {
		if i, ok := seen[tok.Term]; ok {
			plan.Terms[i].Words = appendUnique(plan.Terms[i].Words, tok.Word)
			continue
		}
		seen[tok.Term] = len(plan.Terms)
		plan.Terms = append(plan.Terms, Term{Stem: tok.Term, Words: []string{tok.Word}})
	}
	return plan
}

// Stems returns the distinct stems in plan order.
func (p *QueryPlan) Stems() []string {
	out := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		out[i] = t.Stem
	}
	return out
}

// Empty reports whether the query produced no terms.
func (p *QueryPlan) Empty() bool { return len(p.Terms) == 0 }

func appendUnique(words []string, w string) []string {
	for _, existing := range words {
		if existing == w {
			return words
		}
	}
	return append(words, w)
}
