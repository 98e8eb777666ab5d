// Package executor evaluates queries against a loaded index and renders the
// matching verses.
package executor

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/preferences"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
)

// WarmQuery is run by Warm to touch every structure a real query uses.
const WarmQuery = "god and the faith"

// Index is the read-only view of a built index the executor needs.
type Index interface {
	Postings(term string) (index.PostingList, error)
	Paths() index.PathsIndex
	Corpus() *corpus.Corpus
}

type SearchResult struct {
	Query     string         `json:"query"`
	Mode      string         `json:"mode"`
	TotalHits int            `json:"total_hits"`
	Results   []string       `json:"results"`
	TermStats map[string]int `json:"term_stats"`
}

// Executor is the handle through which every query reaches the index. It is
// built once and shared; queries never mutate it.
type Executor struct {
	idx        Index
	paths      index.PathsIndex
	versePaths index.VersePathsIndex
	corpus     *corpus.Corpus
	logger     *slog.Logger
}

func New(idx Index) *Executor {
	paths := idx.Paths()
	return &Executor{
		idx:        idx,
		paths:      paths,
		versePaths: index.NewVersePathsIndex(paths),
		corpus:     idx.Corpus(),
		logger:     slog.Default().With("component", "query-executor"),
	}
}

// Search returns the rendered result lines for query in canonical corpus
// order. An empty query, no enabled collection or no eligible book yields an
// empty result rather than an error.
func (e *Executor) Search(query string, prefs *preferences.Preferences) ([]string, error) {
	res, err := e.Execute(context.Background(), query, prefs)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

type termHits struct {
	term     parser.Term
	postings index.PostingList
	ids      *roaring.Bitmap
	// spans holds occurrences that survived the match mode, keyed by id.
	// It is nil under MatchStem, where every posting span counts.
	spans map[index.ScriptureID][]index.Span
}

func (e *Executor) Execute(ctx context.Context, query string, prefs *preferences.Preferences) (*SearchResult, error) {
	return e.ExecutePlan(ctx, parser.Parse(query), prefs)
}

// ExecutePlan runs an already parsed query, for callers that need the plan
// themselves.
func (e *Executor) ExecutePlan(ctx context.Context, plan *parser.QueryPlan, prefs *preferences.Preferences) (*SearchResult, error) {
	start := time.Now()
	mode := ModeFor(prefs)
	result := &SearchResult{
		Query:     plan.RawQuery,
		Mode:      mode.String(),
		Results:   []string{},
		TermStats: map[string]int{},
	}
	if !prefs.CanSearch(plan.RawQuery) || plan.Empty() {
		return result, nil
	}

	allowed := make(map[index.ScriptureID]bool)
	hits := make([]termHits, 0, len(plan.Terms))
	for _, term := range plan.Terms {
		postings, err := e.idx.Postings(term.Stem)
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", term.Stem, err)
		}
		th := termHits{term: term, postings: postings, ids: roaring.New()}
		if mode != MatchStem {
			th.spans = make(map[index.ScriptureID][]index.Span)
		}
		for _, p := range postings {
			ok, err := e.allows(p.ID, prefs, allowed)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if th.spans != nil {
				kept, err := e.matchSpans(p, term, mode)
				if err != nil {
					return nil, err
				}
				if len(kept) == 0 {
					continue
				}
				th.spans[p.ID] = kept
			}
			th.ids.Add(uint32(p.ID))
		}
		result.TermStats[term.Stem] = int(th.ids.GetCardinality())
		hits = append(hits, th)
	}

	matched := roaring.New()
	for _, th := range hits {
		matched.Or(th.ids)
	}
	if prefs.CombineMode() == preferences.And {
		for _, th := range hits {
			matched.And(th.ids)
		}
	}

	type line struct {
		order index.ScriptureID
		text  string
	}
	lines := make([]line, 0, matched.GetCardinality())
	it := matched.Iterator()
	for it.HasNext() {
		id := index.ScriptureID(it.Next())
		path, ok := e.paths.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: id %d has no path", apperrors.ErrCorruptArtifact, id)
		}
		lists := make([][]index.Span, 0, len(hits))
		for _, th := range hits {
			if !th.ids.Contains(uint32(id)) {
				continue
			}
			if th.spans != nil {
				lists = append(lists, th.spans[id])
				continue
			}
			if p, ok := th.postings.Find(id); ok {
				lists = append(lists, p.Spans)
			}
		}
		text, err := e.render(path, merger.MergeSpans(lists))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line{order: e.versePaths[path], text: text})
	}
	slices.SortFunc(lines, func(a, b line) int { return cmp.Compare(a.order, b.order) })
	for _, l := range lines {
		result.Results = append(result.Results, l.text)
	}
	result.TotalHits = len(result.Results)

	logger.FromContext(ctx).Debug("query executed",
		"component", "query-executor",
		"query", plan.RawQuery,
		"terms", plan.Stems(),
		"mode", mode.String(),
		"combine", prefs.CombineMode().String(),
		"results", result.TotalHits,
		"duration_us", time.Since(start).Microseconds(),
	)
	return result, nil
}

// allows applies the collection and book filter to id, memoizing per query.
func (e *Executor) allows(id index.ScriptureID, prefs *preferences.Preferences, memo map[index.ScriptureID]bool) (bool, error) {
	if ok, seen := memo[id]; seen {
		return ok, nil
	}
	path, ok := e.paths.Lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: id %d has no path", apperrors.ErrCorruptArtifact, id)
	}
	var allowed bool
	switch p := path.(type) {
	case corpus.BookPath:
		name, err := e.corpus.BookName(p)
		if err != nil {
			return false, fmt.Errorf("%w: %v", apperrors.ErrCorruptArtifact, err)
		}
		allowed = prefs.Allows(p.Volume, name, 0)
	case corpus.SectionPath:
		allowed = prefs.Allows(corpus.DC, "", int(p.Section)+1)
	default:
		panic(fmt.Sprintf("executor: unhandled verse path %T", path))
	}
	memo[id] = allowed
	return allowed, nil
}

func (e *Executor) matchSpans(p index.Posting, term parser.Term, mode MatchMode) ([]index.Span, error) {
	path, _ := e.paths.Lookup(p.ID)
	verse, err := e.corpus.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptArtifact, err)
	}
	var kept []index.Span
	for _, s := range p.Spans {
		if s.End() > len(verse.Text) {
			return nil, fmt.Errorf("%w: span past end of %s", apperrors.ErrCorruptArtifact, verse.Reference)
		}
		if mode.accepts(verse.Text[s.Offset:s.End()], term.Words) {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

func (e *Executor) render(path corpus.VersePath, spans []index.Span) (string, error) {
	verse, err := e.corpus.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrCorruptArtifact, err)
	}
	link, err := e.corpus.Link(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrCorruptArtifact, err)
	}
	marked := highlight.Mark(verse.Text, highlight.Coalesce(spans))
	return highlight.Line(link, path.String(), verse.Reference, marked), nil
}

// ChapterPreview renders every verse of the chapter (or section) containing
// path, without highlights.
func (e *Executor) ChapterPreview(path corpus.VersePath) ([]string, error) {
	if _, ok := e.versePaths[path]; !ok {
		return nil, fmt.Errorf("%w: %s is not indexed", apperrors.ErrUnknownPath, path)
	}
	paths, err := e.corpus.ChapterPaths(path)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(paths))
	for _, p := range paths {
		line, err := e.render(p, nil)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Warm runs a representative query so the first user query does not pay
// for cold caches.
func (e *Executor) Warm() error {
	start := time.Now()
	res, err := e.Execute(context.Background(), WarmQuery, preferences.Bootstrap())
	if err != nil {
		return fmt.Errorf("warming searcher: %w", err)
	}
	e.logger.Info("searcher warmed",
		"verses", e.paths.Len(),
		"results", res.TotalHits,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// VerseCount returns the number of indexed verses.
func (e *Executor) VerseCount() int { return e.paths.Len() }
