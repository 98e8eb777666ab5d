// Package indexer builds the search index for a corpus: every verse gets a
// ScriptureID and every word occurrence is recorded under its stem.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/packing"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/tracing"
)

// Options configures a Builder. The zero value builds without metrics or
// trace logging.
type Options struct {
	Metrics *metrics.Metrics
	// Trace logs the span tree of every build.
	Trace bool
}

// Builder turns a corpus into an index.Snapshot. It holds no per-build state
// and may be reused.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:   opts,
		logger: slog.Default().With("component", "indexer"),
	}
}

type occurrence struct {
	term string
	span index.Span
}

type tokenizedVerse struct {
	path  corpus.VersePath
	words []occurrence
}

// Build indexes c. Collections are tokenized concurrently; ids are then
// assigned in a single pass over OT, NT, BoM, D&C and PoGP so the result does
// not depend on scheduling. Any malformed verse, id overflow or occurrence
// list that would not pack aborts the build.
func (b *Builder) Build(ctx context.Context, c *corpus.Corpus) (*index.Snapshot, error) {
	start := time.Now()
	ctx, root := tracing.StartSpan(ctx, "index.build", "")
	defer func() {
		root.End()
		if b.opts.Trace {
			root.Log(b.logger)
		}
	}()

	var tokenized [corpus.NumCollections][]tokenizedVerse
	g, gctx := errgroup.WithContext(ctx)
	for i, col := range corpus.Collections {
		g.Go(func() error {
			_, span := tracing.StartChildSpan(gctx, "index.tokenize")
			defer span.End()
			span.SetAttr("collection", col.Key())

			verses, err := tokenizeCollection(gctx, c, col)
			if err != nil {
				return fmt.Errorf("tokenizing %s: %w", col, err)
			}
			tokenized[i] = verses
			span.SetAttr("verses", len(verses))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	_, assign := tracing.StartChildSpan(ctx, "index.assign")
	snap := &index.Snapshot{Words: index.NewWordsIndex()}
	for i, col := range corpus.Collections {
		for _, v := range tokenized[i] {
			id, err := snap.Paths.Append(v.path)
			if err != nil {
				assign.End()
				return nil, err
			}
			for _, w := range v.words {
				snap.Words.Add(w.term, id, w.span)
			}
		}
		if b.opts.Metrics != nil {
			b.opts.Metrics.VersesIndexedTotal.WithLabelValues(col.Key()).Add(float64(len(tokenized[i])))
		}
		b.logger.Info("collection indexed",
			"collection", col.Key(),
			"verses", len(tokenized[i]),
			"last_id", snap.Paths.Len(),
		)
	}
	assign.SetAttr("ids", snap.Paths.Len())
	assign.End()

	if b.opts.Metrics != nil {
		b.opts.Metrics.IndexStems.Set(float64(snap.Words.Len()))
		b.opts.Metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	}
	b.logger.Info("index built",
		"verses", snap.Paths.Len(),
		"stems", snap.Words.Len(),
		"occurrences", snap.Words.SpanCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

func tokenizeCollection(ctx context.Context, c *corpus.Corpus, col corpus.Collection) ([]tokenizedVerse, error) {
	var out []tokenizedVerse
	err := c.Walk(col, func(path corpus.VersePath, v *corpus.Verse) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		words, err := tokenizeVerse(v)
		if err != nil {
			return fmt.Errorf("%s: %w", v.Reference, err)
		}
		out = append(out, tokenizedVerse{path: path, words: words})
		return nil
	})
	return out, err
}

// tokenizeVerse checks every occurrence against the packing limits so a
// build that succeeds can always be encoded.
func tokenizeVerse(v *corpus.Verse) ([]occurrence, error) {
	tokens := tokenizer.Tokenize(v.Text)
	words := make([]occurrence, 0, len(tokens))
	perTerm := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		if tok.Start > packing.MaxOffset {
			return nil, fmt.Errorf("%w: %q at offset %d", apperrors.ErrPackCapacity, tok.Word, tok.Start)
		}
		if tok.End-tok.Start > packing.MaxLength {
			return nil, fmt.Errorf("%w: %q is %d bytes long", apperrors.ErrPackCapacity, tok.Word, tok.End-tok.Start)
		}
		perTerm[tok.Term]++
		if perTerm[tok.Term] > packing.MaxEntries {
			return nil, fmt.Errorf("%w: %q occurs more than %d times", apperrors.ErrPackCapacity, tok.Term, packing.MaxEntries)
		}
		words = append(words, occurrence{
			term: tok.Term,
			span: index.Span{Offset: uint16(tok.Start), Length: uint8(tok.End - tok.Start)},
		})
	}
	return words, nil
}
