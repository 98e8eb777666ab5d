package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Snapshot is a complete build: every stem's postings and every verse's path.
type Snapshot struct {
	Words *WordsIndex
	Paths PathsIndex
}

// Postings returns the postings of term.
func (s *Snapshot) Postings(term string) PostingList {
	return s.Words.Lookup(term)
}

// Validate checks that every id referenced by the words index has a path.
func (s *Snapshot) Validate() error {
	for _, entry := range s.Words.Snapshot() {
		for _, p := range entry.Postings {
			if _, ok := s.Paths.Lookup(p.ID); !ok {
				return fmt.Errorf("%w: term %q references id %d", apperrors.ErrCorruptArtifact, entry.Term, p.ID)
			}
		}
	}
	return nil
}

// Memory pairs a snapshot with the corpus it was built from so it can be
// queried without encoding an artifact first.
type Memory struct {
	*Snapshot
	Source *corpus.Corpus
}

func (m Memory) Postings(term string) (PostingList, error) { return m.Words.Lookup(term), nil }
func (m Memory) Paths() PathsIndex                         { return m.Snapshot.Paths }
func (m Memory) Corpus() *corpus.Corpus                    { return m.Source }
