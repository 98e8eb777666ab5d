package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// PathsIndex maps ScriptureID to VersePath. Ids are dense, so the table is a
// slice addressed by id-1.
type PathsIndex []corpus.VersePath

// Append assigns the next id to path.
func (p *PathsIndex) Append(path corpus.VersePath) (ScriptureID, error) {
	if len(*p) >= MaxScriptureID {
		return 0, fmt.Errorf("%w: more than %d verses", apperrors.ErrIDOverflow, MaxScriptureID)
	}
	*p = append(*p, path)
	return ScriptureID(len(*p)), nil
}

// Lookup returns the path of id.
func (p PathsIndex) Lookup(id ScriptureID) (corpus.VersePath, bool) {
	if id == 0 || int(id) > len(p) {
		return nil, false
	}
	return p[id-1], true
}

// Len returns the number of assigned ids.
func (p PathsIndex) Len() int { return len(p) }

// VersePathsIndex is the reverse of a PathsIndex.
type VersePathsIndex map[corpus.VersePath]ScriptureID

// NewVersePathsIndex derives the reverse mapping from paths.
func NewVersePathsIndex(paths PathsIndex) VersePathsIndex {
	v := make(VersePathsIndex, len(paths))
	for i, path := range paths {
		v[path] = ScriptureID(i + 1)
	}
	return v
}
