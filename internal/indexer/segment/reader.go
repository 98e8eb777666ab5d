package segment

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/mph"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Reader serves lookups from a loaded artifact. It is immutable and safe for
// concurrent use.
type Reader struct {
	data   []byte
	header Header
	paths  index.PathsIndex
	words  *mph.CHD
	corpus *corpus.Corpus
}

// Open reads and verifies the artifact at path.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	r, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return r, nil
}

// Load verifies data and decodes its paths table and corpus. The words table
// is used in place; data must not be modified afterwards.
func Load(data []byte) (*Reader, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", apperrors.ErrCorruptArtifact, len(data))
	}
	header := decodeHeader(data)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptArtifact, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrCorruptArtifact, header.Version)
	}
	body := data[:len(data)-FooterSize]
	digest := blake3.Sum256(body)
	if !bytes.Equal(digest[:], data[len(body):]) {
		return nil, fmt.Errorf("%w: digest mismatch", apperrors.ErrCorruptArtifact)
	}

	pathsEnd := header.PathsOffset + int64(header.VerseCount)*int64(PathSize)
	if header.PathsOffset != int64(HeaderSize) ||
		pathsEnd > header.WordsOffset ||
		header.WordsOffset%8 != 0 ||
		header.WordsOffset+header.WordsSize != header.CorpusOffset ||
		header.CorpusOffset+header.CorpusSize != int64(len(body)) {
		return nil, fmt.Errorf("%w: inconsistent section table", apperrors.ErrCorruptArtifact)
	}

	r := &Reader{data: data, header: header}

	r.paths = make(index.PathsIndex, header.VerseCount)
	for i := range r.paths {
		off := header.PathsOffset + int64(i*PathSize)
		p, err := decodePath(data[off : off+int64(PathSize)])
		if err != nil {
			return nil, fmt.Errorf("path of id %d: %w", i+1, err)
		}
		r.paths[i] = p
	}

	if header.WordsSize > 0 {
		words, err := mph.Mmap(data[header.WordsOffset : header.WordsOffset+header.WordsSize])
		if err != nil {
			return nil, fmt.Errorf("%w: words table: %v", apperrors.ErrCorruptArtifact, err)
		}
		if words.Len() != int(header.StemCount) {
			return nil, fmt.Errorf("%w: %d stems, header says %d", apperrors.ErrCorruptArtifact, words.Len(), header.StemCount)
		}
		r.words = words
	} else if header.StemCount != 0 {
		return nil, fmt.Errorf("%w: missing words table", apperrors.ErrCorruptArtifact)
	}

	c, err := decompressCorpus(data[header.CorpusOffset : header.CorpusOffset+header.CorpusSize])
	if err != nil {
		return nil, err
	}
	for _, p := range r.paths {
		if _, err := c.Resolve(p); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCorruptArtifact, err)
		}
	}
	r.corpus = c
	return r, nil
}

func decompressCorpus(b []byte) (*corpus.Corpus, error) {
	zr, err := xz.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: corpus section: %v", apperrors.ErrCorruptArtifact, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: corpus section: %v", apperrors.ErrCorruptArtifact, err)
	}
	var c corpus.Corpus
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: corpus section: %v", apperrors.ErrCorruptArtifact, err)
	}
	return &c, nil
}

// Bucket returns the encoded postings of term, or an empty bucket for an
// unknown stem.
func (r *Reader) Bucket(term string) (Bucket, error) {
	if r.words == nil {
		return nil, nil
	}
	b := r.words.Get([]byte(term))
	if err := validBucket(b); err != nil {
		return nil, fmt.Errorf("term %q: %w", term, err)
	}
	return Bucket(b), nil
}

// Postings decodes the postings of term.
func (r *Reader) Postings(term string) (index.PostingList, error) {
	b, err := r.Bucket(term)
	if err != nil || b.Len() == 0 {
		return nil, err
	}
	return b.Postings()
}

// Paths returns the decoded id to path table.
func (r *Reader) Paths() index.PathsIndex { return r.paths }

// Corpus returns the corpus stored in the artifact.
func (r *Reader) Corpus() *corpus.Corpus { return r.corpus }

// Header returns the artifact header.
func (r *Reader) Header() Header { return r.header }

// Size returns the artifact size in bytes.
func (r *Reader) Size() int { return len(r.data) }

// Digest returns the hex BLAKE3 digest stored in the footer.
func (r *Reader) Digest() string {
	return hex.EncodeToString(r.data[len(r.data)-FooterSize:])
}

// Stats summarizes the artifact for operators.
type Stats struct {
	Verses        int            `json:"verses"`
	Stems         int            `json:"stems"`
	Bytes         int            `json:"bytes"`
	WordsBytes    int64          `json:"wordsBytes"`
	CorpusBytes   int64          `json:"corpusBytes"`
	Digest        string         `json:"digest"`
	Created       string         `json:"created"`
	PerCollection map[string]int `json:"perCollection"`
}

func (r *Reader) Stats() Stats {
	per := make(map[string]int, corpus.NumCollections)
	for _, p := range r.paths {
		per[p.Collection().Key()]++
	}
	return Stats{
		Verses:        len(r.paths),
		Stems:         int(r.header.StemCount),
		Bytes:         len(r.data),
		WordsBytes:    r.header.WordsSize,
		CorpusBytes:   r.header.CorpusSize,
		Digest:        r.Digest(),
		Created:       r.header.Created().Format("2006-01-02T15:04:05Z"),
		PerCollection: per,
	}
}
