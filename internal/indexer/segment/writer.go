package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/mph"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Info describes a written artifact.
type Info struct {
	Path      string
	Size      int64
	Digest    string
	Verses    int
	Stems     int
	CreatedAt time.Time
}

// Writer encodes snapshots into artifact files.
type Writer struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewWriter() *Writer {
	return &Writer{
		logger: slog.Default().With("component", "segment"),
		now:    time.Now,
	}
}

// Write encodes snap and c and atomically replaces path with the result. It
// writes to a .tmp file first and renames on success.
func (w *Writer) Write(path string, snap *index.Snapshot, c *corpus.Corpus) (Info, error) {
	data, err := w.Encode(snap, c)
	if err != nil {
		return Info{}, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Info{}, fmt.Errorf("creating artifact directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Info{}, fmt.Errorf("creating temp artifact file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(tmpPath)
		return Info{}, fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return Info{}, fmt.Errorf("syncing artifact file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return Info{}, fmt.Errorf("renaming artifact file: %w", err)
	}

	header := decodeHeader(data)
	info := Info{
		Path:      path,
		Size:      int64(len(data)),
		Digest:    hex.EncodeToString(data[len(data)-FooterSize:]),
		Verses:    int(header.VerseCount),
		Stems:     int(header.StemCount),
		CreatedAt: header.Created(),
	}
	w.logger.Info("artifact written",
		"path", path,
		"bytes", info.Size,
		"verses", info.Verses,
		"stems", info.Stems,
		"digest", info.Digest,
	)
	return info, nil
}

// Encode renders snap and c into artifact bytes.
func (w *Writer) Encode(snap *index.Snapshot, c *corpus.Corpus) ([]byte, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	entries := snap.Words.Snapshot()
	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		VerseCount: uint32(snap.Paths.Len()),
		StemCount:  uint32(len(entries)),
		CreatedAt:  w.now().Unix(),
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, HeaderSize))

	header.PathsOffset = int64(buf.Len())
	for _, p := range snap.Paths {
		buf.Write(encodePath(p))
	}
	buf.Write(make([]byte, align8(buf.Len())-buf.Len()))

	header.WordsOffset = int64(buf.Len())
	if len(entries) > 0 {
		builder := mph.Builder()
		for _, entry := range entries {
			bucket, err := encodeBucket(entry.Postings)
			if err != nil {
				return nil, fmt.Errorf("encoding %q: %w", entry.Term, err)
			}
			builder.Add([]byte(entry.Term), bucket)
		}
		table, err := builder.Build()
		if err != nil {
			return nil, fmt.Errorf("building perfect hash: %w", err)
		}
		if err := table.Write(&buf); err != nil {
			return nil, fmt.Errorf("writing words table: %w", err)
		}
	}
	header.WordsSize = int64(buf.Len()) - header.WordsOffset

	header.CorpusOffset = int64(buf.Len())
	if err := compressCorpus(&buf, c); err != nil {
		return nil, err
	}
	header.CorpusSize = int64(buf.Len()) - header.CorpusOffset

	data := buf.Bytes()
	copy(data[:HeaderSize], header.encode())
	digest := blake3.Sum256(data)
	return append(data, digest[:]...), nil
}

func compressCorpus(buf *bytes.Buffer, c *corpus.Corpus) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling corpus: %w", err)
	}
	zw, err := xz.NewWriter(buf)
	if err != nil {
		return fmt.Errorf("creating xz writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return fmt.Errorf("compressing corpus: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing corpus: %w", err)
	}
	return nil
}

func encodePath(p corpus.VersePath) []byte {
	b := make([]byte, PathSize)
	b[0] = byte(p.Collection())
	switch p := p.(type) {
	case corpus.BookPath:
		b[1], b[2] = p.Book, p.Chapter
	case corpus.SectionPath:
		b[1] = p.Section
	default:
		panic(fmt.Sprintf("segment: unhandled verse path %T", p))
	}
	binary.LittleEndian.PutUint16(b[3:], p.VerseIndex())
	return b
}

func decodePath(b []byte) (corpus.VersePath, error) {
	col := corpus.Collection(b[0])
	verse := binary.LittleEndian.Uint16(b[3:])
	switch col {
	case corpus.OT, corpus.NT, corpus.BoM, corpus.PoGP:
		return corpus.BookPath{Volume: col, Book: b[1], Chapter: b[2], Verse: verse}, nil
	case corpus.DC:
		return corpus.DoctrineAndCovenants(b[1], verse), nil
	default:
		return nil, fmt.Errorf("%w: unknown collection tag %d", apperrors.ErrCorruptArtifact, b[0])
	}
}
