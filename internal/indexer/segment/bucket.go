package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/packing"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

// Bucket is the encoded postings of one stem: RecordSize-byte records sorted
// by id. It aliases the artifact bytes.
type Bucket []byte

// Record is one verse's packed occurrences within a bucket.
type Record struct {
	ID      index.ScriptureID
	Offsets uint256.Int
	Lengths uint256.Int
}

// Spans unpacks the record's occurrences.
func (r Record) Spans() ([]index.Span, error) {
	return packing.UnpackSpans(r.Offsets, r.Lengths)
}

// Len returns the number of records.
func (b Bucket) Len() int { return len(b) / RecordSize }

func (b Bucket) id(i int) index.ScriptureID {
	return index.ScriptureID(binary.LittleEndian.Uint16(b[i*RecordSize:]))
}

// At decodes record i.
func (b Bucket) At(i int) Record {
	rec := b[i*RecordSize : (i+1)*RecordSize]
	return Record{
		ID:      index.ScriptureID(binary.LittleEndian.Uint16(rec)),
		Offsets: packing.ReadOffsets(rec[2:]),
		Lengths: packing.ReadLengths(rec[2+packing.OffsetsSize:]),
	}
}

// Find binary-searches the bucket for id without allocating.
func (b Bucket) Find(id index.ScriptureID) (Record, bool) {
	lo, hi := 0, b.Len()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if b.id(mid) < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < b.Len() && b.id(lo) == id {
		return b.At(lo), true
	}
	return Record{}, false
}

// Postings decodes every record.
func (b Bucket) Postings() (index.PostingList, error) {
	pl := make(index.PostingList, b.Len())
	for i := range pl {
		rec := b.At(i)
		spans, err := rec.Spans()
		if err != nil {
			return nil, fmt.Errorf("id %d: %w", rec.ID, err)
		}
		pl[i] = index.Posting{ID: rec.ID, Spans: spans}
	}
	return pl, nil
}

func encodeBucket(postings index.PostingList) (Bucket, error) {
	b := make(Bucket, len(postings)*RecordSize)
	for i, p := range postings {
		offsets, lengths, err := packing.PackSpans(p.Spans)
		if err != nil {
			return nil, fmt.Errorf("id %d: %w", p.ID, err)
		}
		rec := b[i*RecordSize : (i+1)*RecordSize]
		binary.LittleEndian.PutUint16(rec, uint16(p.ID))
		packing.PutOffsets(rec[2:], &offsets)
		packing.PutLengths(rec[2+packing.OffsetsSize:], &lengths)
	}
	return b, nil
}

func validBucket(b []byte) error {
	if len(b)%RecordSize != 0 {
		return fmt.Errorf("%w: bucket of %d bytes", apperrors.ErrCorruptArtifact, len(b))
	}
	return nil
}
