// Package packing folds a verse's occurrence offsets and lengths into fixed
// width integers. Each entry is stored with a +1 bias in its own chunk, so a
// zero entry stays distinguishable from the all-zero terminator and an empty
// list packs to 0.
package packing

import (
	"fmt"
	"slices"

	"github.com/holiman/uint256"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
)

const (
	OffsetBits = 11
	LengthBits = 5

	// MaxEntries is the number of chunks either packer can hold.
	MaxEntries = 22
	// MaxOffset and MaxLength are the largest values a biased chunk holds.
	MaxOffset = 1<<OffsetBits - 2
	MaxLength = 1<<LengthBits - 2

	// OffsetsSize and LengthsSize are the encoded widths in bytes.
	OffsetsSize = 32
	LengthsSize = 16
)

func pack(values []uint64, bits uint, max uint64, what string) (uint256.Int, error) {
	var acc uint256.Int
	if len(values) > MaxEntries {
		return acc, fmt.Errorf("%w: %d %s, at most %d fit", apperrors.ErrPackCapacity, len(values), what, MaxEntries)
	}
	for _, v := range values {
		if v > max {
			return acc, fmt.Errorf("%w: %s %d exceeds %d", apperrors.ErrPackCapacity, what, v, max)
		}
		acc.Lsh(&acc, bits)
		acc.AddUint64(&acc, v+1)
	}
	return acc, nil
}

func unpack(packed uint256.Int, bits uint) []uint64 {
	var out []uint64
	mask := uint64(1)<<bits - 1
	acc := packed
	for !acc.IsZero() {
		out = append(out, acc.Uint64()&mask-1)
		acc.Rsh(&acc, bits)
	}
	slices.Reverse(out)
	return out
}

// PackOffsets packs up to MaxEntries offsets, each at most MaxOffset.
func PackOffsets(offsets []uint16) (uint256.Int, error) {
	values := make([]uint64, len(offsets))
	for i, o := range offsets {
		values[i] = uint64(o)
	}
	return pack(values, OffsetBits, MaxOffset, "offsets")
}

// UnpackOffsets reverses PackOffsets.
func UnpackOffsets(packed uint256.Int) []uint16 {
	values := unpack(packed, OffsetBits)
	out := make([]uint16, len(values))
	for i, v := range values {
		out[i] = uint16(v)
	}
	return out
}

// PackLengths packs up to MaxEntries lengths, each at most MaxLength. The
// result always fits in LengthsSize bytes.
func PackLengths(lengths []uint8) (uint256.Int, error) {
	values := make([]uint64, len(lengths))
	for i, l := range lengths {
		values[i] = uint64(l)
	}
	return pack(values, LengthBits, MaxLength, "lengths")
}

// UnpackLengths reverses PackLengths.
func UnpackLengths(packed uint256.Int) []uint8 {
	values := unpack(packed, LengthBits)
	out := make([]uint8, len(values))
	for i, v := range values {
		out[i] = uint8(v)
	}
	return out
}

// PackSpans packs the offsets and lengths of spans into the two integers.
func PackSpans(spans []index.Span) (offsets, lengths uint256.Int, err error) {
	offs := make([]uint16, len(spans))
	lens := make([]uint8, len(spans))
	for i, s := range spans {
		offs[i] = s.Offset
		lens[i] = s.Length
	}
	if offsets, err = PackOffsets(offs); err != nil {
		return offsets, lengths, err
	}
	lengths, err = PackLengths(lens)
	return offsets, lengths, err
}

// UnpackSpans reverses PackSpans. Mismatched chunk counts mean the pair was
// not produced by PackSpans.
func UnpackSpans(offsets, lengths uint256.Int) ([]index.Span, error) {
	offs := UnpackOffsets(offsets)
	lens := UnpackLengths(lengths)
	if len(offs) != len(lens) {
		return nil, fmt.Errorf("%w: %d offsets but %d lengths", apperrors.ErrCorruptArtifact, len(offs), len(lens))
	}
	spans := make([]index.Span, len(offs))
	for i := range offs {
		spans[i] = index.Span{Offset: offs[i], Length: lens[i]}
	}
	return spans, nil
}

// PutOffsets writes offsets big-endian into dst[:OffsetsSize].
func PutOffsets(dst []byte, offsets *uint256.Int) {
	offsets.PutUint256(dst[:OffsetsSize])
}

// ReadOffsets decodes OffsetsSize big-endian bytes.
func ReadOffsets(src []byte) uint256.Int {
	var v uint256.Int
	v.SetBytes(src[:OffsetsSize])
	return v
}

// PutLengths writes lengths big-endian into dst[:LengthsSize].
func PutLengths(dst []byte, lengths *uint256.Int) {
	full := lengths.Bytes32()
	copy(dst[:LengthsSize], full[OffsetsSize-LengthsSize:])
}

// ReadLengths decodes LengthsSize big-endian bytes.
func ReadLengths(src []byte) uint256.Int {
	var v uint256.Int
	v.SetBytes(src[:LengthsSize])
	return v
}
