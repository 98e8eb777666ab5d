// Package segment encodes an index snapshot and its corpus into a single
// .scrx artifact and reads it back.
//
// Layout, little-endian unless noted:
//
//	header   64 bytes: magic, version, verse and stem counts, creation time,
//	         offset of the paths table, offset/size of the words table and
//	         offset/size of the corpus section
//	paths    5 bytes per ScriptureID in id order: collection, book (or
//	         section), chapter, verse (u16)
//	words    CHD minimal perfect hash keyed by stem, 8-byte aligned; each
//	         value is a bucket of id-sorted 50-byte records
//	corpus   xz-compressed JSON of the corpus
//	footer   BLAKE3-256 digest of everything before it
package segment

import (
	"encoding/binary"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/packing"
)

const (
	MagicBytes    uint32 = 0x58524353 // "SCRX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	PathSize      int    = 5
	RecordSize    int    = 2 + packing.OffsetsSize + packing.LengthsSize
	Extension            = ".scrx"
)

// Header is the fixed-size prefix of every artifact.
type Header struct {
	Magic        uint32
	Version      uint32
	VerseCount   uint32
	StemCount    uint32
	CreatedAt    int64
	PathsOffset  int64
	WordsOffset  int64
	WordsSize    int64
	CorpusOffset int64
	CorpusSize   int64
}

// Created returns the build time recorded in the header.
func (h Header) Created() time.Time { return time.Unix(h.CreatedAt, 0).UTC() }

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.VerseCount)
	binary.LittleEndian.PutUint32(b[12:16], h.StemCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.PathsOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.WordsOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.WordsSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.CorpusOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.CorpusSize))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		VerseCount:   binary.LittleEndian.Uint32(b[8:12]),
		StemCount:    binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		PathsOffset:  int64(binary.LittleEndian.Uint64(b[24:32])),
		WordsOffset:  int64(binary.LittleEndian.Uint64(b[32:40])),
		WordsSize:    int64(binary.LittleEndian.Uint64(b[40:48])),
		CorpusOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		CorpusSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

func align8(n int) int { return (n + 7) &^ 7 }
