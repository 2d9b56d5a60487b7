// Package mapping implements the in-memory mapping table of logical-block-
// to-physical-block entries (spec §3, §4.2, §4.5) together with its
// bit-exact on-disk record.
package mapping

import (
	"encoding/binary"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

// Block is one 4 KiB mapping-table record: a magic, a monotonic version,
// the logical index of its first entry, a dirty flag, and 1020 little-endian
// logical→physical entries (spec §3). Bit-exact with the on-disk layout.
type Block struct {
	Magic   uint32
	Ver     uint32
	Index   uint32
	Dirty   uint32
	Mapping [geometry.NrMappingRooms]uint32
}

// NewEmptyBlock builds a freshly formatted block for logical slot index
// (index must be a multiple of geometry.NrMappingRooms), with every entry
// unmapped (spec §3 "Lifecycle": format constructs an empty mapping table).
func NewEmptyBlock(index uint32) *Block {
	b := &Block{
		Magic: geometry.MapBlockMagic,
		Ver:   0,
		Index: index,
		Dirty: 0,
	}
	for i := range b.Mapping {
		b.Mapping[i] = geometry.UnmappedEntry
	}
	return b
}

// Encode serializes b into a 4096-byte little-endian buffer.
func (b *Block) Encode() [geometry.BlockSize]byte {
	var buf [geometry.BlockSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], b.Ver)
	binary.LittleEndian.PutUint32(buf[8:12], b.Index)
	binary.LittleEndian.PutUint32(buf[12:16], b.Dirty)
	for i, v := range b.Mapping {
		off := 16 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], v)
	}
	return buf
}

// DecodeBlock parses a 4096-byte little-endian buffer into a Block.
func DecodeBlock(buf *[geometry.BlockSize]byte) *Block {
	b := &Block{
		Magic: binary.LittleEndian.Uint32(buf[0:4]),
		Ver:   binary.LittleEndian.Uint32(buf[4:8]),
		Index: binary.LittleEndian.Uint32(buf[8:12]),
		Dirty: binary.LittleEndian.Uint32(buf[12:16]),
	}
	for i := range b.Mapping {
		off := 16 + i*4
		b.Mapping[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return b
}

// Valid reports whether the block's magic marks it as a live mapping record
// (spec §3: "unoccupied blocks ... detected by magic ≠ 0xEF").
func (b *Block) Valid() bool { return b.Magic == geometry.MapBlockMagic }
