// Package collaborator plays the role spec.md §1 calls "an external
// collaborator": the base-FS logic that builds the superblock buffer and
// checkpoint/SIT/NAT/SSA meta-block payloads handed to the ALFS core. It is
// a deliberately simplified stand-in for real F2FS metadata — the core
// never inspects these bytes once written (spec §1 Non-goals), so only the
// fields the core itself reads (§6.2's geometry) need to be accurate.
//
// Field layout is modeled on biscuit/src/fs/super.go's bit-field accessor
// idiom; the write sequencing (two copies at blocks 0/1, then meta-blocks
// routed through the meta-log) follows
// _examples/original_source/mkfs/f2fs_format.c's dev_write_meta_block /
// alfs_set_mapping_info call sites.
package collaborator

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

const superblockMagic = 0xF2F52010

// MaxVolumeLabel mirrors the original's 512-character label limit
// (mkfs/f2fs_format_main.c's `-l` option check).
const MaxVolumeLabel = 512

// Superblock is the base-FS superblock the collaborator writes to blocks 0
// and 1 (spec §6.3). Fields beyond geometry exist only because a realistic
// collaborator would set them; the core reads none of them.
type Superblock struct {
	UUID          uuid.UUID
	Label         string
	Params        geometry.Params
	Overprovision float64
	Feature       uint32
	Heap          bool
	Trim          bool
	SMR           bool
}

// NewSuperblock validates label length (spec §6.4 `-l`) and stamps a fresh
// volume UUID, mirroring uuid_generate() in mkfs/f2fs_format.c:556.
func NewSuperblock(label string, params geometry.Params, overprov float64, feature uint32, heap, trim, smr bool) (*Superblock, error) {
	const op = "collaborator.NewSuperblock"
	if len(label) > MaxVolumeLabel {
		return nil, alfserr.New(alfserr.Configuration, op,
			fmt.Sprintf("volume label longer than %d characters", MaxVolumeLabel))
	}
	return &Superblock{
		UUID:          uuid.New(),
		Label:         label,
		Params:        params,
		Overprovision: overprov,
		Feature:       feature,
		Heap:          heap,
		Trim:          trim,
		SMR:           smr,
	}, nil
}

// fieldw writes a little-endian uint32 at word index idx (word = 4 bytes),
// the same register-style accessor pattern as biscuit/src/fs/super.go's
// fieldr/fieldw, generalized here to an explicit byte slice instead of a
// kernel page.
func fieldw(buf []byte, idx int, v uint32) {
	binary.LittleEndian.PutUint32(buf[idx*4:idx*4+4], v)
}

func fieldr(buf []byte, idx int) uint32 {
	return binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4])
}

// Superblock word layout. Indices beyond the geometry fields the core
// cares about are collaborator-private; the core never parses this buffer.
const (
	sbMagic = iota
	sbBlksPerSeg
	sbSegsPerSec
	sbSegCountCkpt
	sbSegCountSIT
	sbSegCountNAT
	sbSegCountSSA
	sbTotalSegments
	sbFeature
	sbOverprovPermille // overprovision ratio * 1000, stored as an integer
	sbFlags            // bit0 heap, bit1 trim, bit2 smr
	sbLabelLen
)

const flagHeap = 1 << 0
const flagTrim = 1 << 1
const flagSMR = 1 << 2

// Encode renders the superblock as a 4 KiB page (spec §6.3: "Block 0 and
// Block 1 ... with the base-FS fields at a fixed offset").
func (sb *Superblock) Encode() *[geometry.BlockSize]byte {
	var page [geometry.BlockSize]byte
	buf := page[:]

	fieldw(buf, sbMagic, superblockMagic)
	fieldw(buf, sbBlksPerSeg, sb.Params.BlksPerSeg)
	fieldw(buf, sbSegsPerSec, sb.Params.SegsPerSec)
	fieldw(buf, sbSegCountCkpt, sb.Params.SegCountCkpt)
	fieldw(buf, sbSegCountSIT, sb.Params.SegCountSIT)
	fieldw(buf, sbSegCountNAT, sb.Params.SegCountNAT)
	fieldw(buf, sbSegCountSSA, sb.Params.SegCountSSA)
	fieldw(buf, sbTotalSegments, sb.Params.TotalSegments)
	fieldw(buf, sbFeature, sb.Feature)
	fieldw(buf, sbOverprovPermille, uint32(sb.Overprovision*1000))

	var flags uint32
	if sb.Heap {
		flags |= flagHeap
	}
	if sb.Trim {
		flags |= flagTrim
	}
	if sb.SMR {
		flags |= flagSMR
	}
	fieldw(buf, sbFlags, flags)
	fieldw(buf, sbLabelLen, uint32(len(sb.Label)))

	uuidOff := (sbLabelLen + 1) * 4
	copy(buf[uuidOff:uuidOff+16], sb.UUID[:])
	labelOff := uuidOff + 16
	copy(buf[labelOff:labelOff+len(sb.Label)], sb.Label)

	return &page
}

// DecodeSuperblock parses a superblock page produced by Encode. Used by
// fsckalfs to recover geometry.Params without requiring the caller to
// repeat every format flag at check time.
func DecodeSuperblock(page *[geometry.BlockSize]byte) (*Superblock, error) {
	const op = "collaborator.DecodeSuperblock"
	buf := page[:]
	if fieldr(buf, sbMagic) != superblockMagic {
		return nil, alfserr.New(alfserr.Configuration, op, "superblock magic mismatch")
	}

	sb := &Superblock{
		Params: geometry.Params{
			BlksPerSeg:    fieldr(buf, sbBlksPerSeg),
			SegsPerSec:    fieldr(buf, sbSegsPerSec),
			SegCountCkpt:  fieldr(buf, sbSegCountCkpt),
			SegCountSIT:   fieldr(buf, sbSegCountSIT),
			SegCountNAT:   fieldr(buf, sbSegCountNAT),
			SegCountSSA:   fieldr(buf, sbSegCountSSA),
			TotalSegments: fieldr(buf, sbTotalSegments),
		},
		Feature:       fieldr(buf, sbFeature),
		Overprovision: float64(fieldr(buf, sbOverprovPermille)) / 1000,
	}
	flags := fieldr(buf, sbFlags)
	sb.Heap = flags&flagHeap != 0
	sb.Trim = flags&flagTrim != 0
	sb.SMR = flags&flagSMR != 0

	labelLen := fieldr(buf, sbLabelLen)
	uuidOff := (sbLabelLen + 1) * 4
	copy(sb.UUID[:], buf[uuidOff:uuidOff+16])
	labelOff := uuidOff + 16
	if int(labelLen) <= len(buf)-labelOff {
		sb.Label = string(buf[labelOff : labelOff+int(labelLen)])
	}

	return sb, nil
}
