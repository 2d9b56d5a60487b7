// Package geometry derives the on-device region layout (spec §3, §4.1) from
// the base-FS parameters the collaborator supplies. It performs no I/O.
package geometry

import (
	"fmt"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
)

// BlockSize is the fixed block size in bytes (spec §3).
const BlockSize = 4096

// NullAddr marks an unset block address (spec §3).
const NullAddr = 0

// Fixed region constants (spec §3).
const (
	NrSuperblkSecs  = 1
	NrMappingSecs   = 3
	NrMetalogTimes  = 2
	NrMappingRooms  = 1020
	MapBlockMagic   = 0xEF
	UnmappedEntry   = 0xFFFFFFFF
	mapBlockHeaders = 4 // magic, ver, index, dirty
)

// Params are the base-FS geometry inputs the collaborator provides (spec §6.2).
type Params struct {
	BlksPerSeg    uint32
	SegsPerSec    uint32
	SegCountCkpt  uint32
	SegCountSIT   uint32
	SegCountNAT   uint32
	SegCountSSA   uint32
	TotalSegments uint32
}

// Layout is the fully derived region geometry.
type Layout struct {
	Params Params

	BlksPerSec uint32 // segs_per_sec * blks_per_seg

	SuperblkBlkofs uint32
	SuperblkBlks   uint32

	MappingBlkofs     uint32
	NrMappingPhysBlks uint32
	NrMappingLogiBlks uint32 // M = ceil(L_meta / 1020)

	MetalogBlkofs     uint32
	NrMetalogLogiBlks uint32 // L_meta
	NrMetalogPhysBlks uint32 // L_meta * NR_METALOG_TIMES

	MainBlkofs uint32
}

// Build validates p and derives the full layout, failing with a
// Configuration error on any geometry inconsistency (spec §4.1).
func Build(p Params) (*Layout, error) {
	const op = "geometry.Build"

	if NrMetalogTimes%2 != 0 {
		return nil, alfserr.New(alfserr.Configuration, op, "NR_METALOG_TIMES must be even")
	}
	if p.BlksPerSeg == 0 || p.SegsPerSec == 0 {
		return nil, alfserr.New(alfserr.Configuration, op, "blks_per_seg and segs_per_sec must be nonzero")
	}

	l := &Layout{Params: p}
	l.BlksPerSec = p.SegsPerSec * p.BlksPerSeg
	if l.BlksPerSec == 0 {
		return nil, alfserr.New(alfserr.Configuration, op, "zero-sized section")
	}

	l.SuperblkBlkofs = 0
	l.SuperblkBlks = NrSuperblkSecs * l.BlksPerSec

	l.MappingBlkofs = l.SuperblkBlkofs + l.SuperblkBlks
	l.NrMappingPhysBlks = NrMappingSecs * l.BlksPerSec

	nrMetaSegs := p.SegCountCkpt + p.SegCountSIT + p.SegCountNAT + p.SegCountSSA
	l.NrMetalogLogiBlks = nrMetaSegs * p.BlksPerSeg
	if l.NrMetalogLogiBlks == 0 {
		return nil, alfserr.New(alfserr.Configuration, op, "zero-sized meta-log region")
	}
	l.NrMetalogPhysBlks = l.NrMetalogLogiBlks * NrMetalogTimes

	l.MetalogBlkofs = l.MappingBlkofs + l.NrMappingPhysBlks

	if l.NrMetalogPhysBlks%l.BlksPerSec != 0 {
		return nil, alfserr.New(alfserr.Configuration, op,
			fmt.Sprintf("physical meta-log length %d is not a multiple of section size %d",
				l.NrMetalogPhysBlks, l.BlksPerSec))
	}
	if l.NrMappingPhysBlks%l.BlksPerSec != 0 {
		return nil, alfserr.New(alfserr.Configuration, op, "mapping region is not a whole number of sections")
	}

	l.NrMappingLogiBlks = l.NrMetalogLogiBlks / NrMappingRooms
	if l.NrMetalogLogiBlks%NrMappingRooms != 0 {
		l.NrMappingLogiBlks++
	}

	l.MainBlkofs = l.MetalogBlkofs + l.NrMetalogPhysBlks

	return l, nil
}

// SectionsInMapping is the number of sections spanning the mapping region.
func (l *Layout) SectionsInMapping() uint32 { return l.NrMappingPhysBlks / l.BlksPerSec }

// SectionsInMetalog is the number of sections spanning the meta-log region.
func (l *Layout) SectionsInMetalog() uint32 { return l.NrMetalogPhysBlks / l.BlksPerSec }
