// Package summary implements the byte-per-physical-meta-block validity
// vector over the meta-log region (spec §3, §4.3).
package summary

import (
	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/mapping"
)

// State is one summary byte's validity state (spec §3 "Summary byte states").
type State byte

const (
	Free    State = 0
	Valid   State = 1
	Invalid State = 2
)

// Table is the summary (validity) table plus the circular meta-log GC
// window (spec §3, §4.3, §4.6).
type Table struct {
	layout *geometry.Layout

	Bytes []State // summary[0..P)

	GCStartOfs uint32 // metalog_gc_sblkofs
	GCEndOfs   uint32 // metalog_gc_eblkofs
}

// NewEmpty builds a fresh summary table for a freshly formatted meta-log:
// everything free, append cursor at the start of the region.
func NewEmpty(l *geometry.Layout) *Table {
	t := &Table{layout: l}
	t.Bytes = make([]State, l.NrMetalogPhysBlks)
	t.GCEndOfs = 0
	t.GCStartOfs = l.BlksPerSec % l.NrMetalogPhysBlks
	return t
}

// Build derives the summary table from a loaded mapping table (spec §4.3):
// every physical block is initially invalid; every block a mapping entry
// references is valid; the first fully-invalid section becomes the initial
// append window and is cleared to free. Fails with NoFreeSpace if no such
// section exists.
func Build(l *geometry.Layout, mt *mapping.Table) (*Table, error) {
	const op = "summary.Build"

	t := &Table{layout: l}
	t.Bytes = make([]State, l.NrMetalogPhysBlks)
	for i := range t.Bytes {
		t.Bytes[i] = Invalid
	}

	for _, b := range mt.Blocks {
		for _, p := range b.Mapping {
			if p == geometry.UnmappedEntry {
				continue
			}
			off := p - l.MetalogBlkofs
			if off >= uint32(len(t.Bytes)) {
				continue // out-of-range entries are a ConsistencyWarning elsewhere, not fatal here
			}
			t.Bytes[off] = Valid
		}
	}

	sections := l.SectionsInMetalog()
	found := false
	for sec := uint32(0); sec < sections; sec++ {
		allInvalid := true
		start := sec * l.BlksPerSec
		for i := uint32(0); i < l.BlksPerSec; i++ {
			if t.Bytes[start+i] != Invalid {
				allInvalid = false
				break
			}
		}
		if allInvalid {
			t.GCEndOfs = start
			t.GCStartOfs = (start + l.BlksPerSec) % l.NrMetalogPhysBlks
			for i := uint32(0); i < l.BlksPerSec; i++ {
				t.Bytes[start+i] = Free
			}
			found = true
			break
		}
	}

	if !found {
		return nil, alfserr.New(alfserr.NoFreeSpace, op, "no dead section in meta-log region")
	}
	return t, nil
}

// Get returns the state of physical offset off (relative to the meta-log
// region base).
func (t *Table) Get(off uint32) State { return t.Bytes[off] }

// Set records the state of physical offset off.
func (t *Table) Set(off uint32, s State) { t.Bytes[off] = s }

// FreeBlocks returns free blocks in the circular meta-log window,
// treating GCStartOfs == GCEndOfs as full (spec §4.4, §9).
func (t *Table) FreeBlocks() (uint32, error) {
	s, e, p := t.GCStartOfs, t.GCEndOfs, t.layout.NrMetalogPhysBlks
	switch {
	case s < e:
		return p - e + s, nil
	case s > e:
		return s - e, nil
	default:
		return 0, alfserr.New(alfserr.NoFreeSpace, "summary.Table.FreeBlocks", "meta-log region full")
	}
}
