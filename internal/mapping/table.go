package mapping

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/blockdev"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

// Table is the in-memory array of mapping blocks plus the circular GC
// window over the mapping region (spec §3, §4.2, §4.5).
type Table struct {
	layout *geometry.Layout
	log    *logrus.Entry

	Blocks []*Block // map_blks[0..M)

	// GC window, block offsets relative to the mapping region base.
	GCStartOfs uint32 // mapping_gc_sblkofs
	GCEndOfs   uint32 // mapping_gc_eblkofs
}

// NewEmpty builds a freshly formatted table: M blocks, all entries
// unmapped, version 0, magic set (spec §3 "Lifecycle": format).
func NewEmpty(l *geometry.Layout, log *logrus.Entry) *Table {
	t := &Table{layout: l, log: log}
	t.Blocks = make([]*Block, l.NrMappingLogiBlks)
	for i := range t.Blocks {
		t.Blocks[i] = NewEmptyBlock(uint32(i) * geometry.NrMappingRooms)
	}
	// A freshly formatted table has never been persisted: the append
	// cursor starts at offset 0 and the reclaim cursor one section ahead,
	// so FreeBlocks reports section 0 as the free window, the same shape
	// Load derives when section 0 is the first dead section.
	t.GCEndOfs = 0
	t.GCStartOfs = l.BlksPerSec % l.NrMappingPhysBlks
	return t
}

// Load scans every physical block of the mapping region (section-major,
// block-minor) and keeps the highest-versioned live copy per logical slot,
// ties broken in favor of the later-read copy (spec §4.2). The first dead
// section found seeds the GC window; if none exists, Load fails with
// NoFreeSpace.
func Load(dev *blockdev.Device, l *geometry.Layout, log *logrus.Entry) (*Table, error) {
	const op = "mapping.Load"

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	t := &Table{layout: l, log: log}
	t.Blocks = make([]*Block, l.NrMappingLogiBlks)
	for i := range t.Blocks {
		t.Blocks[i] = NewEmptyBlock(uint32(i) * geometry.NrMappingRooms)
	}

	var scanErr *multierror.Error
	firstDeadSection := int64(-1)
	sections := l.SectionsInMapping()

	for sec := uint32(0); sec < sections; sec++ {
		sectionHasLive := false
		for blk := uint32(0); blk < l.BlksPerSec; blk++ {
			pba := l.MappingBlkofs + sec*l.BlksPerSec + blk
			page, err := dev.ReadBlock(pba)
			if err != nil {
				scanErr = multierror.Append(scanErr, fmt.Errorf("section %d block %d: %w", sec, blk, err))
				continue
			}
			cand := DecodeBlock(page)
			if !cand.Valid() {
				continue
			}
			slot := cand.Index / geometry.NrMappingRooms
			if slot >= uint32(len(t.Blocks)) {
				continue
			}
			if cand.Ver >= t.Blocks[slot].Ver {
				t.Blocks[slot] = cand
				sectionHasLive = true
			}
		}
		if !sectionHasLive && firstDeadSection == -1 {
			firstDeadSection = int64(sec)
		}
	}

	if firstDeadSection == -1 {
		return nil, alfserr.New(alfserr.NoFreeSpace, op, "no dead section in mapping region")
	}

	t.GCEndOfs = uint32(firstDeadSection) * l.BlksPerSec
	t.GCStartOfs = (uint32(firstDeadSection) + 1) * l.BlksPerSec % l.NrMappingPhysBlks

	if scanErr.ErrorOrNil() != nil {
		log.WithError(scanErr).Warn("mapping table load encountered read errors; proceeding with partial data")
	}

	return t, nil
}

// Entry returns the mapped physical address for logical offset off
// (relative to the meta-log region base), or geometry.UnmappedEntry.
func (t *Table) Entry(off uint32) uint32 {
	slot := off / geometry.NrMappingRooms
	idx := off % geometry.NrMappingRooms
	return t.Blocks[slot].Mapping[idx]
}

// SetEntry records pba for logical offset off and marks the owning block
// dirty (spec §4.4 "Commit mapping").
func (t *Table) SetEntry(off, pba uint32) {
	slot := off / geometry.NrMappingRooms
	idx := off % geometry.NrMappingRooms
	t.Blocks[slot].Mapping[idx] = pba
	t.Blocks[slot].Dirty = 1
}

// FreeBlocks returns the number of free blocks in the circular mapping
// window, treating GCStartOfs == GCEndOfs as full (spec §4.4, §9 Open
// Question on the -1 sentinel).
func (t *Table) FreeBlocks() (uint32, error) {
	s, e, p := t.GCStartOfs, t.GCEndOfs, t.layout.NrMappingPhysBlks
	switch {
	case s < e:
		return p - e + s, nil
	case s > e:
		return s - e, nil
	default:
		return 0, alfserr.New(alfserr.NoFreeSpace, "mapping.Table.FreeBlocks", "mapping region full")
	}
}

// NeedsGC reports whether free space has dropped to the one-section
// threshold that forces a reclaim step before the next append (spec §4.5).
func (t *Table) NeedsGC() bool {
	free, err := t.FreeBlocks()
	if err != nil {
		return true
	}
	return free <= t.layout.BlksPerSec
}

// GC performs one reclaim step: advance GCStartOfs by one section,
// discarding the stalest section at the far side of the circular window
// (spec §4.5). Freshness across reclaim is preserved because Load always
// prefers the highest ver; see DESIGN.md Open Question 2 for why this does
// not lose the only live copy of a slot.
func (t *Table) GC() {
	t.GCStartOfs = (t.GCStartOfs + t.layout.BlksPerSec) % t.layout.NrMappingPhysBlks
}

// DirtyBlocks returns every block with Dirty set, for persistence.
func (t *Table) DirtyBlocks() []*Block {
	var out []*Block
	for _, b := range t.Blocks {
		if b.Dirty != 0 {
			out = append(out, b)
		}
	}
	return out
}

// Flush appends every dirty mapping block to the mapping region at the
// current append cursor, incrementing each block's version before write
// (spec §4.5), and clears the dirty flag on success.
func (t *Table) Flush(dev *blockdev.Device) error {
	const op = "mapping.Table.Flush"
	dirty := t.DirtyBlocks()
	for _, b := range dirty {
		if t.NeedsGC() {
			t.GC()
		}
		b.Ver++
		pba := t.layout.MappingBlkofs + t.GCEndOfs
		page := b.Encode()
		if err := dev.WriteAt(pba, &page); err != nil {
			return alfserr.Wrap(alfserr.IO, op, "writing mapping block", err)
		}
		t.GCEndOfs = (t.GCEndOfs + 1) % t.layout.NrMappingPhysBlks
		b.Dirty = 0
	}
	return nil
}
