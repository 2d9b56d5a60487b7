// Package alfs is the core address-logging indirection layer: it wires
// together geometry, the mapping table, the summary table, and the
// meta-log allocator/translator behind the collaborator-facing API of
// spec §6.2, adapted from biscuit/src/ufs/ufs.go's Ufs_t wrapper (a thin
// facade delegating to an inner filesystem handle) and
// _examples/original_source/fsck/alfs_ext.c's alfs_create_ai/alfs_build_ai/
// alfs_destory_ai lifecycle.
package alfs

import (
	"github.com/sirupsen/logrus"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/alfserr"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/blockdev"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/mapping"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/metalog"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/summary"
)

// Core is a single mounted ALFS instance: one logical writer, single
// threaded and synchronous (spec §5).
type Core struct {
	dev    *blockdev.Device
	Layout *geometry.Layout
	mt     *mapping.Table
	st     *summary.Table
	log    *metalog.Log
	logger *logrus.Entry
}

// Create builds an empty in-memory state for a fresh format (spec §3
// "Lifecycle (a)"): an empty mapping table (all entries unmapped, magics
// set, versions 0) and a matching empty summary table.
func Create(dev *blockdev.Device, params geometry.Params, logger *logrus.Entry) (*Core, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	l, err := geometry.Build(params)
	if err != nil {
		return nil, err
	}

	mt := mapping.NewEmpty(l, logger)
	st := summary.NewEmpty(l)
	lg := metalog.New(dev, l, mt, st, logger)

	logger.WithFields(logrus.Fields{
		"mapping_blkofs":       l.MappingBlkofs,
		"metalog_blkofs":       l.MetalogBlkofs,
		"nr_metalog_logi_blks": l.NrMetalogLogiBlks,
		"nr_metalog_phys_blks": l.NrMetalogPhysBlks,
		"nr_mapping_logi_blks": l.NrMappingLogiBlks,
	}).Info("alfs: created fresh indirection state")

	return &Core{dev: dev, Layout: l, mt: mt, st: st, log: lg, logger: logger}, nil
}

// Load reconstructs ALFS state from the on-device mapping region (spec §3
// "Lifecycle (b)", §4.2, §4.3): the mapping table is rebuilt first (it is
// the authority for which physical blocks are live), then the summary
// table is derived from it.
func Load(dev *blockdev.Device, params geometry.Params, logger *logrus.Entry) (*Core, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	l, err := geometry.Build(params)
	if err != nil {
		return nil, err
	}

	mt, err := mapping.Load(dev, l, logger)
	if err != nil {
		return nil, err
	}
	st, err := summary.Build(l, mt)
	if err != nil {
		return nil, err
	}
	lg := metalog.New(dev, l, mt, st, logger)

	logger.WithFields(logrus.Fields{
		"mapping_gc_sblkofs": mt.GCStartOfs,
		"mapping_gc_eblkofs": mt.GCEndOfs,
		"metalog_gc_sblkofs": st.GCStartOfs,
		"metalog_gc_eblkofs": st.GCEndOfs,
	}).Info("alfs: reconstructed state from disk")

	return &Core{dev: dev, Layout: l, mt: mt, st: st, log: lg, logger: logger}, nil
}

// WriteMetaBlock appends a 4 KiB meta-block tagged with logical address
// lba, recording its physical address into the mapping table (spec §6.2).
func (c *Core) WriteMetaBlock(lba uint32, buf *[geometry.BlockSize]byte) error {
	if c.mt.NeedsGC() {
		c.mt.GC()
	}
	return c.log.Write(lba, buf)
}

// ReadMetaBlock reads the meta-block at logical address lba, returning a
// zero page if unmapped (spec §6.2).
func (c *Core) ReadMetaBlock(lba uint32) (*[geometry.BlockSize]byte, error) {
	return c.log.Read(lba)
}

// FlushMapping persists every dirty mapping block (format finalization,
// spec §6.2).
func (c *Core) FlushMapping() error {
	return c.mt.Flush(c.dev)
}

// NeedsMetalogGC reports whether the meta-log region has dropped to the
// one-section free threshold and a reclaim step should run before further
// appends (spec §4.5's threshold, generalized to the meta-log region).
func (c *Core) NeedsMetalogGC() bool { return c.log.NeedsGC() }

// ReclaimMetaLog runs one meta-log GC relocation step (SPEC_FULL.md;
// spec §4.6 design placeholder, resolved — see DESIGN.md).
func (c *Core) ReclaimMetaLog() error { return c.log.Relocate() }

// VerifyConsistency checks the invariants of spec §8 property 3: every
// non-unmapped mapping entry's summary byte is Valid, and (best-effort)
// every Valid summary byte is referenced by exactly one mapping entry.
// Used by fsckalfs's report.
func (c *Core) VerifyConsistency() error {
	const op = "alfs.Core.VerifyConsistency"
	refCount := make(map[uint32]int)
	for _, b := range c.mt.Blocks {
		for _, p := range b.Mapping {
			if p == geometry.UnmappedEntry {
				continue
			}
			if p < c.Layout.MetalogBlkofs || p >= c.Layout.MetalogBlkofs+c.Layout.NrMetalogPhysBlks {
				return alfserr.New(alfserr.InvalidAddress, op, "mapping entry references out-of-region pba")
			}
			off := p - c.Layout.MetalogBlkofs
			if c.st.Get(off) != summary.Valid {
				return alfserr.New(alfserr.ConsistencyWarning, op, "mapping entry references non-valid summary byte")
			}
			refCount[off]++
		}
	}
	for off, n := range refCount {
		if n != 1 {
			c.logger.WithFields(logrus.Fields{"offset": off, "refs": n}).
				Warn("summary byte referenced by more than one mapping entry")
		}
	}
	for off, s := range c.st.Bytes {
		if s == summary.Valid && refCount[uint32(off)] == 0 {
			c.logger.WithField("offset", off).Warn("valid summary byte referenced by no mapping entry")
		}
	}
	return nil
}

// Destroy releases in-memory state (spec §3 "Lifecycle").
func (c *Core) Destroy() {
	c.mt = nil
	c.st = nil
	c.log = nil
}
