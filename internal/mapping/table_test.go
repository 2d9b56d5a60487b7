package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/blockdev"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

func testLayout(t *testing.T) *geometry.Layout {
	t.Helper()
	l, err := geometry.Build(geometry.Params{
		BlksPerSeg:    512,
		SegsPerSec:    1,
		SegCountCkpt:  2,
		SegCountSIT:   2,
		SegCountNAT:   2,
		SegCountSSA:   2,
		TotalSegments: 200,
	})
	require.NoError(t, err)
	return l
}

func openDevice(t *testing.T) *blockdev.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image")
	dev, err := blockdev.Open(path, os.O_CREATE|os.O_RDWR, nil)
	require.NoError(t, err)
	require.NoError(t, dev.Truncate(int64(200*512)*geometry.BlockSize))
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestNewEmptySetsEntriesUnmapped(t *testing.T) {
	l := testLayout(t)
	tbl := NewEmpty(l, nil)
	assert.Equal(t, int(l.NrMappingLogiBlks), len(tbl.Blocks))
	assert.Equal(t, geometry.UnmappedEntry, tbl.Entry(0))
}

func TestSetEntryMarksBlockDirty(t *testing.T) {
	l := testLayout(t)
	tbl := NewEmpty(l, nil)
	tbl.SetEntry(0, 999)
	assert.Equal(t, uint32(999), tbl.Entry(0))
	assert.Equal(t, uint32(1), tbl.Blocks[0].Dirty)
}

func TestFreeBlocksTreatsEqualCursorsAsFull(t *testing.T) {
	l := testLayout(t)
	tbl := NewEmpty(l, nil)
	tbl.GCStartOfs = 5
	tbl.GCEndOfs = 5
	_, err := tbl.FreeBlocks()
	require.Error(t, err)
	assert.True(t, tbl.NeedsGC())
}

func TestGCAdvancesStartBySection(t *testing.T) {
	l := testLayout(t)
	tbl := NewEmpty(l, nil)
	before := tbl.GCStartOfs
	tbl.GC()
	assert.Equal(t, (before+l.BlksPerSec)%l.NrMappingPhysBlks, tbl.GCStartOfs)
}

func TestFlushPersistsDirtyBlocksAndReloads(t *testing.T) {
	l := testLayout(t)
	dev := openDevice(t)

	tbl := NewEmpty(l, nil)
	tbl.SetEntry(0, l.MetalogBlkofs+7)
	require.NoError(t, tbl.Flush(dev))
	assert.Empty(t, tbl.DirtyBlocks())

	reloaded, err := Load(dev, l, nil)
	require.NoError(t, err)
	assert.Equal(t, l.MetalogBlkofs+7, reloaded.Entry(0))
}

func TestLoadFailsWithoutDeadSection(t *testing.T) {
	l := testLayout(t)
	dev := openDevice(t)

	blk := NewEmptyBlock(0)
	blk.Ver = 1
	for sec := uint32(0); sec < l.SectionsInMapping(); sec++ {
		for i := uint32(0); i < l.BlksPerSec; i++ {
			page := blk.Encode()
			require.NoError(t, dev.WriteAt(l.MappingBlkofs+sec*l.BlksPerSec+i, &page))
		}
	}

	_, err := Load(dev, l, nil)
	require.Error(t, err)
}
