package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/mapping"
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

func TestNewEmptyAllFree(t *testing.T) {
	l := testLayout(t)
	tbl := NewEmpty(l)
	for _, s := range tbl.Bytes {
		assert.Equal(t, Free, s)
	}
}

func TestBuildMarksReferencedBlocksValid(t *testing.T) {
	l := testLayout(t)
	mt := mapping.NewEmpty(l, nil)
	mt.SetEntry(0, l.MetalogBlkofs+3)

	tbl, err := Build(l, mt)
	require.NoError(t, err)
	assert.Equal(t, Valid, tbl.Get(3))
}

func TestBuildFailsWhenEverySectionHasALiveBlock(t *testing.T) {
	l := testLayout(t)
	mt := mapping.NewEmpty(l, nil)
	sections := l.SectionsInMetalog()
	for sec := uint32(0); sec < sections; sec++ {
		mt.SetEntry(sec, l.MetalogBlkofs+sec*l.BlksPerSec)
	}

	_, err := Build(l, mt)
	require.Error(t, err)
}

func TestFreeBlocksTreatsEqualCursorsAsFull(t *testing.T) {
	l := testLayout(t)
	tbl := NewEmpty(l)
	tbl.GCStartOfs = 10
	tbl.GCEndOfs = 10
	_, err := tbl.FreeBlocks()
	require.Error(t, err)
}
