package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		BlksPerSeg:    512,
		SegsPerSec:    1,
		SegCountCkpt:  2,
		SegCountSIT:   1,
		SegCountNAT:   1,
		SegCountSSA:   1,
		TotalSegments: 100,
	}
}

func TestBuildDerivesRegions(t *testing.T) {
	l, err := Build(validParams())
	require.NoError(t, err)

	assert.Equal(t, l.SuperblkBlks, l.MappingBlkofs, "mapping region starts right after the superblock section")
	assert.Equal(t, l.MappingBlkofs+l.NrMappingPhysBlks, l.MetalogBlkofs, "meta-log region starts right after the mapping region")
	assert.Equal(t, l.MetalogBlkofs+l.NrMetalogPhysBlks, l.MainBlkofs, "main area starts right after the meta-log region")

	wantLogi := uint32((2 + 1 + 1 + 1) * 512)
	assert.Equal(t, wantLogi, l.NrMetalogLogiBlks)
	assert.Equal(t, l.NrMetalogLogiBlks*NrMetalogTimes, l.NrMetalogPhysBlks)
}

func TestBuildRejectsZeroBlksPerSeg(t *testing.T) {
	p := validParams()
	p.BlksPerSeg = 0
	_, err := Build(p)
	require.Error(t, err)
}

func TestBuildRejectsZeroMetaRegion(t *testing.T) {
	p := validParams()
	p.SegCountCkpt, p.SegCountSIT, p.SegCountNAT, p.SegCountSSA = 0, 0, 0, 0
	_, err := Build(p)
	require.Error(t, err)
}

func TestMappingRoomsRoundsUp(t *testing.T) {
	p := validParams()
	p.SegCountCkpt = 3 // push logical meta-log blocks past a multiple of 1020
	l, err := Build(p)
	require.NoError(t, err)

	want := l.NrMetalogLogiBlks / NrMappingRooms
	if l.NrMetalogLogiBlks%NrMappingRooms != 0 {
		want++
	}
	assert.Equal(t, want, l.NrMappingLogiBlks)
}

func TestSectionHelpers(t *testing.T) {
	l, err := Build(validParams())
	require.NoError(t, err)
	assert.Equal(t, l.NrMappingPhysBlks/l.BlksPerSec, l.SectionsInMapping())
	assert.Equal(t, l.NrMetalogPhysBlks/l.BlksPerSec, l.SectionsInMetalog())
}
