package collaborator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

func testParams() geometry.Params {
	return geometry.Params{
		BlksPerSeg:    512,
		SegsPerSec:    1,
		SegCountCkpt:  2,
		SegCountSIT:   2,
		SegCountNAT:   2,
		SegCountSSA:   2,
		TotalSegments: 200,
	}
}

func TestNewSuperblockRejectsOverlongLabel(t *testing.T) {
	_, err := NewSuperblock(strings.Repeat("x", MaxVolumeLabel+1), testParams(), 5, 0, true, false, false)
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sb, err := NewSuperblock("myvol", testParams(), 5.0, 1, true, true, false)
	require.NoError(t, err)

	page := sb.Encode()
	got, err := DecodeSuperblock(page)
	require.NoError(t, err)

	assert.Equal(t, sb.UUID, got.UUID)
	assert.Equal(t, sb.Label, got.Label)
	assert.Equal(t, sb.Params, got.Params)
	assert.Equal(t, sb.Feature, got.Feature)
	assert.Equal(t, sb.Heap, got.Heap)
	assert.Equal(t, sb.Trim, got.Trim)
	assert.InDelta(t, sb.Overprovision, got.Overprovision, 0.001)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	var page [geometry.BlockSize]byte
	_, err := DecodeSuperblock(&page)
	require.Error(t, err)
}
