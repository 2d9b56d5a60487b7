package metalog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/blockdev"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/mapping"
	"github.com/doscode-kr/f2fs-alfs-tools/internal/summary"
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

func page(b byte) *[geometry.BlockSize]byte {
	var p [geometry.BlockSize]byte
	for i := range p {
		p[i] = b
	}
	return &p
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	l := testLayout(t)
	dev := openDevice(t)
	mt := mapping.NewEmpty(l, nil)
	st := summary.NewEmpty(l)
	lg := New(dev, l, mt, st, nil)

	lba := l.MetalogBlkofs
	require.NoError(t, lg.Write(lba, page('Z')))

	got, err := lg.Read(lba)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got[:], page('Z')[:]))
}

func TestReadUnmappedReturnsZero(t *testing.T) {
	l := testLayout(t)
	dev := openDevice(t)
	mt := mapping.NewEmpty(l, nil)
	st := summary.NewEmpty(l)
	lg := New(dev, l, mt, st, nil)

	got, err := lg.Read(l.MetalogBlkofs + 5)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got[:], make([]byte, geometry.BlockSize)))
}

func TestRelocateClearsSectionAndPreservesData(t *testing.T) {
	l := testLayout(t)
	dev := openDevice(t)
	mt := mapping.NewEmpty(l, nil)
	st := summary.NewEmpty(l)
	lg := New(dev, l, mt, st, nil)

	lba := l.MetalogBlkofs
	require.NoError(t, lg.Write(lba, page('Q')))

	// Point the reclaim window at the section the write actually landed
	// in, so Relocate is forced to carry the live block somewhere else
	// rather than trivially clearing an already-free section.
	st.GCStartOfs = 0
	require.NoError(t, lg.Relocate())

	for i := uint32(0); i < l.BlksPerSec; i++ {
		assert.Equal(t, summary.Free, st.Get(i))
	}

	got, err := lg.Read(lba)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got[:], page('Q')[:]))
}

func TestNeedsGCAtOneSectionFree(t *testing.T) {
	l := testLayout(t)
	dev := openDevice(t)
	mt := mapping.NewEmpty(l, nil)
	st := summary.NewEmpty(l)
	lg := New(dev, l, mt, st, nil)

	st.GCEndOfs = st.GCStartOfs - l.BlksPerSec
	assert.True(t, lg.NeedsGC())
}
