package blockdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doscode-kr/f2fs-alfs-tools/internal/geometry"
)

func openTestDevice(t *testing.T) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image")
	dev, err := Open(path, os.O_CREATE|os.O_RDWR, nil)
	require.NoError(t, err)
	require.NoError(t, dev.Truncate(16*geometry.BlockSize))
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestWriteAtThenReadBlockRoundTrips(t *testing.T) {
	dev := openTestDevice(t)
	var page [geometry.BlockSize]byte
	for i := range page {
		page[i] = byte(i % 251)
	}
	require.NoError(t, dev.WriteAt(3, &page))

	got, err := dev.ReadBlock(3)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(page[:], got[:]))
}

func TestWriteBlockRejectsPartialBlockSize(t *testing.T) {
	dev := openTestDevice(t)
	buf := make([]byte, geometry.BlockSize+1)
	err := dev.WriteBlock(buf, 0, geometry.BlockSize+1)
	require.Error(t, err)
}

func TestSizeMatchesTruncatedLength(t *testing.T) {
	dev := openTestDevice(t)
	size, err := dev.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(16*geometry.BlockSize), size)
}

func TestTrimSkipsOnRegularFile(t *testing.T) {
	dev := openTestDevice(t)
	require.NoError(t, dev.Trim())
}
