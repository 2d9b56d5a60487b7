package collaborator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedSegmentsRoundsToSectionMultiple(t *testing.T) {
	got := ReservedSegments(1_000_000, 4, 5.0)
	assert.Equal(t, uint32(0), got%4)
}

func TestReservedSegmentsZeroSegsPerSecDefaultsToOne(t *testing.T) {
	got := ReservedSegments(1_000_000, 0, 5.0)
	assert.Equal(t, ReservedSegments(1_000_000, 1, 5.0), got)
}

func TestValidateExtensionListAcceptsPlainNames(t *testing.T) {
	require.NoError(t, ValidateExtensionList([]string{"mp3", "gif", "mov"}))
}

func TestValidateExtensionListRejectsDottedNames(t *testing.T) {
	require.Error(t, ValidateExtensionList([]string{".mp3"}))
}
