package alfserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := New(IO, "op", "boom")
	assert.True(t, Is(err, IO))
	assert.False(t, Is(err, Configuration))
}

func TestWrapPreservesCauseViaUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(IO, "op", "context", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestFatalOnlyFalseForConsistencyWarning(t *testing.T) {
	assert.False(t, ConsistencyWarning.Fatal())
	assert.True(t, IO.Fatal())
	assert.True(t, Configuration.Fatal())
	assert.True(t, NoFreeSpace.Fatal())
	assert.True(t, InvalidAddress.Fatal())
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IO, "blockdev.Write", "writing block", cause)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "blockdev.Write")
}
