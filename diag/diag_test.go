package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnceWarnerLatchesAndResets(t *testing.T) {
	var w OnceWarner
	log := NewDefaultLogger("test", false)

	w.Warn(log, "overflow %d", 1)
	require.True(t, w.warned)
	w.Warn(log, "overflow %d", 2) // should not panic or double-log; nothing to assert on output directly

	w.Reset()
	require.False(t, w.warned)
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := NewError(CapacityExceeded, "too many lights")
	require.True(t, errors.Is(err, KindSentinel(CapacityExceeded)))
	require.False(t, errors.Is(err, KindSentinel(DeviceLost)))
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(InitializationFailed, cause, "device setup")
	require.ErrorIs(t, err, cause)
}

func TestFatalClassification(t *testing.T) {
	require.True(t, NewError(DeviceLost, "x").Fatal())
	require.True(t, NewError(SwapchainOutOfDate, "x").Fatal())
	require.False(t, NewError(CapacityExceeded, "x").Fatal())
}
