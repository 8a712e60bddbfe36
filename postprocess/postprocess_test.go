package postprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTargetsFirstEffectReadsMain(t *testing.T) {
	read, write, toSwap := ResolveTargets(0, 3)
	require.Equal(t, 0, read)
	require.False(t, toSwap)
	require.Equal(t, 1, write)
}

func TestResolveTargetsAlternatesPingPong(t *testing.T) {
	read, write, toSwap := ResolveTargets(1, 4)
	require.Equal(t, 1, read)
	require.False(t, toSwap)
	require.Equal(t, 2, write)

	read, write, toSwap = ResolveTargets(2, 4)
	require.Equal(t, 2, read)
	require.False(t, toSwap)
	require.Equal(t, 1, write)
}

func TestResolveTargetsLastEffectWritesSwapchain(t *testing.T) {
	read, _, toSwap := ResolveTargets(2, 3)
	require.True(t, toSwap)
	require.Equal(t, 2, read)
}

func TestResolveTargetsSingleEffectReadsMainWritesSwapchain(t *testing.T) {
	read, _, toSwap := ResolveTargets(0, 1)
	require.Equal(t, 0, read)
	require.True(t, toSwap)
}

func TestStackEntriesInsertsNonePassthroughWhenEmpty(t *testing.T) {
	s := NewStack()
	entries := s.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, EffectNone, entries[0].Effect)
}

func TestStackAddAndClear(t *testing.T) {
	s := NewStack()
	s.Add(Entry{Effect: EffectGrayscale})
	s.Add(Entry{Effect: EffectBloom, Param0: 0.5})
	require.Len(t, s.Entries(), 2)

	s.Clear()
	require.Len(t, s.Entries(), 1)
	require.Equal(t, EffectNone, s.Entries()[0].Effect)
}
