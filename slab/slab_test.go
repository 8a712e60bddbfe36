package slab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocPicksSmallestFittingClass(t *testing.T) {
	a, err := New([]ClassConfig{
		{BlockSize: 4, BlockCount: 2},
		{BlockSize: 16, BlockCount: 2},
		{BlockSize: 64, BlockCount: 2},
	})
	require.NoError(t, err)
	require.EqualValues(t, 4*2+16*2+64*2, a.Capacity())

	off, ok := a.Alloc(10)
	require.True(t, ok)
	cfg, _, ok := a.ClassFor(off)
	require.True(t, ok)
	require.EqualValues(t, 16, cfg.BlockSize)
}

func TestAllocExhaustionFallsThroughToLargerClass(t *testing.T) {
	a, err := New([]ClassConfig{
		{BlockSize: 4, BlockCount: 1},
		{BlockSize: 8, BlockCount: 1},
	})
	require.NoError(t, err)

	o1, ok := a.Alloc(4)
	require.True(t, ok)
	cfg1, _, _ := a.ClassFor(o1)
	require.EqualValues(t, 4, cfg1.BlockSize)

	o2, ok := a.Alloc(4)
	require.True(t, ok)
	cfg2, _, _ := a.ClassFor(o2)
	require.EqualValues(t, 8, cfg2.BlockSize, "first class exhausted, must fall through")

	_, ok = a.Alloc(4)
	require.False(t, ok, "both classes now exhausted")
}

func TestFreeReturnsBlockToItsClass(t *testing.T) {
	a, err := New([]ClassConfig{{BlockSize: 4, BlockCount: 1}})
	require.NoError(t, err)

	off, ok := a.Alloc(4)
	require.True(t, ok)
	require.EqualValues(t, 4, a.Used())

	require.True(t, a.Free(off))
	require.EqualValues(t, 0, a.Used())

	off2, ok := a.Alloc(4)
	require.True(t, ok)
	require.Equal(t, off, off2)
}

func TestFreeOutOfRangeIsNoop(t *testing.T) {
	a, _ := New([]ClassConfig{{BlockSize: 4, BlockCount: 1}})
	require.False(t, a.Free(999))
}

// TestSlabConservation checks that sum over classes of
// block_size*(block_count - len(free)) equals total allocated bytes, and
// that every allocated offset lies within its class's range.
func TestSlabConservation(t *testing.T) {
	a, err := New([]ClassConfig{
		{BlockSize: 8, BlockCount: 4},
		{BlockSize: 32, BlockCount: 4},
	})
	require.NoError(t, err)

	var offsets []uint32
	for i := 0; i < 4; i++ {
		off, ok := a.Alloc(8)
		require.True(t, ok)
		offsets = append(offsets, off)
	}
	require.EqualValues(t, 8*4, a.Used())

	for _, off := range offsets {
		cfg, base, ok := a.ClassFor(off)
		require.True(t, ok)
		require.GreaterOrEqual(t, off, base)
		require.Less(t, off, base+cfg.BlockSize*cfg.BlockCount)
	}

	for _, off := range offsets {
		require.True(t, a.Free(off))
	}
	require.EqualValues(t, 0, a.Used())
}

func TestRejectsTooManyClasses(t *testing.T) {
	var configs []ClassConfig
	for i := 0; i < MaxClasses+1; i++ {
		configs = append(configs, ClassConfig{BlockSize: uint32(i + 1), BlockCount: 1})
	}
	_, err := New(configs)
	require.Error(t, err)
}
