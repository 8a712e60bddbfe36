package warehouse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/slab"
)

func boneTestWarehouse(t *testing.T, classes []slab.ClassConfig) *Warehouse {
	t.Helper()
	alloc, err := slab.New(classes)
	require.NoError(t, err)
	return &Warehouse{boneSlab: alloc}
}

func TestAllocBoneRangeRoundTrips(t *testing.T) {
	w := boneTestWarehouse(t, []slab.ClassConfig{{BlockSize: 16, BlockCount: 4}})

	off, err := w.AllocBoneRange(10)
	require.NoError(t, err)
	require.Less(t, off, w.BoneSliceStride())
	require.EqualValues(t, 16, w.BoneSlabUsed())

	require.True(t, w.FreeBoneRange(off))
	require.EqualValues(t, 0, w.BoneSlabUsed())
}

func TestAllocBoneRangeExhaustionReturnsCapacityExceeded(t *testing.T) {
	w := boneTestWarehouse(t, []slab.ClassConfig{{BlockSize: 8, BlockCount: 1}})

	_, err := w.AllocBoneRange(8)
	require.NoError(t, err)

	_, err = w.AllocBoneRange(1)
	require.Error(t, err)
	require.True(t, errors.Is(err, diag.KindSentinel(diag.CapacityExceeded)))
}

func TestAllocBoneRangeTooLargeForAnyClass(t *testing.T) {
	w := boneTestWarehouse(t, []slab.ClassConfig{{BlockSize: 8, BlockCount: 4}})
	_, err := w.AllocBoneRange(9)
	require.Error(t, err)
}

func TestBoneSliceStrideMatchesSlabCapacity(t *testing.T) {
	classes := []slab.ClassConfig{
		{BlockSize: 8, BlockCount: 4},
		{BlockSize: 32, BlockCount: 2},
	}
	w := boneTestWarehouse(t, classes)
	require.EqualValues(t, 8*4+32*2, w.BoneSliceStride())
}
