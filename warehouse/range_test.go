package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocVertexRangeAdvancesCursor(t *testing.T) {
	w := &Warehouse{cfg: Config{VertexBufferSize: 1024}}

	r1, err := w.allocVertexRange(4, 32)
	require.NoError(t, err)
	require.EqualValues(t, 0, r1.Offset)
	require.EqualValues(t, 4, r1.Count)

	r2, err := w.allocVertexRange(4, 32)
	require.NoError(t, err)
	require.EqualValues(t, 4, r2.Offset)
}

func TestAllocVertexRangeRejectsOverflow(t *testing.T) {
	w := &Warehouse{cfg: Config{VertexBufferSize: 128}}
	_, err := w.allocVertexRange(4, 32) // fits exactly
	require.NoError(t, err)
	_, err = w.allocVertexRange(1, 32) // one more vertex pushes past the cap
	require.Error(t, err)
}

func TestAllocIndexRangeAdvancesCursor(t *testing.T) {
	w := &Warehouse{cfg: Config{IndexBufferSize: 64}}
	r1, err := w.allocIndexRange(8)
	require.NoError(t, err)
	require.EqualValues(t, 0, r1.Offset)

	r2, err := w.allocIndexRange(4)
	require.NoError(t, err)
	require.EqualValues(t, 8, r2.Offset)
}

func TestAllocIndexRangeRejectsOverflow(t *testing.T) {
	w := &Warehouse{cfg: Config{IndexBufferSize: 16}}
	_, err := w.allocIndexRange(4) // exactly 16 bytes
	require.NoError(t, err)
	_, err = w.allocIndexRange(1)
	require.Error(t, err)
}
