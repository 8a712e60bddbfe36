package handle

import "testing"

import "github.com/stretchr/testify/require"

func TestAllocGetFree(t *testing.T) {
	p := New[int]()

	h, item, ok := p.Alloc()
	require.True(t, ok)
	*item = 42

	got, ok := p.Get(h)
	require.True(t, ok)
	require.Equal(t, 42, *got)

	_, freed := p.Free(h)
	require.True(t, freed)

	_, ok = p.Get(h)
	require.False(t, ok)
}

// TestGenerationalSafety checks that after freeing H, all subsequent
// Get(H) return none, even once the slot is recycled by a fresh sequence
// of allocs/frees.
func TestGenerationalSafety(t *testing.T) {
	p := New[string]()

	h1, s1, _ := p.Alloc()
	*s1 = "first"

	_, freed := p.Free(h1)
	require.True(t, freed)

	h2, s2, _ := p.Alloc()
	*s2 = "second"
	require.Equal(t, h1.Index, h2.Index)
	require.NotEqual(t, h1.Generation, h2.Generation)

	_, ok := p.Get(h1)
	require.False(t, ok, "stale handle must never resolve after its slot is recycled")

	got, ok := p.Get(h2)
	require.True(t, ok)
	require.Equal(t, "second", *got)

	p.Free(h2)
	_, ok = p.Get(h1)
	require.False(t, ok)
	_, ok = p.Get(h2)
	require.False(t, ok)
}

func TestFreeStaleOrOutOfRangeIsNoop(t *testing.T) {
	p := New[int]()
	h, _, _ := p.Alloc()

	_, freed := p.Free(Handle{Index: 999, Generation: 1})
	require.False(t, freed)

	_, freed = p.Free(h)
	require.True(t, freed)
	_, freed = p.Free(h)
	require.False(t, freed, "double free must be a no-op")
}

// TestPoolAccounting checks count(active) + len(free_indices) = len(entries).
func TestPoolAccounting(t *testing.T) {
	p := New[int]()
	var handles []Handle
	for i := 0; i < 10; i++ {
		h, _, ok := p.Alloc()
		require.True(t, ok)
		handles = append(handles, h)
	}
	for i := 0; i < 4; i++ {
		p.Free(handles[i])
	}
	require.Equal(t, p.Len(), p.ActiveCount()+4)

	for i := 0; i < 4; i++ {
		_, _, ok := p.Alloc()
		require.True(t, ok)
	}
	require.Equal(t, 10, p.Len())
	require.Equal(t, 10, p.ActiveCount())
}

func TestCapacityCap(t *testing.T) {
	p := NewWithCapacity[int](2)
	_, _, ok := p.Alloc()
	require.True(t, ok)
	_, _, ok = p.Alloc()
	require.True(t, ok)
	_, _, ok = p.Alloc()
	require.False(t, ok, "capacity cap must be enforced")
}

func TestEachVisitsOnlyActive(t *testing.T) {
	p := New[int]()
	h1, v1, _ := p.Alloc()
	*v1 = 1
	h2, v2, _ := p.Alloc()
	*v2 = 2
	p.Free(h1)

	var seen []int
	p.Each(func(h Handle, v *int) bool {
		seen = append(seen, *v)
		return true
	})
	require.Equal(t, []int{2}, seen)
	require.Equal(t, h2.Index, uint32(1))
}

func TestEachAbort(t *testing.T) {
	p := New[int]()
	for i := 0; i < 5; i++ {
		_, v, _ := p.Alloc()
		*v = i
	}
	count := 0
	p.Each(func(h Handle, v *int) bool {
		count++
		return count < 2
	})
	require.Equal(t, 2, count)
}
