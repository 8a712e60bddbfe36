// Package handle implements the engine's generational-handle slot pool.
//
// A Handle is a (index, generation) pair. Freeing a slot bumps its
// generation so that stale handles resolve to nothing instead of a
// recycled, unrelated item — this is what defeats use-after-free across
// the rest of the engine: a Node or Material can hold a Handle into a
// Pool indefinitely and will simply stop resolving once the underlying
// slot is freed and reused.
package handle

import "fmt"

// Handle addresses one slot of a Pool. The zero Handle never resolves:
// generation 0 means "never allocated".
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) IsZero() bool { return h.Generation == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("#%d@%d", h.Index, h.Generation)
}

type entry[T any] struct {
	generation uint32
	active     bool
	item       T
}

// Pool is a dense, append-only store of generational slots. Capacity is
// optional; a zero Capacity means unbounded.
type Pool[T any] struct {
	entries  []entry[T]
	free     []uint32
	Capacity int
}

// New constructs a Pool with no capacity cap.
func New[T any]() *Pool[T] {
	return &Pool[T]{}
}

// NewWithCapacity constructs a Pool that refuses to grow past cap entries.
func NewWithCapacity[T any](cap int) *Pool[T] {
	return &Pool[T]{Capacity: cap}
}

// Alloc reserves a slot, zero-initializing it, and returns its handle along
// with a mutable pointer to the stored item. It reuses a freed slot's index
// when one is available, keeping that slot's bumped generation; otherwise
// it appends a new slot at generation 1. Returns false when a capacity cap
// is set and already saturated with no free slot to reuse.
func (p *Pool[T]) Alloc() (Handle, *T, bool) {
	if len(p.free) > 0 {
		idx := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		e := &p.entries[idx]
		e.active = true
		var zero T
		e.item = zero
		return Handle{Index: idx, Generation: e.generation}, &e.item, true
	}

	if p.Capacity > 0 && len(p.entries) >= p.Capacity {
		return Handle{}, nil, false
	}

	idx := uint32(len(p.entries))
	p.entries = append(p.entries, entry[T]{generation: 1, active: true})
	e := &p.entries[idx]
	return Handle{Index: idx, Generation: e.generation}, &e.item, true
}

// Free deactivates h's slot and returns a mutable pointer to the item so
// the caller can release any GPU/CPU resources it owns before the slot is
// recycled by a later Alloc. freed reports whether the handle was live;
// Free is a no-op (returns nil, false) for stale or out-of-range handles.
// The slot's generation is incremented (skipping 0 on wrap) so it is never
// confused for the freed handle again.
func (p *Pool[T]) Free(h Handle) (item *T, freed bool) {
	if int(h.Index) >= len(p.entries) {
		return nil, false
	}
	e := &p.entries[h.Index]
	if !e.active || e.generation != h.Generation {
		return nil, false
	}
	e.active = false
	e.generation++
	if e.generation == 0 {
		e.generation = 1
	}
	p.free = append(p.free, h.Index)
	return &e.item, true
}

// Get resolves h to its item, returning ok=false when h is stale,
// out-of-range, or addresses an inactive slot.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	if int(h.Index) >= len(p.entries) {
		return nil, false
	}
	e := &p.entries[h.Index]
	if !e.active || e.generation != h.Generation {
		return nil, false
	}
	return &e.item, true
}

// Len returns the number of entries ever allocated (active + freed), i.e.
// the dense backing array's length.
func (p *Pool[T]) Len() int { return len(p.entries) }

// ActiveCount returns the number of currently active slots.
func (p *Pool[T]) ActiveCount() int { return len(p.entries) - len(p.free) }

// Each calls fn for every active slot in dense storage order, passing its
// current handle and item pointer. fn returning false stops the
// traversal early.
func (p *Pool[T]) Each(fn func(Handle, *T) bool) {
	for i := range p.entries {
		e := &p.entries[i]
		if !e.active {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: e.generation}, &e.item) {
			return
		}
	}
}
