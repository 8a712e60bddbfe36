// Package slab implements a multi-class fixed-block allocator: a handful
// of size classes, each with its own free list, carved out of one virtual
// arena of contiguous u32 offsets. The canonical user is skinned-mesh
// bone matrices, but the allocator itself is domain-agnostic.
package slab

import (
	"fmt"
	"sort"
)

const MaxClasses = 8

// ClassConfig describes one size class: BlockSize slots per block,
// BlockCount blocks in the class.
type ClassConfig struct {
	BlockSize  uint32
	BlockCount uint32
}

type class struct {
	ClassConfig
	base uint32 // offset of this class's first block in the arena
	free []uint32
}

// Allocator partitions a virtual arena of sum(BlockSize*BlockCount) slots
// into up to MaxClasses size classes. It never coalesces: fragmentation is
// bounded purely by the classes the caller configures.
type Allocator struct {
	classes []class
	total   uint32
	used    uint32
}

// New builds an Allocator from a sorted-by-BlockSize list of classes
// (sorted ascending if not already, so Alloc's "smallest class that fits"
// scan is correct). At most MaxClasses classes are accepted.
func New(configs []ClassConfig) (*Allocator, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("slab: at least one size class is required")
	}
	if len(configs) > MaxClasses {
		return nil, fmt.Errorf("slab: %d classes exceeds max of %d", len(configs), MaxClasses)
	}

	sorted := make([]ClassConfig, len(configs))
	copy(sorted, configs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].BlockSize < sorted[j].BlockSize })

	a := &Allocator{}
	var base uint32
	for _, c := range sorted {
		if c.BlockSize == 0 || c.BlockCount == 0 {
			return nil, fmt.Errorf("slab: block size and count must be nonzero")
		}
		cl := class{ClassConfig: c, base: base}
		cl.free = make([]uint32, c.BlockCount)
		for i := uint32(0); i < c.BlockCount; i++ {
			cl.free[i] = base + i*c.BlockSize
		}
		a.classes = append(a.classes, cl)
		base += c.BlockSize * c.BlockCount
	}
	a.total = base
	return a, nil
}

// Capacity returns the total number of slots across all classes.
func (a *Allocator) Capacity() uint32 { return a.total }

// Used returns the number of slots currently allocated (sum over classes
// of block_size * blocks-in-use).
func (a *Allocator) Used() uint32 { return a.used }

// Alloc picks the smallest class whose BlockSize >= n and that still has a
// free block, pops that block's offset off the class's free list, and
// returns it. Returns (0, false) when no class can satisfy n.
func (a *Allocator) Alloc(n uint32) (uint32, bool) {
	for i := range a.classes {
		c := &a.classes[i]
		if c.BlockSize < n {
			continue
		}
		if len(c.free) == 0 {
			continue
		}
		off := c.free[len(c.free)-1]
		c.free = c.free[:len(c.free)-1]
		a.used += c.BlockSize
		return off, true
	}
	return 0, false
}

// Free returns offset's block to its class's free list. It locates the
// owning class by arithmetic over [base, base+BlockSize*BlockCount)
// ranges and is a no-op for an offset outside every class's range or
// already on its class's free list.
func (a *Allocator) Free(offset uint32) bool {
	for i := range a.classes {
		c := &a.classes[i]
		extent := c.BlockSize * c.BlockCount
		if offset < c.base || offset >= c.base+extent {
			continue
		}
		if (offset-c.base)%c.BlockSize != 0 {
			return false
		}
		for _, f := range c.free {
			if f == offset {
				return false
			}
		}
		c.free = append(c.free, offset)
		a.used -= c.BlockSize
		return true
	}
	return false
}

// ClassFor reports the (blockSize, base, count) of the class that owns
// offset, for diagnostics and invariant checks.
func (a *Allocator) ClassFor(offset uint32) (cfg ClassConfig, base uint32, ok bool) {
	for i := range a.classes {
		c := &a.classes[i]
		extent := c.BlockSize * c.BlockCount
		if offset >= c.base && offset < c.base+extent {
			return c.ClassConfig, c.base, true
		}
	}
	return ClassConfig{}, 0, false
}
