package scene

import "github.com/talon3d/engine/handle"

// Node is one entry in the scene tree: a local transform, a parent/child
// relationship, and at most one Attachment. Ownership is hierarchical —
// a parent owns its children and freeing a node recursively frees them
// (see Graph.FreeNode).
type Node struct {
	Name string

	Parent   handle.Handle
	Children []handle.Handle

	Local Transform

	Attachment Attachment

	// CullingEnabled mirrors the per-node culling_enabled flag the GPU
	// culling engine reads. Nodes without an AABBable attachment are
	// force-disabled regardless of this field.
	CullingEnabled bool
}

// rootSentinel is the identity parent every true root node's Parent field
// points at — it is never a real pool entry (zero Handle, generation 0,
// which Pool.Get always rejects).
var rootSentinel = handle.Handle{}

func (n *Node) isRoot() bool { return n.Parent == rootSentinel }
