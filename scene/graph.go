package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/handle"
)

// MeshBoundsProvider resolves a mesh handle to its local-space AABB. The
// scene graph depends on this interface rather than importing the
// warehouse package directly, so the two packages can be tested and
// reused independently of one another.
type MeshBoundsProvider interface {
	MeshLocalAABB(h handle.Handle) (geom.AABB, bool)
}

// Graph is the node tree. It is backed by a handle.Pool so that a node's
// handle.Index doubles as its "scene slot" for the culling engine's
// per-node AABB/visibility arrays, which are indexed the same way.
type Graph struct {
	pool  *handle.Pool[Node]
	order []handle.Handle // creation order, parents-before-children when Attach is used at creation time
	root  handle.Handle
}

// NewGraph constructs a Graph with an explicit root node and, optionally,
// a node capacity cap. Pass 0 for no cap.
func NewGraph(capacity int) *Graph {
	var pool *handle.Pool[Node]
	if capacity > 0 {
		pool = handle.NewWithCapacity[Node](capacity)
	} else {
		pool = handle.New[Node]()
	}
	g := &Graph{pool: pool}
	h, n, ok := pool.Alloc()
	if !ok {
		panic("scene: capacity too small to hold the root node")
	}
	n.Name = "root"
	n.Local = Identity()
	n.Parent = rootSentinel
	g.root = h
	g.order = append(g.order, h)
	return g
}

// Root returns the handle of the graph's single root node.
func (g *Graph) Root() handle.Handle { return g.root }

// Get resolves h to its Node, or ok=false for a stale/unknown handle.
func (g *Graph) Get(h handle.Handle) (*Node, bool) { return g.pool.Get(h) }

// Capacity returns the configured node cap, or 0 if uncapped.
func (g *Graph) Capacity() int { return g.pool.Capacity }

// SlotCount returns the dense slot count backing the pool (handle.Index
// values range over [0, SlotCount)), i.e. the size the culling engine
// should allocate its per-slot arrays to.
func (g *Graph) SlotCount() int { return g.pool.Len() }

// CreateNode allocates a new node as a child of parent.
func (g *Graph) CreateNode(parent handle.Handle, local Transform, att Attachment, name string) (handle.Handle, error) {
	parentNode, ok := g.pool.Get(parent)
	if !ok {
		return handle.Handle{}, fmt.Errorf("scene: invalid parent handle %s", parent)
	}

	h, n, ok := g.pool.Alloc()
	if !ok {
		return handle.Handle{}, fmt.Errorf("scene: node capacity %d exceeded", g.pool.Capacity)
	}
	n.Name = name
	n.Local = local
	n.Local.Dirty = true
	n.Attachment = att
	n.CullingEnabled = att.Kind != AttachmentNone
	n.Parent = parent

	// Alloc may have grown the pool's backing storage; re-resolve the
	// parent so the child lands in the live entry.
	parentNode, _ = g.pool.Get(parent)
	parentNode.Children = append(parentNode.Children, h)
	g.order = append(g.order, h)
	return h, nil
}

// Attach reparents an already-existing child under a new parent. It
// rejects a change that would create a cycle by walking up from the
// proposed parent looking for the child.
func (g *Graph) Attach(parent, child handle.Handle) error {
	if parent == child {
		return fmt.Errorf("scene: a node cannot be its own parent")
	}
	parentNode, ok := g.pool.Get(parent)
	if !ok {
		return fmt.Errorf("scene: invalid parent handle %s", parent)
	}
	childNode, ok := g.pool.Get(child)
	if !ok {
		return fmt.Errorf("scene: invalid child handle %s", child)
	}

	for cur := parent; ; {
		if cur == child {
			return fmt.Errorf("scene: attaching %s under %s would create a cycle", child, parent)
		}
		curNode, ok := g.pool.Get(cur)
		if !ok || curNode.isRoot() {
			break
		}
		cur = curNode.Parent
	}

	if old, ok := g.pool.Get(childNode.Parent); ok {
		old.Children = removeHandle(old.Children, child)
	}
	childNode.Parent = parent
	childNode.Local.Dirty = true
	parentNode.Children = append(parentNode.Children, child)
	return nil
}

func removeHandle(list []handle.Handle, h handle.Handle) []handle.Handle {
	for i, v := range list {
		if v == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// FreeNode recursively frees h and all of its descendants (a parent owns
// its children). It is a no-op for a stale handle or for the root node.
func (g *Graph) FreeNode(h handle.Handle) {
	if h == g.root {
		return
	}
	n, ok := g.pool.Get(h)
	if !ok {
		return
	}
	children := append([]handle.Handle(nil), n.Children...)
	for _, c := range children {
		g.FreeNode(c)
	}
	if parent, ok := g.pool.Get(n.Parent); ok {
		parent.Children = removeHandle(parent.Children, h)
	}
	g.pool.Free(h)
	g.order = removeHandle(g.order, h)
}

// SetCulling overrides the per-node culling_enabled flag. A stale handle
// is a silent no-op.
func (g *Graph) SetCulling(h handle.Handle, enabled bool) {
	if n, ok := g.pool.Get(h); ok {
		n.CullingEnabled = enabled
	}
}

// UpdateWorldMatrices propagates dirty local transforms into world
// matrices with a single linear pass over creation order (parents before
// children), then a second pass to fix any residual left by an
// out-of-order reparent.
func (g *Graph) UpdateWorldMatrices() {
	updated := make([]bool, g.pool.Len())
	g.propagatePass(updated)
	g.propagatePass(updated)
}

// propagatePass recomputes a node's world matrix when its own local
// transform is dirty or its parent's world matrix was recomputed this
// update. updated is indexed by handle.Index and carries parent
// recomputation state down the pass — a node's Dirty bit alone is not
// enough, since it is cleared when the node itself is processed and its
// children still need to observe the change afterward.
func (g *Graph) propagatePass(updated []bool) {
	root, _ := g.pool.Get(g.root)
	if root.Local.Dirty {
		root.Local.World = root.Local.Local()
		root.Local.Dirty = false
		updated[g.root.Index] = true
	}

	for _, h := range g.order {
		if h == g.root {
			continue
		}
		n, ok := g.pool.Get(h)
		if !ok {
			continue
		}
		parent, ok := g.pool.Get(n.Parent)
		if !ok {
			continue
		}
		if !n.Local.Dirty && !updated[n.Parent.Index] {
			continue
		}
		n.Local.World = parent.Local.World.Mul4(n.Local.Local())
		n.Local.Dirty = false
		updated[h.Index] = true
	}
}

// Traverse walks every active node in creation order, calling fn with the
// node's handle and a mutable pointer. fn returning false aborts the walk.
func (g *Graph) Traverse(fn func(handle.Handle, *Node) bool) {
	for _, h := range g.order {
		n, ok := g.pool.Get(h)
		if !ok {
			continue
		}
		if !fn(h, n) {
			return
		}
	}
}

// CullingSlot is one entry of the per-node AABB array the culling engine
// uploads to the GPU.
type CullingSlot struct {
	AABB    geom.AABB
	Enabled bool
}

// CullingSlots computes one CullingSlot per dense pool slot (indexed by
// handle.Index), deriving each active node's world AABB from its
// attachment: mesh AABB from bounds, light radius box, particle system's
// own bounds, emitter default unit box. Freed/inactive slots and nodes
// without an AABBable attachment get Enabled=false.
func (g *Graph) CullingSlots(bounds MeshBoundsProvider) []CullingSlot {
	slots := make([]CullingSlot, g.pool.Len())
	g.pool.Each(func(h handle.Handle, n *Node) bool {
		local, ok := localAABB(n, bounds)
		slots[h.Index] = CullingSlot{
			AABB:    local.Transform(n.Local.World),
			Enabled: ok && n.CullingEnabled,
		}
		return true
	})
	return slots
}

func localAABB(n *Node, bounds MeshBoundsProvider) (geom.AABB, bool) {
	switch n.Attachment.Kind {
	case AttachmentMesh:
		if b, ok := bounds.MeshLocalAABB(n.Attachment.Mesh.Mesh); ok {
			return b, true
		}
		return geom.AABB{}, false
	case AttachmentPointLight, AttachmentSpotLight:
		r := n.Attachment.Light.Radius
		return geom.AABB{Min: mgl32.Vec3{-r, -r, -r}, Max: mgl32.Vec3{r, r, r}}, true
	case AttachmentDirectionalLight:
		return geom.AABB{}, false
	case AttachmentParticleSystem:
		return n.Attachment.ParticleSystem.AABB, true
	case AttachmentEmitter:
		return geom.UnitBox(), true
	default:
		return geom.AABB{}, false
	}
}

// RenderNode is one visible mesh instance collected for batching.
type RenderNode struct {
	Node        handle.Handle
	WorldMatrix mgl32.Mat4
	Mesh        MeshAttachment
}

// CollectVisibleMeshes gathers every mesh-attached node whose slot is
// live in vis (indexed by handle.Index, the shape the culling engine's
// readback bitset has).
func (g *Graph) CollectVisibleMeshes(vis []bool) []RenderNode {
	var out []RenderNode
	g.pool.Each(func(h handle.Handle, n *Node) bool {
		if n.Attachment.Kind != AttachmentMesh {
			return true
		}
		if int(h.Index) < len(vis) && !vis[h.Index] {
			return true
		}
		out = append(out, RenderNode{Node: h, WorldMatrix: n.Local.World, Mesh: *n.Attachment.Mesh})
		return true
	})
	return out
}

// EmitterNode pairs a node handle with its world transform and emitter
// configuration, for the particle engine's spawn step.
type EmitterNode struct {
	Node        handle.Handle
	WorldMatrix mgl32.Mat4
	Emitter     *EmitterAttachment
}

func (g *Graph) CollectEmitters() []EmitterNode {
	var out []EmitterNode
	g.pool.Each(func(h handle.Handle, n *Node) bool {
		if n.Attachment.Kind != AttachmentEmitter {
			return true
		}
		out = append(out, EmitterNode{Node: h, WorldMatrix: n.Local.World, Emitter: n.Attachment.Emitter})
		return true
	})
	return out
}

// ForceFieldNode pairs a node handle with its derived world position and
// force-field configuration.
type ForceFieldNode struct {
	Node          handle.Handle
	WorldPosition mgl32.Vec3
	ForceField    *ForceFieldAttachment
}

func (g *Graph) CollectForceFields() []ForceFieldNode {
	var out []ForceFieldNode
	g.pool.Each(func(h handle.Handle, n *Node) bool {
		if n.Attachment.Kind != AttachmentForceField {
			return true
		}
		pos := n.Local.World.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
		out = append(out, ForceFieldNode{Node: h, WorldPosition: pos, ForceField: n.Attachment.ForceField})
		return true
	})
	return out
}

// LightNode pairs a node handle with its derived world position/direction
// and the light's static configuration.
type LightNode struct {
	Node          handle.Handle
	WorldPosition mgl32.Vec3
	WorldForward  mgl32.Vec3
	Light         *LightAttachment
}

func (g *Graph) CollectLights() []LightNode {
	var out []LightNode
	g.pool.Each(func(h handle.Handle, n *Node) bool {
		switch n.Attachment.Kind {
		case AttachmentPointLight, AttachmentDirectionalLight, AttachmentSpotLight:
		default:
			return true
		}
		pos := n.Local.World.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
		fwd := n.Local.World.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize()
		out = append(out, LightNode{Node: h, WorldPosition: pos, WorldForward: fwd, Light: n.Attachment.Light})
		return true
	})
	return out
}
