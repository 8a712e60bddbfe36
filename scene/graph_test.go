package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/handle"
)

type fakeBounds struct{ aabb geom.AABB }

func (f fakeBounds) MeshLocalAABB(h handle.Handle) (geom.AABB, bool) {
	return f.aabb, true
}

func TestWorldMatrixPropagation(t *testing.T) {
	g := NewGraph(0)

	parentLocal := Identity()
	parentLocal.Position = mgl32.Vec3{10, 0, 0}
	parent, err := g.CreateNode(g.Root(), parentLocal, Attachment{}, "parent")
	require.NoError(t, err)

	childLocal := Identity()
	childLocal.Position = mgl32.Vec3{0, 5, 0}
	child, err := g.CreateNode(parent, childLocal, Attachment{}, "child")
	require.NoError(t, err)

	g.UpdateWorldMatrices()

	cn, _ := g.Get(child)
	got := cn.Local.World.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	require.InDelta(t, 10.0, got.X(), 1e-4)
	require.InDelta(t, 5.0, got.Y(), 1e-4)
}

func TestWorldMatrixPropagatesParentMoveToCleanChildren(t *testing.T) {
	g := NewGraph(0)
	parent, _ := g.CreateNode(g.Root(), Identity(), Attachment{}, "parent")
	child, _ := g.CreateNode(parent, Identity(), Attachment{}, "child")
	g.UpdateWorldMatrices()

	pn, _ := g.Get(parent)
	pn.Local.SetPosition(mgl32.Vec3{0, 0, -7})
	g.UpdateWorldMatrices()

	cn, _ := g.Get(child)
	got := cn.Local.World.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	require.InDelta(t, -7.0, got.Z(), 1e-4)
}

func TestAttachRejectsCycle(t *testing.T) {
	g := NewGraph(0)
	a, _ := g.CreateNode(g.Root(), Identity(), Attachment{}, "a")
	b, _ := g.CreateNode(a, Identity(), Attachment{}, "b")

	err := g.Attach(b, a)
	require.Error(t, err, "reparenting an ancestor under its own descendant must be rejected")
}

func TestFreeNodeRecursive(t *testing.T) {
	g := NewGraph(0)
	a, _ := g.CreateNode(g.Root(), Identity(), Attachment{}, "a")
	b, _ := g.CreateNode(a, Identity(), Attachment{}, "b")
	c, _ := g.CreateNode(b, Identity(), Attachment{}, "c")

	g.FreeNode(a)

	_, ok := g.Get(a)
	require.False(t, ok)
	_, ok = g.Get(b)
	require.False(t, ok)
	_, ok = g.Get(c)
	require.False(t, ok)
}

func TestCullingSlotsDisabledWithoutAttachment(t *testing.T) {
	g := NewGraph(0)
	_, err := g.CreateNode(g.Root(), Identity(), Attachment{}, "empty")
	require.NoError(t, err)

	slots := g.CullingSlots(fakeBounds{aabb: geom.UnitBox()})
	require.False(t, slots[g.Root().Index].Enabled)
}

func TestCullingSlotsEnabledForMesh(t *testing.T) {
	g := NewGraph(0)
	h, err := g.CreateNode(g.Root(), Identity(), MeshAttach(MeshAttachment{Mesh: handle.Handle{Index: 1, Generation: 1}}), "m")
	require.NoError(t, err)
	g.UpdateWorldMatrices()

	slots := g.CullingSlots(fakeBounds{aabb: geom.UnitBox()})
	require.True(t, slots[h.Index].Enabled)
}

func TestCollectVisibleMeshesFiltersByBitset(t *testing.T) {
	g := NewGraph(0)
	h1, _ := g.CreateNode(g.Root(), Identity(), MeshAttach(MeshAttachment{}), "m1")
	h2, _ := g.CreateNode(g.Root(), Identity(), MeshAttach(MeshAttachment{}), "m2")
	g.UpdateWorldMatrices()

	vis := make([]bool, g.SlotCount())
	vis[h1.Index] = true

	visible := g.CollectVisibleMeshes(vis)
	require.Len(t, visible, 1)
	require.Equal(t, h1, visible[0].Node)
	_ = h2
}
