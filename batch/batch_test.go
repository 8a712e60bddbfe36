package batch

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/warehouse"
)

type fakeMaterials struct {
	byHandle map[handle.Handle]warehouse.Material
}

func (f fakeMaterials) Material(h handle.Handle) (*warehouse.Material, bool) {
	m, ok := f.byHandle[h]
	if !ok {
		return nil, false
	}
	return &m, true
}

func TestBuildGroupsByMaterialKey(t *testing.T) {
	matA := handle.Handle{Index: 1, Generation: 1}
	matB := handle.Handle{Index: 2, Generation: 1}
	provider := fakeMaterials{byHandle: map[handle.Handle]warehouse.Material{
		matA: {Type: warehouse.MaterialPBR, Features: warehouse.FeatureAlbedoTexture},
		matB: {Type: warehouse.MaterialUnlit, Features: 0},
	}}

	visible := []scene.RenderNode{
		{Node: handle.Handle{Index: 10, Generation: 1}, WorldMatrix: mgl32.Ident4(), Mesh: scene.MeshAttachment{Mesh: handle.Handle{Index: 100, Generation: 1}, Material: matA}},
		{Node: handle.Handle{Index: 11, Generation: 1}, WorldMatrix: mgl32.Ident4(), Mesh: scene.MeshAttachment{Mesh: handle.Handle{Index: 101, Generation: 1}, Material: matA}},
		{Node: handle.Handle{Index: 12, Generation: 1}, WorldMatrix: mgl32.Ident4(), Mesh: scene.MeshAttachment{Mesh: handle.Handle{Index: 102, Generation: 1}, Material: matB}},
	}

	b := NewBuilder(provider)
	batches := b.Build(visible)

	require.Len(t, batches, 2)
	require.Equal(t, warehouse.MaterialPBR, batches[0].Key.MaterialType)
	require.Len(t, batches[0].Instances, 2)
	require.Equal(t, warehouse.MaterialUnlit, batches[1].Key.MaterialType)
	require.Len(t, batches[1].Instances, 1)
}

func TestBuildOrdersBatchesDeterministically(t *testing.T) {
	matA := handle.Handle{Index: 1, Generation: 1}
	matB := handle.Handle{Index: 2, Generation: 1}
	provider := fakeMaterials{byHandle: map[handle.Handle]warehouse.Material{
		matA: {Type: warehouse.MaterialPBR, Features: 2},
		matB: {Type: warehouse.MaterialPBR, Features: 1},
	}}
	visible := []scene.RenderNode{
		{Mesh: scene.MeshAttachment{Material: matA}},
		{Mesh: scene.MeshAttachment{Material: matB}},
	}

	b := NewBuilder(provider)
	batches := b.Build(visible)
	require.Len(t, batches, 2)
	require.True(t, batches[0].Key.Less(batches[1].Key))
}

func TestPackInstancesCarriesWorldMatrixAndMaterialIndex(t *testing.T) {
	instances := []Instance{
		{WorldMatrix: mgl32.Translate3D(1, 2, 3), Material: handle.Handle{Index: 7, Generation: 2}},
	}
	packed := PackInstances(instances, 0)
	require.Len(t, packed, 1)
	require.Equal(t, mgl32.Translate3D(1, 2, 3), packed[0].World)
	require.Equal(t, uint32(7), packed[0].Material)
}

func TestPackInstancesShiftsBoneOffsetIntoFrameSlice(t *testing.T) {
	instances := []Instance{{BoneOffset: 40}}
	packed := PackInstances(instances, 1024)
	require.Equal(t, uint32(1064), packed[0].BoneOffset)
}

func TestBuildMarksSkinnedMeshesWithSkinningFeature(t *testing.T) {
	mat := handle.Handle{Index: 1, Generation: 1}
	provider := fakeMaterials{byHandle: map[handle.Handle]warehouse.Material{
		mat: {Type: warehouse.MaterialPBR, Features: 0},
	}}
	visible := []scene.RenderNode{
		{Mesh: scene.MeshAttachment{Material: mat}},
		{Mesh: scene.MeshAttachment{
			Material:    mat,
			HasSkinning: true,
			Skinning:    scene.MeshSkinning{BoneMatrixOffset: 96, BoneCount: 24},
		}},
	}

	b := NewBuilder(provider)
	batches := b.Build(visible)
	require.Len(t, batches, 2)

	require.False(t, batches[0].Key.Skinned())
	require.True(t, batches[1].Key.Skinned())
	require.Equal(t, uint32(96), batches[1].Instances[0].BoneOffset)
}

func TestBuildSkipsUnresolvableMaterial(t *testing.T) {
	provider := fakeMaterials{byHandle: map[handle.Handle]warehouse.Material{}}
	visible := []scene.RenderNode{
		{Mesh: scene.MeshAttachment{Material: handle.Handle{Index: 99, Generation: 1}}},
	}
	b := NewBuilder(provider)
	require.Empty(t, b.Build(visible))
}
