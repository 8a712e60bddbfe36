// Package batch groups visible mesh instances into draw batches keyed by
// (material type, feature bits), so the main and shadow renderers can
// bind one pipeline per batch instead of per draw call.
package batch

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/warehouse"
)

// Key identifies one batch by material type and feature bits. The
// renderers pick between their static and skinned pipelines from the
// skinning bit alone (see Skinned).
type Key struct {
	MaterialType warehouse.MaterialType
	Features     uint32
}

// Less orders keys so batch iteration is deterministic frame to frame,
// which keeps pipeline-switch counts (and any GPU validation/debug
// output keyed by draw order) stable across runs.
func (k Key) Less(other Key) bool {
	if k.MaterialType != other.MaterialType {
		return k.MaterialType < other.MaterialType
	}
	return k.Features < other.Features
}

// Skinned reports whether this batch's draws need the skinned pipeline
// variant (bone SSBO plus the joint/weight vertex stream).
func (k Key) Skinned() bool { return k.Features&warehouse.FeatureSkinning != 0 }

// Instance is one draw within a batch: the node's world matrix plus its
// resolved mesh and material handles. BoneOffset is the instance's base
// slot in the bone-matrix slab for skinned draws, zero otherwise;
// CastShadow carries the node's flag so the shadow pass can filter
// instances without re-walking the scene graph.
type Instance struct {
	Node        handle.Handle
	WorldMatrix mgl32.Mat4
	Mesh        handle.Handle
	Material    handle.Handle
	BoneOffset  uint32
	CastShadow  bool
}

// Batch is every instance sharing one Key, in the order they were
// collected from the scene graph.
type Batch struct {
	Key       Key
	Instances []Instance
}

// InstanceGPU mirrors the per-instance vertex attributes the main and
// shadow render pipelines both consume: the node's world matrix, its
// material's bindless index and its bone-slab offset (frame-slice
// adjusted by the caller), padded to a 16-byte-aligned stride.
type InstanceGPU struct {
	World      mgl32.Mat4
	Material   uint32
	BoneOffset uint32
	_pad0      uint32
	_pad1      uint32
}

// InstanceGPUStride is the byte size of one InstanceGPU record.
const InstanceGPUStride = 80

// PackInstances converts a batch's instances into the GPU instance-buffer
// layout, ready for wgpu.ToBytes and upload into a per-frame instance
// buffer bound alongside the mesh's own vertex buffer. boneSliceOffset
// shifts every instance's bone offset into the recording frame's slice
// of the bone buffer.
func PackInstances(instances []Instance, boneSliceOffset uint32) []InstanceGPU {
	out := make([]InstanceGPU, len(instances))
	for i, inst := range instances {
		out[i] = InstanceGPU{World: inst.WorldMatrix, Material: inst.Material.Index, BoneOffset: inst.BoneOffset + boneSliceOffset}
	}
	return out
}

// MaterialProvider resolves a material handle to its stored Material.
// Builder depends on this instead of *warehouse.Warehouse directly so it
// can be exercised in tests without a live GPU device.
type MaterialProvider interface {
	Material(h handle.Handle) (*warehouse.Material, bool)
}

// Builder groups RenderNode entries by (material type, feature bits).
type Builder struct {
	materials MaterialProvider
}

func NewBuilder(materials MaterialProvider) *Builder {
	return &Builder{materials: materials}
}

// Build consumes the visible mesh instances the scene graph collected
// for this frame and returns them grouped into batches, ordered by Key so
// iteration is deterministic. A RenderNode whose material handle no
// longer resolves (freed mid-frame) is silently skipped.
func (b *Builder) Build(visible []scene.RenderNode) []Batch {
	grouped := make(map[Key][]Instance)

	for _, rn := range visible {
		mat, ok := b.materials.Material(rn.Mesh.Material)
		if !ok {
			continue
		}
		features := mat.Features
		var boneOffset uint32
		if rn.Mesh.HasSkinning {
			features |= warehouse.FeatureSkinning
			boneOffset = rn.Mesh.Skinning.BoneMatrixOffset
		}
		key := Key{MaterialType: mat.Type, Features: features}
		grouped[key] = append(grouped[key], Instance{
			Node:        rn.Node,
			WorldMatrix: rn.WorldMatrix,
			Mesh:        rn.Mesh.Mesh,
			Material:    rn.Mesh.Material,
			BoneOffset:  boneOffset,
			CastShadow:  rn.Mesh.CastShadow,
		})
	}

	keys := make([]Key, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	batches := make([]Batch, 0, len(keys))
	for _, k := range keys {
		batches = append(batches, Batch{Key: k, Instances: grouped[k]})
	}
	return batches
}
