package warehouse

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/slab"
)

// boneMatrixStride is sizeof(mat4x4<f32>).
const boneMatrixStride = 64

// SkinVertexStride is the byte stride of one skin-vertex record in the
// global skin vertex buffer: joint indices (4x u32) plus weights
// (4x f32).
const SkinVertexStride = 32

// DefaultBoneClasses sizes the bone slab for a mix of small props and
// full character rigs. Callers with heavier skinning loads pass their own
// classes through Config and should check the total against
// gpu.Context.MaxStorageBufferBindingSize first.
func DefaultBoneClasses() []slab.ClassConfig {
	return []slab.ClassConfig{
		{BlockSize: 8, BlockCount: 256},
		{BlockSize: 32, BlockCount: 128},
		{BlockSize: 128, BlockCount: 64},
	}
}

// initBoneStore builds the slab allocator and the bone-matrix SSBO it
// indexes into. The buffer holds one slice of slab capacity per frame in
// flight so the CPU can rewrite one frame's matrices while the GPU still
// reads the other's.
func (w *Warehouse) initBoneStore() error {
	var err error
	w.boneSlab, err = slab.New(w.cfg.BoneClasses)
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: bone slab")
	}

	size := uint64(w.boneSlab.Capacity()) * boneMatrixStride * uint64(w.cfg.BoneFrameSlices)
	w.boneBuffer, err = w.ctx.CreateBuffer("warehouse.bones", wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, size)
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: bone matrix SSBO")
	}

	w.skinVertexBuffer, err = w.ctx.CreateBuffer("warehouse.skin-vertices", wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, w.cfg.SkinVertexBufferSize)
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: skin vertex buffer")
	}
	return nil
}

// AllocBoneRange reserves boneCount contiguous matrix slots in the bone
// slab and returns the range's base offset, valid in every frame slice.
// The slots are not initialized; callers write bind-pose or animated
// matrices through WriteBoneMatrices before the first draw that uses
// them.
func (w *Warehouse) AllocBoneRange(boneCount uint32) (uint32, error) {
	off, ok := w.boneSlab.Alloc(boneCount)
	if !ok {
		return 0, diag.NewError(diag.CapacityExceeded, "warehouse: bone slab cannot hold %d matrices", boneCount)
	}
	return off, nil
}

// FreeBoneRange returns a range allocated by AllocBoneRange to its size
// class. A stale or out-of-range offset is a no-op.
func (w *Warehouse) FreeBoneRange(offset uint32) bool {
	return w.boneSlab.Free(offset)
}

// BoneSliceStride returns the slot distance between consecutive frame
// slices of the bone buffer. A draw recorded for frame index f reads its
// matrices at offset + f*BoneSliceStride().
func (w *Warehouse) BoneSliceStride() uint32 { return w.boneSlab.Capacity() }

// BoneSlabUsed reports the slot occupancy of the bone slab for capacity
// checks and tests.
func (w *Warehouse) BoneSlabUsed() uint32 { return w.boneSlab.Used() }

// WriteBoneMatrices uploads matrices into frameIndex's slice of the bone
// buffer starting at offset. Writes past the slab's capacity are clipped
// so a bad offset cannot corrupt the neighboring frame's slice.
func (w *Warehouse) WriteBoneMatrices(frameIndex int, offset uint32, matrices []mgl32.Mat4) {
	total := w.boneSlab.Capacity()
	if offset >= total {
		return
	}
	if offset+uint32(len(matrices)) > total {
		matrices = matrices[:total-offset]
	}
	base := uint64(frameIndex)*uint64(total)*boneMatrixStride + uint64(offset)*boneMatrixStride
	w.ctx.WriteBuffer(w.boneBuffer, base, wgpu.ToBytes(matrices))
}

// allocSkinRange sub-allocates count skin-vertex records from the global
// skin vertex buffer, same arena discipline as allocVertexRange.
func (w *Warehouse) allocSkinRange(count uint32) (Range, error) {
	byteLen := uint64(count) * SkinVertexStride
	if w.skinCursor+byteLen > w.cfg.SkinVertexBufferSize {
		return Range{}, diag.NewError(diag.OutOfMemory, "warehouse: skin vertex buffer exhausted (%d + %d > %d)", w.skinCursor, byteLen, w.cfg.SkinVertexBufferSize)
	}
	r := Range{Offset: uint32(w.skinCursor / SkinVertexStride), Count: count}
	w.skinCursor += byteLen
	return r, nil
}

// SkinVertexBuffer exposes the global skin vertex buffer for the skinned
// pipeline variants' third vertex stream (slot 2). Static pipelines have
// no skin stream and bind nothing in its place.
func (w *Warehouse) SkinVertexBuffer() *wgpu.Buffer { return w.skinVertexBuffer }

// LightGPU is the packed per-light record of the light SSBO the main
// pass's fragment shading loops over. ViewProj is the same matrix the
// light's shadow pass rendered with, so fragment shading can project
// into the matching shadow-map layer; identity for point lights, whose
// cube comparison reconstructs depth analytically.
type LightGPU struct {
	ViewProj       mgl32.Mat4
	PositionRange  [4]float32 // xyz world position, w falloff radius
	ColorIntensity [4]float32 // rgb color, w intensity
	DirectionAngle [4]float32 // xyz world forward, w spot cone half-angle
	KindShadow     [4]float32 // x kind (0 point, 1 directional, 2 spot), y has_shadow, zw unused
}

const lightGPUStride = 128

// lightHeaderSize covers the count word plus padding to the first
// LightGPU record's 16-byte alignment.
const lightHeaderSize = 16

// WriteLights uploads this frame's packed light list, truncating to the
// configured cap with a one-shot warning.
func (w *Warehouse) WriteLights(lights []LightGPU) {
	if len(lights) > w.cfg.MaxLights {
		w.lightOverflow.Warn(w.log, "warehouse: %d lights exceeds capacity %d, truncating", len(lights), w.cfg.MaxLights)
		lights = lights[:w.cfg.MaxLights]
	} else {
		w.lightOverflow.Reset()
	}

	header := [4]uint32{uint32(len(lights)), 0, 0, 0}
	w.ctx.WriteBuffer(w.lightBuffer, 0, wgpu.ToBytes(header[:]))
	if len(lights) > 0 {
		w.ctx.WriteBuffer(w.lightBuffer, lightHeaderSize, wgpu.ToBytes(lights))
	}
}

// buildSceneLayout creates two bind group layouts: the bones-only
// layout the shadow pass binds (it cannot carry the shadow textures it
// is itself rendering into), and the main pass's full scene layout —
// bone-matrix SSBO, light SSBO, the two shadow depth arrays and the
// comparison sampler fragment shading runs textureSampleCompare
// against.
func (w *Warehouse) buildSceneLayout() error {
	var err error
	w.bonesLayout, err = w.ctx.CreateBindGroupLayout("warehouse.bones.layout", []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
		},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: bones bind group layout")
	}

	w.sceneLayout, err = w.ctx.CreateBindGroupLayout("warehouse.scene.layout", []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
		},
		{
			Binding:    1,
			Visibility: wgpu.ShaderStageFragment,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
		},
		{
			Binding:    2,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeDepth,
				ViewDimension: wgpu.TextureViewDimension2DArray,
			},
		},
		{
			Binding:    3,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeDepth,
				ViewDimension: wgpu.TextureViewDimensionCubeArray,
			},
		},
		{
			Binding:    4,
			Visibility: wgpu.ShaderStageFragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeComparison},
		},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "warehouse: scene bind group layout")
	}
	return nil
}

// BonesLayout exposes the bones-only bind group layout the shadow
// renderer's pipeline layout includes.
func (w *Warehouse) BonesLayout() *wgpu.BindGroupLayout { return w.bonesLayout }

// SceneLayout exposes the main pass's bones+lights+shadow bind group
// layout for pipeline construction.
func (w *Warehouse) SceneLayout() *wgpu.BindGroupLayout { return w.sceneLayout }

// BonesBindGroup builds the bones-only bind group the shadow pass's
// skinned pipeline reads.
func (w *Warehouse) BonesBindGroup() (*wgpu.BindGroup, error) {
	return w.ctx.CreateBindGroup("warehouse.bones.bg", w.bonesLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: w.boneBuffer, Size: wgpu.WholeSize},
	})
}

// SceneBindGroup builds the main pass's per-scene bind group: the
// bone-matrix and light SSBOs plus the recording frame's shadow depth
// arrays, which must be the same textures the frame's shadow passes
// just rendered.
func (w *Warehouse) SceneBindGroup(shadow2DArray, shadowCubeArray *wgpu.TextureView) (*wgpu.BindGroup, error) {
	return w.ctx.CreateBindGroup("warehouse.scene.bg", w.sceneLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: w.boneBuffer, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: w.lightBuffer, Size: wgpu.WholeSize},
		{Binding: 2, TextureView: shadow2DArray},
		{Binding: 3, TextureView: shadowCubeArray},
		{Binding: 4, Sampler: w.compareSampler},
	})
}
