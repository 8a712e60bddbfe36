// Package cull runs GPU frustum culling: a per-node AABB storage buffer
// is tested against the camera's extracted frustum planes in a compute
// pass, writing one visibility flag per node slot that the batch builder
// reads back to decide what to draw.
package cull

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/geom"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/shaders"
)

// gpuAABB mirrors the compute shader's Aabb struct: 2x vec4, the first
// carrying min.xyz plus an enabled flag in w.
type gpuAABB struct {
	MinAndEnabled [4]float32
	Max           [4]float32
}

// Engine owns the compute pipeline, per-node AABB/visibility buffers and
// the CPU readback path used to turn the GPU's visibility bitmask back
// into a []bool the scene graph's CollectVisibleMeshes consumes.
type Engine struct {
	ctx *gpu.Context
	log diag.Logger

	capacity int

	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout

	aabbBuffer       *wgpu.Buffer
	frustumBuffer    *wgpu.Buffer
	visibilityBuffer *wgpu.Buffer
	readbackBuffer   *wgpu.Buffer

	mapped bool

	overflow diag.OnceWarner
}

const gpuAABBStride = 32 // 2x vec4<f32>
const frustumPlanesStride = 6 * 16

// New builds the culling engine's GPU-side state for up to capacity
// scene-graph slots. capacity should match scene.Graph.SlotCount's
// expected high-water mark; CullingSlots longer than capacity triggers a
// one-shot capacity warning and truncates to what fits.
func New(ctx *gpu.Context, capacity int, log diag.Logger) (*Engine, error) {
	if log == nil {
		log = diag.NewNopLogger()
	}
	if capacity <= 0 {
		capacity = 1
	}

	e := &Engine{ctx: ctx, log: log, capacity: capacity}

	var err error
	e.aabbBuffer, err = ctx.CreateBuffer("cull.aabb", wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, uint64(capacity)*gpuAABBStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: aabb buffer")
	}
	e.frustumBuffer, err = ctx.CreateBuffer("cull.frustum", wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, frustumPlanesStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: frustum buffer")
	}
	e.visibilityBuffer, err = ctx.CreateBuffer("cull.visibility", wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst, uint64(capacity)*4)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: visibility buffer")
	}
	readbackSize := (uint64(capacity)*4 + 255) &^ 255
	e.readbackBuffer, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "cull.readback",
		Size:  readbackSize,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: readback buffer")
	}

	e.layout, err = ctx.CreateBindGroupLayout("cull.layout", []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
		{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
		{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: bind group layout")
	}

	module, err := ctx.CreateShaderModule("cull.frustum", shaders.FrustumCullWGSL)
	if err != nil {
		return nil, diag.WrapError(diag.ShaderModuleInvalid, err, "cull: compile frustum_cull.wgsl")
	}
	pipelineLayout, err := ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "cull.pipeline.layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{e.layout},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: pipeline layout")
	}
	e.pipeline, err = ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "cull.pipeline",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "cull: compute pipeline")
	}
	return e, nil
}

// packSlots converts scene.CullingSlot entries into the compute shader's
// AABB layout, clamping to e.capacity and warning once if the scene
// graph has outgrown it.
func (e *Engine) packSlots(slots []scene.CullingSlot) []gpuAABB {
	n := len(slots)
	if n > e.capacity {
		e.overflow.Warn(e.log, "cull: %d scene slots exceeds capacity %d, truncating", n, e.capacity)
		n = e.capacity
	} else {
		e.overflow.Reset()
	}

	packed := make([]gpuAABB, n)
	for i := 0; i < n; i++ {
		s := slots[i]
		enabled := float32(0)
		if s.Enabled {
			enabled = 1
		}
		packed[i] = gpuAABB{
			MinAndEnabled: [4]float32{s.AABB.Min.X(), s.AABB.Min.Y(), s.AABB.Min.Z(), enabled},
			Max:           [4]float32{s.AABB.Max.X(), s.AABB.Max.Y(), s.AABB.Max.Z(), 0},
		}
	}
	return packed
}

func packFrustum(f geom.Frustum) []byte {
	buf := make([]byte, frustumPlanesStride)
	for i, plane := range f {
		off := i * 16
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(plane.X()))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(plane.Y()))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(plane.Z()))
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(plane.W()))
	}
	return buf
}

// Dispatch uploads slots and the camera frustum, runs the compute pass,
// and schedules the visibility copy into the readback buffer. Call
// Readback afterward (typically a frame later) to retrieve the result.
func (e *Engine) Dispatch(encoder *wgpu.CommandEncoder, slots []scene.CullingSlot, frustum geom.Frustum) error {
	packed := e.packSlots(slots)
	if len(packed) > 0 {
		e.ctx.WriteBuffer(e.aabbBuffer, 0, wgpu.ToBytes(packed))
	}
	e.ctx.WriteBuffer(e.frustumBuffer, 0, packFrustum(frustum))

	bg, err := e.ctx.CreateBindGroup("cull.bg", e.layout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: e.aabbBuffer, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: e.frustumBuffer, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: e.visibilityBuffer, Size: wgpu.WholeSize},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "cull: dispatch bind group")
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(e.pipeline)
	pass.SetBindGroup(0, bg, nil)
	workgroups := (uint32(len(packed)) + 63) / 64
	if workgroups == 0 {
		workgroups = 1
	}
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()

	encoder.CopyBufferToBuffer(e.visibilityBuffer, 0, e.readbackBuffer, 0, uint64(e.capacity)*4)
	return nil
}

// Readback polls the device for the pending visibility copy and, once
// mapped, returns one bool per scene slot (true = passed the frustum
// test). It returns (nil, false) if the readback isn't ready yet; the
// caller should fall back to the previous frame's result rather than
// block, since forcing a wait here would stall the CPU on the GPU.
func (e *Engine) Readback() ([]bool, bool) {
	if !e.mapped {
		e.readbackBuffer.MapAsync(wgpu.MapModeRead, 0, e.readbackBuffer.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
			if status == wgpu.BufferMapAsyncStatusSuccess {
				e.mapped = true
			} else {
				e.log.Warnf("cull: visibility readback map failed: %d", status)
			}
		})
	}

	e.ctx.Device.Poll(false, nil)

	if !e.mapped {
		return nil, false
	}

	size := e.readbackBuffer.GetSize()
	data := e.readbackBuffer.GetMappedRange(0, uint(size))
	out := make([]bool, e.capacity)
	for i := 0; i < e.capacity; i++ {
		off := i * 4
		if off+4 > len(data) {
			break
		}
		out[i] = binary.LittleEndian.Uint32(data[off:off+4]) != 0
	}
	e.readbackBuffer.Unmap()
	e.mapped = false
	return out, true
}

// CPUFallback runs the same frustum test on the CPU using geom.AABBInFrustum,
// for callers that need an immediate, synchronous visibility result
// instead of waiting on the GPU round trip (e.g. the first frame, before
// any readback has completed).
func CPUFallback(slots []scene.CullingSlot, frustum geom.Frustum) []bool {
	out := make([]bool, len(slots))
	for i, s := range slots {
		out[i] = s.Enabled && geom.AABBInFrustum(s.AABB, frustum)
	}
	return out
}
