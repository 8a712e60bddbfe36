// Package mainpass draws the frame's opaque/forward-lit geometry: one
// render pass binding the camera, the warehouse's bindless material SSBO
// and texture array, the bone/light SSBOs, and a per-batch instance
// buffer carrying each draw's world matrix, material index and bone
// offset.
package mainpass

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/talon3d/engine/batch"
	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/shaders"
	"github.com/talon3d/engine/warehouse"
)

// Renderer owns the forward pipeline variants (static and skinned) and
// the scratch instance buffer their per-batch draws upload into.
type Renderer struct {
	ctx *gpu.Context
	wh  *warehouse.Warehouse

	pipeline        *wgpu.RenderPipeline
	skinnedPipeline *wgpu.RenderPipeline

	instanceBuffer   *wgpu.Buffer
	instanceCapacity int
}

// staticInstanceAttributes covers the world matrix plus the material
// index; the skinned variant additionally reads the bone offset at
// location 8.
func staticInstanceAttributes() []wgpu.VertexAttribute {
	return []wgpu.VertexAttribute{
		{ShaderLocation: 3, Offset: 0, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 4, Offset: 16, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 5, Offset: 32, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 6, Offset: 48, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 7, Offset: 64, Format: wgpu.VertexFormatUint32},
	}
}

func skinnedInstanceAttributes() []wgpu.VertexAttribute {
	return append(staticInstanceAttributes(),
		wgpu.VertexAttribute{ShaderLocation: 8, Offset: 68, Format: wgpu.VertexFormatUint32},
	)
}

// meshVertexLayout is the position/normal/uv stream every uploaded mesh
// uses (warehouse.StandardVertexStride).
func meshVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: warehouse.StandardVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{ShaderLocation: 0, Offset: 0, Format: wgpu.VertexFormatFloat32x3},
			{ShaderLocation: 1, Offset: 12, Format: wgpu.VertexFormatFloat32x3},
			{ShaderLocation: 2, Offset: 24, Format: wgpu.VertexFormatFloat32x2},
		},
	}
}

// skinVertexLayout is the joints/weights stream skinned draws bind as a
// third vertex buffer (warehouse.SkinVertexStride).
func skinVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: warehouse.SkinVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{ShaderLocation: 9, Offset: 0, Format: wgpu.VertexFormatUint32x4},
			{ShaderLocation: 10, Offset: 16, Format: wgpu.VertexFormatFloat32x4},
		},
	}
}

// New builds both forward pipeline variants against the warehouse's
// camera/material/texture/scene bind group layouts and a scratch
// instance buffer sized for instanceCapacity draws per frame.
func New(ctx *gpu.Context, wh *warehouse.Warehouse, colorFormat, depthFormat wgpu.TextureFormat, instanceCapacity int) (*Renderer, error) {
	if instanceCapacity <= 0 {
		instanceCapacity = 1
	}

	instanceBuffer, err := ctx.CreateBuffer("mainpass.instances", wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, uint64(instanceCapacity)*batch.InstanceGPUStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "mainpass: instance buffer")
	}

	module, err := ctx.CreateShaderModule("mainpass.forward", shaders.MainForwardWGSL)
	if err != nil {
		return nil, diag.WrapError(diag.ShaderModuleInvalid, err, "mainpass: compile main_forward.wgsl")
	}

	layout, err := ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "mainpass.pipeline.layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{wh.CameraLayout(), wh.MaterialLayout(), wh.TextureLayout(), wh.SceneLayout()},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "mainpass: pipeline layout")
	}

	buildPipeline := func(label, vertexEntry string, buffers []wgpu.VertexBufferLayout) (*wgpu.RenderPipeline, error) {
		return ctx.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  label,
			Layout: layout,
			Vertex: wgpu.VertexState{
				Module:     module,
				EntryPoint: vertexEntry,
				Buffers:    buffers,
			},
			Fragment: &wgpu.FragmentState{
				Module:     module,
				EntryPoint: "fs_main",
				Targets:    []wgpu.ColorTargetState{{Format: colorFormat, Blend: nil, WriteMask: wgpu.ColorWriteMaskAll}},
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeBack,
			},
			DepthStencil: &wgpu.DepthStencilState{
				Format:            depthFormat,
				DepthWriteEnabled: true,
				DepthCompare:      wgpu.CompareFunctionLess,
			},
			Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
	}

	pipeline, err := buildPipeline("mainpass.pipeline", "vs_main", []wgpu.VertexBufferLayout{
		meshVertexLayout(),
		{ArrayStride: batch.InstanceGPUStride, StepMode: wgpu.VertexStepModeInstance, Attributes: staticInstanceAttributes()},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "mainpass: render pipeline")
	}

	skinnedPipeline, err := buildPipeline("mainpass.pipeline.skinned", "vs_skinned", []wgpu.VertexBufferLayout{
		meshVertexLayout(),
		{ArrayStride: batch.InstanceGPUStride, StepMode: wgpu.VertexStepModeInstance, Attributes: skinnedInstanceAttributes()},
		skinVertexLayout(),
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "mainpass: skinned render pipeline")
	}

	return &Renderer{
		ctx: ctx, wh: wh,
		pipeline:        pipeline,
		skinnedPipeline: skinnedPipeline,
		instanceBuffer:  instanceBuffer, instanceCapacity: instanceCapacity,
	}, nil
}

// Render records the forward-lit color pass into colorView/depthView,
// binding cameraBindGroup (built with a dynamic offset selecting which
// camera slot of the warehouse's camera UBO to read), sceneBindGroup
// (bone + light SSBOs) and drawing every batch's instances.
// boneSliceOffset shifts skinned instances' bone offsets into the
// recording frame's slice of the bone buffer.
func (r *Renderer) Render(encoder *wgpu.CommandEncoder, colorView, depthView *wgpu.TextureView, cameraBindGroup, materialBindGroup, textureBindGroup, sceneBindGroup *wgpu.BindGroup, cameraDynamicOffset, boneSliceOffset uint32, batches []batch.Batch) {
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "mainpass.pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    colorView,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	pass.SetBindGroup(0, cameraBindGroup, []uint32{cameraDynamicOffset})
	pass.SetBindGroup(1, materialBindGroup, nil)
	pass.SetBindGroup(2, textureBindGroup, nil)
	pass.SetBindGroup(3, sceneBindGroup, nil)
	pass.SetVertexBuffer(1, r.instanceBuffer, 0, wgpu.WholeSize)
	pass.SetIndexBuffer(r.wh.IndexBuffer(), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)

	instanceCursor := 0
	for _, b := range batches {
		skinned := b.Key.Skinned()
		if skinned {
			pass.SetPipeline(r.skinnedPipeline)
		} else {
			pass.SetPipeline(r.pipeline)
			pass.SetVertexBuffer(0, r.wh.VertexBuffer(), 0, wgpu.WholeSize)
		}

		packed := batch.PackInstances(b.Instances, boneSliceOffset)
		if instanceCursor+len(packed) > r.instanceCapacity {
			packed = packed[:max(0, r.instanceCapacity-instanceCursor)]
		}
		if len(packed) > 0 {
			r.ctx.WriteBuffer(r.instanceBuffer, uint64(instanceCursor)*batch.InstanceGPUStride, wgpu.ToBytes(packed))
		}

		for i, inst := range b.Instances {
			if i >= len(packed) {
				break
			}
			mesh, ok := r.wh.Mesh(inst.Mesh)
			if !ok {
				continue
			}
			if skinned {
				// Skinned draws rebind the mesh and skin streams at each
				// mesh's own byte offset: the two arenas have independent
				// cursors, so a single base-vertex cannot address both.
				pass.SetVertexBuffer(0, r.wh.VertexBuffer(), uint64(mesh.VertexRange.Offset)*warehouse.StandardVertexStride, wgpu.WholeSize)
				pass.SetVertexBuffer(2, r.wh.SkinVertexBuffer(), uint64(mesh.Skinning.SkinVertexRange.Offset)*warehouse.SkinVertexStride, wgpu.WholeSize)
				pass.DrawIndexed(mesh.IndexRange.Count, 1, mesh.IndexRange.Offset, 0, uint32(instanceCursor+i))
			} else {
				pass.DrawIndexed(mesh.IndexRange.Count, 1, mesh.IndexRange.Offset, int32(mesh.VertexRange.Offset), uint32(instanceCursor+i))
			}
		}
		instanceCursor += len(packed)
	}
	pass.End()
}
