// Package postprocess runs the ordered post-process effect chain over a
// ping-pong pair of color images, ending on the swapchain image. Each
// effect draws one full-screen triangle and carries a small
// effect-specific push-constant-equivalent uniform.
package postprocess

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/shaders"
)

// Effect selects one of postprocess.wgsl's fragment-shader branches.
type Effect uint32

const (
	EffectNone Effect = iota
	EffectGrayscale
	EffectTonemap
	EffectBlur
	EffectBloom
	EffectOutline
	EffectFog
)

// Entry is one effect in the stack plus its packed parameters.
type Entry struct {
	Effect Effect
	Param0 float32
	Param1 float32
}

// effectParamsGPU mirrors postprocess.wgsl's EffectParams struct.
type effectParamsGPU struct {
	Effect uint32
	Param0 float32
	Param1 float32
	_pad   float32
}

// MaxEffects bounds how many effects one frame's chain can apply; the
// params buffer carries one dynamic-offset slot per effect.
const MaxEffects = 64

// paramsSlotStride matches the device's minimum uniform-buffer dynamic
// offset alignment.
const paramsSlotStride = 256

// Stack is the dynamic ordered list of effects a frame applies. An empty
// stack still produces one NONE passthrough at render time.
type Stack struct {
	entries []Entry
}

func NewStack() *Stack { return &Stack{} }

func (s *Stack) Add(e Entry)    { s.entries = append(s.entries, e) }
func (s *Stack) Clear()         { s.entries = nil }
func (s *Stack) Entries() []Entry {
	if len(s.entries) == 0 {
		return []Entry{{Effect: EffectNone}}
	}
	return s.entries
}

// ResolveTargets computes which of {main, pingpong A, pingpong B,
// swapchain} effect index i (of total effects) reads from and writes to:
// read-set is main for i==0, else alternating ping-pong; write-target
// alternates ping-pong except the last effect,
// which always targets the swapchain image. read/write use 0=main,
// 1=pingpongA, 2=pingpongB as a plain index so this function has no GPU
// dependency and is unit-testable.
func ResolveTargets(i, total int) (read int, write int, writeSwapchain bool) {
	if i == 0 {
		read = 0
	} else {
		read = ((i-1)%2 + 1)
	}
	if i == total-1 {
		return read, 0, true
	}
	write = i%2 + 1
	return read, write, false
}

// Renderer owns the full-screen-triangle pipelines every effect shares
// and the per-pass uniform buffer its parameters are uploaded into. Two
// pipeline variants exist because the intermediate ping-pong images and
// the swapchain image carry different formats; both share one shader
// module and layout.
type Renderer struct {
	ctx *gpu.Context

	intermediatePipeline *wgpu.RenderPipeline
	finalPipeline        *wgpu.RenderPipeline

	textureLayout *wgpu.BindGroupLayout
	paramsLayout  *wgpu.BindGroupLayout
	paramsBuffer  *wgpu.Buffer

	sampler *wgpu.Sampler
}

// New builds the post-process pipelines: intermediateFormat is the
// main-pass/ping-pong image format, swapchainFormat the present target's.
func New(ctx *gpu.Context, intermediateFormat, swapchainFormat wgpu.TextureFormat) (*Renderer, error) {
	textureLayout, err := ctx.CreateBindGroupLayout("postprocess.texture.layout", []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageFragment, Texture: wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeFloat, ViewDimension: wgpu.TextureViewDimension2D}},
		{Binding: 1, Visibility: wgpu.ShaderStageFragment, Sampler: wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering}},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: texture bind group layout")
	}

	paramsLayout, err := ctx.CreateBindGroupLayout("postprocess.params.layout", []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageFragment, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, HasDynamicOffset: true}},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: params bind group layout")
	}

	// One 256-byte-aligned slot per effect: queue writes land before the
	// whole command buffer executes, so per-pass rewrites of a single slot
	// would leave every pass reading the final effect's parameters.
	paramsBuffer, err := ctx.CreateBuffer("postprocess.params", wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, MaxEffects*paramsSlotStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: params buffer")
	}

	sampler, err := ctx.Device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: sampler")
	}

	module, err := ctx.CreateShaderModule("postprocess", shaders.PostprocessWGSL)
	if err != nil {
		return nil, diag.WrapError(diag.ShaderModuleInvalid, err, "postprocess: compile postprocess.wgsl")
	}

	layout, err := ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "postprocess.pipeline.layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{textureLayout, paramsLayout},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: pipeline layout")
	}

	buildPipeline := func(label string, format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
		return ctx.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  label,
			Layout: layout,
			Vertex: wgpu.VertexState{Module: module, EntryPoint: "vs_main"},
			Fragment: &wgpu.FragmentState{
				Module:     module,
				EntryPoint: "fs_main",
				Targets:    []wgpu.ColorTargetState{{Format: format, WriteMask: wgpu.ColorWriteMaskAll}},
			},
			Primitive:   wgpu.PrimitiveState{Topology: wgpu.PrimitiveTopologyTriangleList},
			Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
	}

	intermediatePipeline, err := buildPipeline("postprocess.pipeline.intermediate", intermediateFormat)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: intermediate render pipeline")
	}
	finalPipeline, err := buildPipeline("postprocess.pipeline.final", swapchainFormat)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "postprocess: final render pipeline")
	}

	return &Renderer{
		ctx:                  ctx,
		intermediatePipeline: intermediatePipeline,
		finalPipeline:        finalPipeline,
		textureLayout:        textureLayout,
		paramsLayout:         paramsLayout,
		paramsBuffer:         paramsBuffer,
		sampler:              sampler,
	}, nil
}

// Render runs the stack's effects in order. main is the color image the
// main pass wrote; pingA/pingB are the two scratch images; swapchain is
// the final present target. The empty-stack NONE passthrough still
// samples main into swapchain unchanged (bit-exact passthrough).
func (r *Renderer) Render(encoder *wgpu.CommandEncoder, stack *Stack, main, pingA, pingB, swapchain *wgpu.TextureView) error {
	entries := stack.Entries()
	if len(entries) > MaxEffects {
		return diag.NewError(diag.CapacityExceeded, "postprocess: %d effects exceeds the per-frame cap of %d", len(entries), MaxEffects)
	}
	targets := [3]*wgpu.TextureView{main, pingA, pingB}

	paramsBG, err := r.ctx.CreateBindGroup("postprocess.params.bg", r.paramsLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: r.paramsBuffer, Size: uint64(paramsSlotStride)},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "postprocess: params bind group")
	}

	for i, e := range entries {
		readIdx, writeIdx, writeSwapchain := ResolveTargets(i, len(entries))

		params := effectParamsGPU{Effect: uint32(e.Effect), Param0: e.Param0, Param1: e.Param1}
		r.ctx.WriteBuffer(r.paramsBuffer, uint64(i)*paramsSlotStride, wgpu.ToBytes([]effectParamsGPU{params}))

		textureBG, err := r.ctx.CreateBindGroup("postprocess.texture.bg", r.textureLayout, []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: targets[readIdx]},
			{Binding: 1, Sampler: r.sampler},
		})
		if err != nil {
			return diag.WrapError(diag.InitializationFailed, err, "postprocess: texture bind group")
		}

		writeView := swapchain
		pipeline := r.finalPipeline
		if !writeSwapchain {
			writeView = targets[writeIdx]
			pipeline = r.intermediatePipeline
		}

		pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			Label:            "postprocess.pass",
			ColorAttachments: []wgpu.RenderPassColorAttachment{{View: writeView, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore}},
		})
		pass.SetPipeline(pipeline)
		pass.SetBindGroup(0, textureBG, nil)
		pass.SetBindGroup(1, paramsBG, []uint32{uint32(i) * paramsSlotStride})
		pass.Draw(3, 1, 0, 0)
		pass.End()
	}
	return nil
}
