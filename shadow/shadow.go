// Package shadow derives per-light view/projection matrices and records
// the depth-only draw passes that fill each light's shadow map, reusing
// the same visible-mesh batches the main renderer draws.
package shadow

import (
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/talon3d/engine/batch"
	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/shaders"
	"github.com/talon3d/engine/warehouse"
)

// MaxShadowPasses bounds the distinct (light, cube-face) depth passes
// one frame can record: up to 10 light slots times 6 faces each. The
// UBO slot for light l's face f is l*6+f.
const MaxShadowPasses = 60

// viewProjSlotStride matches the device's minimum uniform-buffer dynamic
// offset alignment.
const viewProjSlotStride = 256

// CubeFaceDirections lists the six +X,-X,+Y,-Y,+Z,-Z view directions a
// point light's shadow cube renders, in the order warehouse.TextureCube's
// FaceViews are laid out.
var CubeFaceDirections = [6]mgl32.Vec3{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

var cubeFaceUps = [6]mgl32.Vec3{
	{0, -1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
	{0, -1, 0}, {0, -1, 0},
}

// DirectionalViewProjection builds an orthographic view-projection
// covering sceneRadius around sceneCenter along the light's world-forward
// direction. The engine passes the light node's world position as
// sceneCenter.
func DirectionalViewProjection(worldForward, sceneCenter mgl32.Vec3, sceneRadius, near, far float32) mgl32.Mat4 {
	eye := sceneCenter.Sub(worldForward.Normalize().Mul(sceneRadius))
	up := mgl32.Vec3{0, 1, 0}
	if worldForward.Normalize().ApproxEqual(up) || worldForward.Normalize().ApproxEqual(up.Mul(-1)) {
		up = mgl32.Vec3{1, 0, 0}
	}
	view := mgl32.LookAtV(eye, sceneCenter, up)
	proj := mgl32.Ortho(-sceneRadius, sceneRadius, -sceneRadius, sceneRadius, near, far)
	return proj.Mul4(view)
}

// SpotViewProjection builds a perspective view-projection from the
// light's world position/forward and its cone half-angle doubled into a
// full FOV, clamped so a degenerate (near-zero) cone never divides by
// zero in Perspective's projection math.
func SpotViewProjection(worldPosition, worldForward mgl32.Vec3, coneAngleRadian, near, far float32) mgl32.Mat4 {
	fov := coneAngleRadian * 2
	if fov < 0.01 {
		fov = 0.01
	}
	if far <= near {
		far = near + 1
	}
	target := worldPosition.Add(worldForward)
	up := mgl32.Vec3{0, 1, 0}
	if worldForward.Normalize().ApproxEqual(up) {
		up = mgl32.Vec3{1, 0, 0}
	}
	view := mgl32.LookAtV(worldPosition, target, up)
	proj := mgl32.Perspective(fov, 1, near, far)
	return proj.Mul4(view)
}

// PointCubeViewProjections builds the six 90-degree-FOV view-projections
// for a point light's shadow cube, one per face of CubeFaceDirections.
func PointCubeViewProjections(worldPosition mgl32.Vec3, near, far float32) [6]mgl32.Mat4 {
	var out [6]mgl32.Mat4
	if far <= near {
		far = near + 1
	}
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1, near, far)
	for i, dir := range CubeFaceDirections {
		view := mgl32.LookAtV(worldPosition, worldPosition.Add(dir), cubeFaceUps[i])
		out[i] = proj.Mul4(view)
	}
	return out
}

// PrioritizeLights decides which lights get their shadow map refreshed
// this frame: light 0 (the convention for the scene's primary/sun light)
// always updates, the `prioritized` nearest-to-camera lights update every
// frame, and the remaining lights are round-robined `perFrame` at a time
// so a scene with many shadow-casting lights amortizes the refresh cost
// instead of redrawing every shadow map every frame. updateOffset is
// mutated in place to advance the round-robin cursor.
func PrioritizeLights(lights []scene.LightNode, cameraPos mgl32.Vec3, prioritized, perFrame int, updateOffset *int) []int {
	if len(lights) == 0 {
		return nil
	}

	type withDist struct {
		index int
		dist  float32
	}
	rest := make([]withDist, 0, len(lights)-1)
	for i := 1; i < len(lights); i++ {
		l := lights[i]
		d := float32(0)
		if l.Light.Kind != scene.LightDirectional {
			d = l.WorldPosition.Sub(cameraPos).Len()
		}
		rest = append(rest, withDist{index: i, dist: d})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].dist < rest[j].dist })

	indices := []int{0}

	n := prioritized
	if n > len(rest) {
		n = len(rest)
	}
	for i := 0; i < n; i++ {
		indices = append(indices, rest[i].index)
	}

	remaining := rest[n:]
	if len(remaining) > 0 {
		for i := 0; i < perFrame && i < len(remaining); i++ {
			offset := (*updateOffset + i) % len(remaining)
			indices = append(indices, remaining[offset].index)
		}
		*updateOffset = (*updateOffset + perFrame) % len(remaining)
	}

	return indices
}

// Renderer owns the depth-only pipeline variants (static and skinned)
// every light's shadow pass binds, plus the scratch instance buffer its
// per-batch draws upload into. The instance buffer layout is shared with
// the main renderer's pipelines (world matrix in locations 3-6, bone
// offset at 8) so both passes draw from identically packed
// batch.PackInstances output.
type Renderer struct {
	ctx *gpu.Context
	wh  *warehouse.Warehouse

	pipeline        *wgpu.RenderPipeline
	skinnedPipeline *wgpu.RenderPipeline
	lightLayout     *wgpu.BindGroupLayout
	lightBuffer     *wgpu.Buffer

	instanceBuffer   *wgpu.Buffer
	instanceCapacity int
}

// New builds the shadow renderer's depth-only pipeline variants and a
// scratch instance buffer sized for instanceCapacity draws per light.
func New(ctx *gpu.Context, wh *warehouse.Warehouse, instanceCapacity int) (*Renderer, error) {
	if instanceCapacity <= 0 {
		instanceCapacity = 1
	}

	lightLayout, err := ctx.CreateBindGroupLayout("shadow.light.layout", []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageVertex, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform, HasDynamicOffset: true}},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "shadow: light bind group layout")
	}

	// One 256-byte-aligned view-proj slot per (light, face) pass: queue
	// writes land before the whole command buffer executes, so rewriting
	// a single slot per pass would leave every shadow pass reading the
	// final light's matrix.
	lightBuffer, err := ctx.CreateBuffer("shadow.light.viewproj", wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, MaxShadowPasses*viewProjSlotStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "shadow: light view-proj buffer")
	}

	instanceBuffer, err := ctx.CreateBuffer("shadow.instances", wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, uint64(instanceCapacity)*batch.InstanceGPUStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "shadow: instance buffer")
	}

	module, err := ctx.CreateShaderModule("shadow.depth", shaders.ShadowMapWGSL)
	if err != nil {
		return nil, diag.WrapError(diag.ShaderModuleInvalid, err, "shadow: compile shadow_map.wgsl")
	}

	layout, err := ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "shadow.pipeline.layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{lightLayout, wh.BonesLayout()},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "shadow: pipeline layout")
	}

	meshLayout := wgpu.VertexBufferLayout{
		ArrayStride: warehouse.StandardVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{ShaderLocation: 0, Offset: 0, Format: wgpu.VertexFormatFloat32x3},
		},
	}
	instanceAttributes := []wgpu.VertexAttribute{
		{ShaderLocation: 3, Offset: 0, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 4, Offset: 16, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 5, Offset: 32, Format: wgpu.VertexFormatFloat32x4},
		{ShaderLocation: 6, Offset: 48, Format: wgpu.VertexFormatFloat32x4},
	}
	skinnedInstanceAttributes := append(append([]wgpu.VertexAttribute(nil), instanceAttributes...),
		wgpu.VertexAttribute{ShaderLocation: 8, Offset: 68, Format: wgpu.VertexFormatUint32},
	)
	skinLayout := wgpu.VertexBufferLayout{
		ArrayStride: warehouse.SkinVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{ShaderLocation: 9, Offset: 0, Format: wgpu.VertexFormatUint32x4},
			{ShaderLocation: 10, Offset: 16, Format: wgpu.VertexFormatFloat32x4},
		},
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
			Fragment: &wgpu.FragmentState{Module: module, EntryPoint: "fs_main"},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeFront, // biased for shadow acne on back-facing casters
			},
			DepthStencil: &wgpu.DepthStencilState{
				Format:            wgpu.TextureFormatDepth32Float,
				DepthWriteEnabled: true,
				DepthCompare:      wgpu.CompareFunctionLess,
			},
			Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
	}

	pipeline, err := buildPipeline("shadow.pipeline", "vs_main", []wgpu.VertexBufferLayout{
		meshLayout,
		{ArrayStride: batch.InstanceGPUStride, StepMode: wgpu.VertexStepModeInstance, Attributes: instanceAttributes},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "shadow: render pipeline")
	}

	skinnedPipeline, err := buildPipeline("shadow.pipeline.skinned", "vs_skinned", []wgpu.VertexBufferLayout{
		meshLayout,
		{ArrayStride: batch.InstanceGPUStride, StepMode: wgpu.VertexStepModeInstance, Attributes: skinnedInstanceAttributes},
		skinLayout,
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "shadow: skinned render pipeline")
	}

	return &Renderer{
		ctx: ctx, wh: wh,
		pipeline: pipeline, skinnedPipeline: skinnedPipeline,
		lightLayout: lightLayout, lightBuffer: lightBuffer,
		instanceBuffer: instanceBuffer, instanceCapacity: instanceCapacity,
	}, nil
}

// RenderLight records one (light, face) depth-only pass into depthView,
// uploading viewProj into UBO slot `slot` (light*6+face) and drawing
// every instance of every batch — callers pre-filter batches to
// shadow-casting instances inside the light's frustum. bonesBindGroup
// carries the bone SSBO skinned casters read; boneSliceOffset shifts
// their bone offsets into the recording frame's slice. Batches whose
// combined instance count exceeds the renderer's instanceCapacity are
// truncated; callers sizing instanceCapacity from the scene's node
// count in practice never hit this.
func (r *Renderer) RenderLight(encoder *wgpu.CommandEncoder, depthView *wgpu.TextureView, slot int, viewProj mgl32.Mat4, bonesBindGroup *wgpu.BindGroup, boneSliceOffset uint32, batches []batch.Batch) error {
	if slot < 0 || slot >= MaxShadowPasses {
		return diag.NewError(diag.CapacityExceeded, "shadow: pass slot %d out of range", slot)
	}
	r.ctx.WriteBuffer(r.lightBuffer, uint64(slot)*viewProjSlotStride, wgpu.ToBytes([]mgl32.Mat4{viewProj}))

	lightBindGroup, err := r.ctx.CreateBindGroup("shadow.light.bg", r.lightLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: r.lightBuffer, Size: viewProjSlotStride},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "shadow: light bind group")
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "shadow.pass",
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
	pass.SetBindGroup(0, lightBindGroup, []uint32{uint32(slot) * viewProjSlotStride})
	pass.SetBindGroup(1, bonesBindGroup, nil)
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
				// Same per-draw rebinding as the main pass: the mesh and
				// skin arenas have independent cursors, so base-vertex
				// addressing cannot serve both streams at once.
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
	return nil
}
