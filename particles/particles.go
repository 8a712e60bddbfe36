// Package particles runs the GPU-simulated particle system: a fixed-size
// pool of particles in one host-visible storage buffer, a CPU free-list
// driving emitter spawn, a force-field SSBO, and a compute dispatch that
// integrates every live particle before the billboard draw consumes the
// same buffer.
package particles

import (
	"math"
	"math/rand"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/shaders"
	"github.com/talon3d/engine/warehouse"
)

// MaxParticles is the fixed size of the particle pool's storage buffer.
const MaxParticles = 65536

// MaxForceFields is the per-frame cap on force fields uploaded to the
// simulation; extras are truncated with a one-shot warning.
const MaxForceFields = 32

// ParticleGPU mirrors particles_simulate.wgsl's Particle struct.
type ParticleGPU struct {
	PositionAndLife   [4]float32 // xyz position, w remaining life
	VelocityAndWeight [4]float32 // xyz velocity, w weight
	ColorStart        [4]float32
	ColorEnd          [4]float32
	SizeAndAge        [4]float32 // x size_start, y size_end, z age, w max_life
}

const particleGPUStride = 80

// ForceFieldGPU mirrors particles_simulate.wgsl's ForceField struct.
type ForceFieldGPU struct {
	PositionAndBehavior [4]float32 // xyz position, w behavior (0 attract, 1 repel, 2 orbit)
	StrengthAreaFade    [4]float32 // x strength, y area_of_effect, z fade, w unused
}

const forceFieldGPUStride = 32

type simParams struct {
	DT              float32
	GravityY        float32
	ForceFieldCount uint32
	ParticleCount   uint32
}

// Config bounds the particle engine's fixed pool and force-field list.
type Config struct {
	MaxParticles   int
	MaxForceFields int
	GravityY       float32
}

func DefaultConfig() Config {
	return Config{MaxParticles: MaxParticles, MaxForceFields: MaxForceFields, GravityY: -9.81}
}

// Engine owns the particle pool's GPU buffers, the compute and billboard
// pipelines, and the CPU-side free list and host mirror the emitter spawn
// step and the recycle pass read and write.
type Engine struct {
	ctx *gpu.Context
	log diag.Logger
	cfg Config

	particleBuffer   *wgpu.Buffer
	forceFieldBuffer *wgpu.Buffer
	paramsBuffer     *wgpu.Buffer
	readbackBuffer   *wgpu.Buffer
	mapped           bool

	computePipeline *wgpu.ComputePipeline
	computeLayout   *wgpu.BindGroupLayout

	renderPipeline  *wgpu.RenderPipeline
	particlesLayout *wgpu.BindGroupLayout

	// cpu is the engine's authoritative host mirror: spawns write here and
	// into the GPU buffer directly; the compute shader's life/position
	// writes are only observed later through Readback, so cpu.life is a
	// local estimate refreshed each time a readback completes.
	cpu   []ParticleGPU
	alive []bool
	free  []uint32

	forceFieldOverflow diag.OnceWarner
}

// New allocates the particle pool, force-field buffer and both
// pipelines. colorFormat must match the color target the billboard draw
// renders into (the frame's HDR main-pass image, not the swapchain).
func New(ctx *gpu.Context, wh *warehouse.Warehouse, cfg Config, colorFormat wgpu.TextureFormat, log diag.Logger) (*Engine, error) {
	if log == nil {
		log = diag.NewNopLogger()
	}
	if cfg.MaxParticles <= 0 {
		cfg.MaxParticles = MaxParticles
	}
	if cfg.MaxForceFields <= 0 {
		cfg.MaxForceFields = MaxForceFields
	}

	e := &Engine{ctx: ctx, log: log, cfg: cfg}
	e.cpu = make([]ParticleGPU, cfg.MaxParticles)
	e.alive = make([]bool, cfg.MaxParticles)
	e.free = make([]uint32, cfg.MaxParticles)
	for i := range e.free {
		e.free[i] = uint32(cfg.MaxParticles - 1 - i)
	}

	var err error
	e.particleBuffer, err = ctx.CreateBuffer("particles.pool", wgpu.BufferUsageStorage|wgpu.BufferUsageVertex|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst, uint64(cfg.MaxParticles)*particleGPUStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: pool buffer")
	}
	e.forceFieldBuffer, err = ctx.CreateBuffer("particles.forcefields", wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, uint64(cfg.MaxForceFields)*forceFieldGPUStride)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: force field buffer")
	}
	e.paramsBuffer, err = ctx.CreateBuffer("particles.params", wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, 16)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: sim params buffer")
	}
	readbackSize := (uint64(cfg.MaxParticles)*particleGPUStride + 255) &^ 255
	e.readbackBuffer, err = ctx.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "particles.readback",
		Size:  readbackSize,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: readback buffer")
	}

	e.computeLayout, err = ctx.CreateBindGroupLayout("particles.compute.layout", []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
		{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
		{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: compute bind group layout")
	}

	computeModule, err := ctx.CreateShaderModule("particles.simulate", shaders.ParticlesSimulateWGSL)
	if err != nil {
		return nil, diag.WrapError(diag.ShaderModuleInvalid, err, "particles: compile particles_simulate.wgsl")
	}
	computePipelineLayout, err := ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "particles.compute.pipeline.layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{e.computeLayout},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: compute pipeline layout")
	}
	e.computePipeline, err = ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "particles.compute.pipeline",
		Layout:  computePipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{Module: computeModule, EntryPoint: "main"},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: compute pipeline")
	}

	e.particlesLayout, err = ctx.CreateBindGroupLayout("particles.render.layout", []wgpu.BindGroupLayoutEntry{
		{Binding: 0, Visibility: wgpu.ShaderStageVertex, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: render bind group layout")
	}

	renderModule, err := ctx.CreateShaderModule("particles.billboard", shaders.ParticlesBillboardWGSL)
	if err != nil {
		return nil, diag.WrapError(diag.ShaderModuleInvalid, err, "particles: compile particles_billboard.wgsl")
	}
	renderLayout, err := ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "particles.render.pipeline.layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{wh.CameraLayout(), e.particlesLayout},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: render pipeline layout")
	}
	e.renderPipeline, err = ctx.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "particles.render.pipeline",
		Layout: renderLayout,
		Vertex: wgpu.VertexState{Module: renderModule, EntryPoint: "vs_main"},
		Fragment: &wgpu.FragmentState{
			Module:     renderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format: colorFormat,
				Blend: &wgpu.BlendState{
					Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
					Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
				},
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive:   wgpu.PrimitiveState{Topology: wgpu.PrimitiveTopologyTriangleList},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	})
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "particles: render pipeline")
	}

	return e, nil
}

// ActiveCount and FreeCount satisfy the particle-conservation invariant:
// ActiveCount()+FreeCount() always equals the pool's configured capacity.
func (e *Engine) ActiveCount() int { return len(e.cpu) - len(e.free) }
func (e *Engine) FreeCount() int   { return len(e.free) }

// recycle scans life, marking any particle whose life has dropped to zero
// or below as dead and returning it to free. It is a pure function of the
// engine's bookkeeping slices so it can be unit tested without a GPU.
func recycle(alive []bool, life []float32, free []uint32) []uint32 {
	for i := range alive {
		if alive[i] && life[i] <= 0 {
			alive[i] = false
			free = append(free, uint32(i))
		}
	}
	return free
}

// Recycle applies the CPU's current life estimates (normally refreshed by
// a prior call to Readback) to reclaim dead slots before this frame's
// spawn step runs.
func (e *Engine) Recycle() {
	life := make([]float32, len(e.cpu))
	for i := range e.cpu {
		life[i] = e.cpu[i].PositionAndLife[3]
	}
	e.free = recycle(e.alive, life, e.free)
}

// spawnParticle fills slot idx of cpu using emitter's randomized spread
// parameters, seeded from a caller-provided rng so spawning is
// deterministic under test.
func spawnParticle(em *scene.EmitterAttachment, worldPos mgl32.Vec3, rng *rand.Rand) ParticleGPU {
	spread := func(center, spreadAmt float32) float32 {
		return center + (rng.Float32()*2-1)*spreadAmt
	}
	pos := mgl32.Vec3{
		worldPos.X() + spread(0, em.PositionSpread.X()),
		worldPos.Y() + spread(0, em.PositionSpread.Y()),
		worldPos.Z() + spread(0, em.PositionSpread.Z()),
	}
	vel := mgl32.Vec3{
		spread(em.InitialVelocity.X(), em.VelocitySpread.X()),
		spread(em.InitialVelocity.Y(), em.VelocitySpread.Y()),
		spread(em.InitialVelocity.Z(), em.VelocitySpread.Z()),
	}
	weight := spread(em.Weight, em.WeightSpread)
	if weight <= 0 {
		weight = 0.0001
	}
	return ParticleGPU{
		PositionAndLife:   [4]float32{pos.X(), pos.Y(), pos.Z(), em.Lifetime},
		VelocityAndWeight: [4]float32{vel.X(), vel.Y(), vel.Z(), weight},
		ColorStart:        [4]float32{em.ColorStart.X(), em.ColorStart.Y(), em.ColorStart.Z(), em.ColorStart.W()},
		ColorEnd:          [4]float32{em.ColorEnd.X(), em.ColorEnd.Y(), em.ColorEnd.Z(), em.ColorEnd.W()},
		SizeAndAge:        [4]float32{em.SizeStart, em.SizeEnd, 0, em.Lifetime},
	}
}

// spawnCount computes how many particles one emitter should spawn this
// frame given its accumulated time and the free pool's current size,
// mutating accumulator in place. Exposed standalone for testing the
// spec's "accumulate, then pop while time >= 1/rate" rule in isolation.
func spawnCount(accumulator *float32, rate, dt float32, freeAvailable int) int {
	if rate <= 0 {
		return 0
	}
	interval := 1.0 / rate
	*accumulator += dt
	n := 0
	for *accumulator >= interval && n < freeAvailable {
		*accumulator -= interval
		n++
	}
	return n
}

// Spawn runs the emitter step over every enabled emitter, popping free
// slots and writing freshly spawned particles directly into the GPU
// buffer. rng is the caller's source of randomness (tests pass a seeded
// one for determinism).
func (e *Engine) Spawn(emitters []scene.EmitterNode, dt float32, rng *rand.Rand) {
	for _, em := range emitters {
		if !em.Emitter.Enabled {
			continue
		}
		n := spawnCount(&em.Emitter.TimeAccumulator, em.Emitter.EmissionRate, dt, len(e.free))
		pos := em.WorldMatrix.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
		for i := 0; i < n; i++ {
			idx := e.free[len(e.free)-1]
			e.free = e.free[:len(e.free)-1]
			e.alive[idx] = true
			p := spawnParticle(em.Emitter, pos, rng)
			e.cpu[idx] = p
			e.ctx.WriteBuffer(e.particleBuffer, uint64(idx)*particleGPUStride, wgpu.ToBytes([]ParticleGPU{p}))
		}
	}
}

// packForceFields converts the collected force-field nodes into the GPU
// layout, truncating to capacity.
func packForceFields(fields []scene.ForceFieldNode, capacity int) []ForceFieldGPU {
	n := len(fields)
	if n > capacity {
		n = capacity
	}
	out := make([]ForceFieldGPU, n)
	for i := 0; i < n; i++ {
		f := fields[i]
		out[i] = ForceFieldGPU{
			PositionAndBehavior: [4]float32{f.WorldPosition.X(), f.WorldPosition.Y(), f.WorldPosition.Z(), float32(f.ForceField.Behavior)},
			StrengthAreaFade:    [4]float32{f.ForceField.Strength, f.ForceField.AreaOfEffect, f.ForceField.Fade, 0},
		}
	}
	return out
}

// UploadForceFields truncates fields to the configured capacity (warning
// once per overflow episode) and uploads them alongside the count the
// compute shader reads.
func (e *Engine) UploadForceFields(fields []scene.ForceFieldNode) []ForceFieldGPU {
	if len(fields) > e.cfg.MaxForceFields {
		e.forceFieldOverflow.Warn(e.log, "particles: %d force fields exceeds capacity %d, truncating", len(fields), e.cfg.MaxForceFields)
	} else {
		e.forceFieldOverflow.Reset()
	}
	packed := packForceFields(fields, e.cfg.MaxForceFields)
	if len(packed) > 0 {
		e.ctx.WriteBuffer(e.forceFieldBuffer, 0, wgpu.ToBytes(packed))
	}
	return packed
}

// Dispatch records the simulation compute pass: upload force fields and
// sim params, run ceil(MaxParticles/64) workgroups (matching
// particles_simulate.wgsl's @workgroup_size(64)), then schedule a copy of
// the whole pool into the readback buffer so the next frame's Recycle
// step can observe this dispatch's life decrements.
func (e *Engine) Dispatch(encoder *wgpu.CommandEncoder, forceFields []scene.ForceFieldNode, dt float32) error {
	packed := e.UploadForceFields(forceFields)

	params := simParams{DT: dt, GravityY: e.cfg.GravityY, ForceFieldCount: uint32(len(packed)), ParticleCount: uint32(len(e.cpu))}
	e.ctx.WriteBuffer(e.paramsBuffer, 0, structToBytes(params))

	bg, err := e.ctx.CreateBindGroup("particles.compute.bg", e.computeLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: e.particleBuffer, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: e.forceFieldBuffer, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: e.paramsBuffer, Size: wgpu.WholeSize},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "particles: compute bind group")
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(e.computePipeline)
	pass.SetBindGroup(0, bg, nil)
	groups := (uint32(len(e.cpu)) + 63) / 64
	pass.DispatchWorkgroups(groups, 1, 1)
	pass.End()

	// COMPUTE_SHADER{SHADER_WRITE} -> VERTEX_INPUT{VERTEX_ATTRIBUTE_READ}:
	// wgpu orders passes against the same buffer implicitly by submission
	// order, so no explicit barrier call is needed beyond recording the
	// render pass after this compute pass in the same encoder.
	encoder.CopyBufferToBuffer(e.particleBuffer, 0, e.readbackBuffer, 0, uint64(len(e.cpu))*particleGPUStride)
	return nil
}

// Readback polls for the pending pool copy and, once mapped, refreshes
// the CPU's life/age estimates used by the next Recycle call. Like
// cull.Engine.Readback, this never blocks: it returns false when the map
// hasn't completed yet and the caller should keep using last frame's
// estimate.
func (e *Engine) Readback() bool {
	if !e.mapped {
		e.readbackBuffer.MapAsync(wgpu.MapModeRead, 0, e.readbackBuffer.GetSize(), func(status wgpu.BufferMapAsyncStatus) {
			if status == wgpu.BufferMapAsyncStatusSuccess {
				e.mapped = true
			} else {
				e.log.Warnf("particles: pool readback map failed: %d", status)
			}
		})
	}
	e.ctx.Device.Poll(false, nil)
	if !e.mapped {
		return false
	}

	data := e.readbackBuffer.GetMappedRange(0, uint(uint64(len(e.cpu))*particleGPUStride))
	for i := range e.cpu {
		off := i * particleGPUStride
		if off+particleGPUStride > len(data) {
			break
		}
		e.cpu[i] = bytesToParticle(data[off : off+particleGPUStride])
	}
	e.readbackBuffer.Unmap()
	e.mapped = false
	return true
}

// Draw records the billboard draw of the whole pool; dead particles
// collapse to zero-sized quads in particles_billboard.wgsl's vertex
// shader rather than being skipped here, so no CPU-side indirect draw
// count is needed.
func (e *Engine) Draw(encoder *wgpu.CommandEncoder, colorView *wgpu.TextureView, cameraBindGroup *wgpu.BindGroup, cameraDynamicOffset uint32) error {
	particlesBG, err := e.ctx.CreateBindGroup("particles.render.bg", e.particlesLayout, []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: e.particleBuffer, Size: wgpu.WholeSize},
	})
	if err != nil {
		return diag.WrapError(diag.InitializationFailed, err, "particles: render bind group")
	}

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:            "particles.pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{View: colorView, LoadOp: wgpu.LoadOpLoad, StoreOp: wgpu.StoreOpStore}},
	})
	pass.SetPipeline(e.renderPipeline)
	pass.SetBindGroup(0, cameraBindGroup, []uint32{cameraDynamicOffset})
	pass.SetBindGroup(1, particlesBG, nil)
	pass.Draw(6, uint32(len(e.cpu)), 0, 0)
	pass.End()
	return nil
}

func structToBytes(p simParams) []byte {
	return wgpu.ToBytes([]simParams{p})
}

func bytesToParticle(b []byte) ParticleGPU {
	var p ParticleGPU
	readVec4 := func(off int) [4]float32 {
		var v [4]float32
		for i := 0; i < 4; i++ {
			v[i] = math.Float32frombits(leUint32(b[off+i*4:]))
		}
		return v
	}
	p.PositionAndLife = readVec4(0)
	p.VelocityAndWeight = readVec4(16)
	p.ColorStart = readVec4(32)
	p.ColorEnd = readVec4(48)
	p.SizeAndAge = readVec4(64)
	return p
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
