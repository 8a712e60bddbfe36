// Package engine ties the warehouse, scene graph, culling engine, batch
// builder, shadow renderer, main renderer, particle engine, post-process
// stack and frame orchestrator into the single facade an application
// embeds: attach/free scene nodes, push post-process effects, call
// RenderFrame once per tick.
package engine

import (
	"math/rand"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/talon3d/engine/batch"
	"github.com/talon3d/engine/cull"
	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/frame"
	"github.com/talon3d/engine/gpu"
	"github.com/talon3d/engine/handle"
	"github.com/talon3d/engine/mainpass"
	"github.com/talon3d/engine/particles"
	"github.com/talon3d/engine/postprocess"
	"github.com/talon3d/engine/scene"
	"github.com/talon3d/engine/shadow"
	"github.com/talon3d/engine/warehouse"
)

// DepthFormat is the single depth format every depth-tested pass (shadow
// maps, main pass) targets, matching gpu.Context.CreateDepthImage's
// convention of one shared format rather than a per-pass choice.
const DepthFormat = wgpu.TextureFormatDepth32Float

// Config collects every construction-time parameter the engine's
// subsystems need: target resolution, capacity caps and the swapchain's
// color format.
type Config struct {
	Width, Height uint32
	ColorFormat   wgpu.TextureFormat
	ShadowMapSize uint32

	MaxSceneNodes    int
	MaxCullingSlots  int
	MaxDrawInstances int

	Warehouse warehouse.Config
	Particles particles.Config

	ShadowPrioritized int // nearest-N lights refreshed every frame
	ShadowPerFrame    int // remaining lights round-robined this many per frame
}

// DefaultConfig returns sane defaults for a 1080p target with headroom
// for a mid-size scene.
func DefaultConfig() Config {
	return Config{
		Width:             1920,
		Height:            1080,
		ColorFormat:       wgpu.TextureFormatBGRA8UnormSrgb,
		ShadowMapSize:     2048,
		MaxSceneNodes:     4096,
		MaxCullingSlots:   4096,
		MaxDrawInstances:  4096,
		Warehouse:         warehouse.DefaultConfig(),
		Particles:         particles.DefaultConfig(),
		ShadowPrioritized: 2,
		ShadowPerFrame:    2,
	}
}

// Engine is the facade: it owns one of each subsystem and the frame
// orchestrator driving them. Application code never touches a subsystem
// package directly.
type Engine struct {
	cfg Config
	ctx *gpu.Context
	log diag.Logger

	warehouse *warehouse.Warehouse
	graph     *scene.Graph
	cull      *cull.Engine
	batches   *batch.Builder
	shadow    *shadow.Renderer
	main      *mainpass.Renderer
	particles *particles.Engine
	postFX    *postprocess.Stack
	post      *postprocess.Renderer
	frames    *frame.Orchestrator

	rng *rand.Rand

	camera           handle.Handle
	lastCamera       warehouse.Camera
	cullUpdateOffset int

	lastVisibility []bool
}

// New wires every subsystem in construction order: warehouse first (it
// owns the bind group layouts the renderers build pipelines against),
// then scene/cull/batch, then the three renderers, then the particle
// and post-process stacks, and finally the frame orchestrator. surface
// is the windowing layer's swapchain collaborator, already negotiated
// against the same adapter ctx's device came from.
func New(ctx *gpu.Context, surface frame.Surface, cfg Config, log diag.Logger) (*Engine, error) {
	if log == nil {
		log = diag.NewNopLogger()
	}

	wh, err := warehouse.New(ctx, cfg.Warehouse, log)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: warehouse init")
	}

	graph := scene.NewGraph(cfg.MaxSceneNodes)

	cullEngine, err := cull.New(ctx, cfg.MaxCullingSlots, log)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: cull engine init")
	}

	builder := batch.NewBuilder(wh)

	shadowRenderer, err := shadow.New(ctx, wh, cfg.MaxDrawInstances)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: shadow renderer init")
	}

	mainRenderer, err := mainpass.New(ctx, wh, frame.HDRColorFormat, DepthFormat, cfg.MaxDrawInstances)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: main renderer init")
	}

	particleEngine, err := particles.New(ctx, wh, cfg.Particles, frame.HDRColorFormat, log)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: particle engine init")
	}

	postRenderer, err := postprocess.New(ctx, frame.HDRColorFormat, cfg.ColorFormat)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: post-process renderer init")
	}

	frames, err := frame.New(ctx, surface, cfg.Width, cfg.Height, cfg.ShadowMapSize, log)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "engine: frame orchestrator init")
	}

	return &Engine{
		cfg:       cfg,
		ctx:       ctx,
		log:       log,
		warehouse: wh,
		graph:     graph,
		cull:      cullEngine,
		batches:   builder,
		shadow:    shadowRenderer,
		main:      mainRenderer,
		particles: particleEngine,
		postFX:    postprocess.NewStack(),
		post:      postRenderer,
		frames:    frames,
		rng:       rand.New(rand.NewSource(1)),
	}, nil
}

// AttachNode adds a node to the scene graph under parent (pass
// e.Graph().Root() for a scene-level root child), returning its handle.
func (e *Engine) AttachNode(parent handle.Handle, local scene.Transform, att scene.Attachment, debugName string) (handle.Handle, error) {
	return e.graph.CreateNode(parent, local, att, debugName)
}

// FreeNode releases h and its entire subtree.
func (e *Engine) FreeNode(h handle.Handle) {
	e.graph.FreeNode(h)
}

// SetNodeCulling toggles whether h participates in frustum culling.
// Nodes without an AABBable attachment are always treated as culled
// regardless of this flag (see scene.Graph.CullingSlots).
func (e *Engine) SetNodeCulling(h handle.Handle, enabled bool) {
	e.graph.SetCulling(h, enabled)
}

// SetCamera replaces (or, on first call, creates) the engine's primary
// camera slot.
func (e *Engine) SetCamera(cam warehouse.Camera) error {
	if e.camera.IsZero() {
		h, err := e.warehouse.UploadCamera(cam)
		if err != nil {
			return diag.WrapError(diag.InitializationFailed, err, "engine: upload camera")
		}
		e.camera = h
	} else {
		e.warehouse.UpdateCamera(e.camera, cam)
	}
	e.lastCamera = cam
	return nil
}

// AddPostprocessEffect appends one effect to the post-process stack.
func (e *Engine) AddPostprocessEffect(entry postprocess.Entry) {
	e.postFX.Add(entry)
}

// ClearPostprocessEffects empties the post-process stack; RenderFrame
// still runs the implicit NONE passthrough afterward.
func (e *Engine) ClearPostprocessEffects() {
	e.postFX.Clear()
}

// Graph exposes the scene graph's read-only API (Get, Traverse) for
// application code that needs to inspect node state beyond the facade's
// attach/free/cull surface.
func (e *Engine) Graph() *scene.Graph { return e.graph }
