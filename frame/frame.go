// Package frame implements the double-buffered acquire/record/submit/
// present loop: MaxFramesInFlight Frame slots cycling through a fence
// wait, per-frame shadow/color targets, and a single command encoder the
// rest of the engine records its passes into.
package frame

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/talon3d/engine/diag"
	"github.com/talon3d/engine/gpu"
)

// MaxFramesInFlight bounds how many frames' worth of GPU work can be
// in flight at once; the CPU never races more than this many frame
// slots' resources.
const MaxFramesInFlight = 2

// MaxLights bounds how many shadow-casting light slots a Frame carries
// depth targets for.
const MaxLights = 10

// HDRColorFormat is the format of the main-pass color image and the two
// ping-pong post-process images. The swapchain's own format only ever
// appears on the final post-process pass.
const HDRColorFormat = wgpu.TextureFormatRGBA16Float

// Frame is one of the MaxFramesInFlight resource sets the orchestrator
// cycles through: its own fence/semaphores, command encoder, shadow
// targets (one 2D map and one cube map per light slot) and the main-pass
// plus ping-pong post-process color images.
type Frame struct {
	ImageAvailable *gpu.Semaphore
	RenderFinished *gpu.Semaphore
	InFlight       *gpu.Fence

	encoder *wgpu.CommandEncoder

	// ShadowArray2D and ShadowArrayCube are the sampleable array views
	// the main pass's shadow comparisons index by light slot; every
	// light's maps live as layers of these two textures. ShadowMaps2D
	// and ShadowCubeFaces are the matching per-layer render views the
	// shadow renderer's depth passes target.
	ShadowArray2D   *wgpu.TextureView
	ShadowArrayCube *wgpu.TextureView
	ShadowMaps2D    [MaxLights]*wgpu.TextureView
	ShadowCubeFaces [MaxLights][6]*wgpu.TextureView

	MainColor *wgpu.TextureView
	MainDepth *wgpu.TextureView
	PingPongA *wgpu.TextureView
	PingPongB *wgpu.TextureView
}

// newFrame allocates one frame slot's depth/color targets at width x
// height. Shadow map resolution is independent of the swapchain and is
// passed separately since it does not change on swapchain resize.
func newFrame(ctx *gpu.Context, width, height, shadowRes uint32) (*Frame, error) {
	f := &Frame{
		ImageAvailable: gpu.NewSemaphore("image_available"),
		RenderFinished: gpu.NewSemaphore("render_finished"),
		InFlight:       &gpu.Fence{},
	}

	_, array2D, layers2D, err := ctx.CreateDepthArray(shadowRes, MaxLights, wgpu.TextureViewDimension2DArray, wgpu.TextureFormatDepth32Float, gpu.DepthImageUsage)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "frame: shadow map 2d array")
	}
	f.ShadowArray2D = array2D
	copy(f.ShadowMaps2D[:], layers2D)

	_, arrayCube, cubeLayers, err := ctx.CreateDepthArray(shadowRes, MaxLights*6, wgpu.TextureViewDimensionCubeArray, wgpu.TextureFormatDepth32Float, gpu.DepthImageUsage)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "frame: shadow cube array")
	}
	f.ShadowArrayCube = arrayCube
	for i := 0; i < MaxLights; i++ {
		copy(f.ShadowCubeFaces[i][:], cubeLayers[i*6:(i+1)*6])
	}

	_, mainColor, err := ctx.CreateColorImage(width, height, HDRColorFormat, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "frame: main color image")
	}
	f.MainColor = mainColor

	_, mainDepth, err := ctx.CreateDepthImage(width, height, wgpu.TextureFormatDepth32Float, gpu.DepthImageUsage)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "frame: main depth image")
	}
	f.MainDepth = mainDepth

	_, pingA, err := ctx.CreateColorImage(width, height, HDRColorFormat, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "frame: ping-pong A image")
	}
	f.PingPongA = pingA

	_, pingB, err := ctx.CreateColorImage(width, height, HDRColorFormat, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding)
	if err != nil {
		return nil, diag.WrapError(diag.InitializationFailed, err, "frame: ping-pong B image")
	}
	f.PingPongB = pingB

	return f, nil
}

// Surface is the swapchain collaborator the orchestrator acquires/
// presents through. It is supplied by the engine's windowing layer; this
// package only depends on the shape it needs.
type Surface interface {
	// AcquireNextView returns the swapchain image to render into, or
	// outOfDate=true if the surface needs to be reconfigured before
	// rendering can continue (e.g. after a resize).
	AcquireNextView() (view *wgpu.TextureView, outOfDate bool, err error)
	// Present submits the acquired image for display, or
	// outOfDate=true if the caller should rebuild the swapchain before
	// the next frame.
	Present() (outOfDate bool, err error)
}

// RecordFunc records one frame's passes into encoder, given the frame
// slot's resource set and the swapchain view it must end by writing
// into (via the post-process chain).
type RecordFunc func(encoder *wgpu.CommandEncoder, f *Frame, swapchainView *wgpu.TextureView) error

// Orchestrator cycles through MaxFramesInFlight Frame slots, implementing
// the wait/acquire/record/submit/present sequence. It is the only caller
// of Fence.Wait, the one blocking Device.Poll in the steady-state render
// loop; the culling and particle readbacks poll without blocking.
type Orchestrator struct {
	ctx     *gpu.Context
	surface Surface
	log     diag.Logger

	frames  [MaxFramesInFlight]*Frame
	current int
}

// New allocates MaxFramesInFlight frame slots sized for width x height
// color targets and shadowRes-square shadow maps.
func New(ctx *gpu.Context, surface Surface, width, height, shadowRes uint32, log diag.Logger) (*Orchestrator, error) {
	o := &Orchestrator{ctx: ctx, surface: surface, log: log}
	for i := range o.frames {
		f, err := newFrame(ctx, width, height, shadowRes)
		if err != nil {
			return nil, err
		}
		o.frames[i] = f
	}
	return o, nil
}

// RenderFrame runs the full per-frame sequence: wait on the slot's
// fence, acquire the swapchain image (propagating an out-of-date signal
// for the caller to rebuild the swapchain on), record into a fresh
// command encoder via record, submit, present, then advance to the next
// frame slot. wgpu-native does not expose a separate reset-fence/
// reset-command-buffer step the way Vulkan does — CreateCommandEncoder
// each frame plays that role, and the fence's Reset/Wait pair documents
// the same single-in-flight-per-slot discipline.
func (o *Orchestrator) RenderFrame(record RecordFunc) (rebuildSwapchain bool, err error) {
	f := o.frames[o.current]

	f.InFlight.Wait(o.ctx)
	f.InFlight.Reset()

	swapchainView, outOfDate, err := o.surface.AcquireNextView()
	if outOfDate {
		return true, nil
	}
	if err != nil {
		return false, diag.WrapError(diag.SwapchainOutOfDate, err, "frame: acquire swapchain image")
	}

	encoder, err := o.ctx.CreateCommandEncoder("frame.encoder")
	if err != nil {
		return false, diag.WrapError(diag.InitializationFailed, err, "frame: create command encoder")
	}
	f.encoder = encoder

	if err := record(encoder, f, swapchainView); err != nil {
		return false, err
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return false, diag.WrapError(diag.InitializationFailed, err, "frame: finish command buffer")
	}
	o.ctx.Queue.Submit(cmdBuf)

	presentOutOfDate, err := o.surface.Present()
	if err != nil {
		return false, diag.WrapError(diag.SwapchainOutOfDate, err, "frame: present")
	}

	o.current = nextFrameIndex(o.current)
	return presentOutOfDate, nil
}

// Current returns the frame slot index the next RenderFrame call will
// use, for callers that need to index per-frame uniform buffers (camera/
// light UBOs) outside the record callback.
func (o *Orchestrator) Current() int { return o.current }

// nextFrameIndex is the frame-slot advance rule, a pure function so the
// cycling arithmetic is unit-testable without a live device.
func nextFrameIndex(current int) int {
	return (current + 1) % MaxFramesInFlight
}
