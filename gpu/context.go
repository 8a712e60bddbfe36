// Package gpu wraps an already-booted wgpu device handed to the engine by
// its windowing/swapchain collaborator and exposes the command-buffer,
// descriptor/bind-group and buffer/texture helpers the rest of the engine
// builds on. wgpu-native's attachment-based BeginRenderPass/
// BeginComputePass calls need no pre-created render-pass or framebuffer
// object, the same shape VK_KHR_dynamic_rendering's CmdBeginRenderingKHR
// has, so Context issues passes that way throughout.
package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Context is the engine's GPU handle: device, queue and the small set of
// pool-like helpers (command encoding, bind-group/layout creation, memory
// limit lookup) the rest of the engine is built on. It does not create the
// device itself — that belongs to the swapchain collaborator — only what
// is built on top of an existing one.
type Context struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue

	limits wgpu.SupportedLimits
}

// NewContext adopts an externally created device/queue pair. Callers pass
// the device their swapchain collaborator already negotiated with the
// adapter (instance/surface/adapter selection is out of scope here).
func NewContext(device *wgpu.Device, queue *wgpu.Queue) *Context {
	c := &Context{Device: device, Queue: queue}
	if device != nil {
		c.limits = device.GetLimits()
	}
	return c
}

// MaxStorageBufferBindingSize reports the live device's storage-buffer
// range limit, so a caller configuring the bone-matrix slab can size it
// against what the device actually supports instead of a hard-coded
// constant.
func (c *Context) MaxStorageBufferBindingSize() uint64 {
	return c.limits.Limits.MaxStorageBufferBindingSize
}

// CreateCommandEncoder begins a new command encoder for recording one
// frame's passes, analogous to beginning a Vulkan primary command buffer.
func (c *Context) CreateCommandEncoder(label string) (*wgpu.CommandEncoder, error) {
	return c.Device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
}

// CreateBuffer allocates a zero-initialized GPU buffer of size bytes.
func (c *Context) CreateBuffer(label string, usage wgpu.BufferUsage, size uint64) (*wgpu.Buffer, error) {
	if size == 0 {
		size = 16
	}
	buf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Usage:            usage,
		Size:             size,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %q (%d bytes): %w", label, size, err)
	}
	return buf, nil
}

// WriteBuffer uploads data at byteOffset into buf. The caller is
// responsible for not touching a frame's buffers again until that frame's
// fence has signaled.
func (c *Context) WriteBuffer(buf *wgpu.Buffer, byteOffset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	c.Queue.WriteBuffer(buf, byteOffset, data)
}

// DepthImageUsage is the standard usage set for a depth-only render
// target (shadow maps, main-pass depth).
const DepthImageUsage = wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding

// CreateDepthImage is the single depth-image constructor for the engine;
// it always takes (width, height, format, usage) rather than branching on
// the target's intended use.
func (c *Context) CreateDepthImage(width, height uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := c.Device.CreateTexture(&wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create depth image %dx%d: %w", width, height, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create depth image view: %w", err)
	}
	return tex, view, nil
}

// CreateDepthArray allocates a layered depth texture — one shadow map
// per layer — returning the sampleable array view (viewDimension is
// TextureViewDimension2DArray for 2D shadow maps, CubeArray for
// point-light cubes, where layers must be a multiple of 6) plus one 2D
// view per layer for the depth passes to render into.
func (c *Context) CreateDepthArray(size, layers uint32, viewDimension wgpu.TextureViewDimension, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, []*wgpu.TextureView, error) {
	tex, err := c.Device.CreateTexture(&wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: size, Height: size, DepthOrArrayLayers: layers},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gpu: create depth array %dx%d: %w", size, layers, err)
	}
	arrayView, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Dimension:       viewDimension,
		BaseArrayLayer:  0,
		ArrayLayerCount: layers,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gpu: create depth array view: %w", err)
	}
	layerViews := make([]*wgpu.TextureView, layers)
	for i := uint32(0); i < layers; i++ {
		layerView, err := tex.CreateView(&wgpu.TextureViewDescriptor{
			Dimension:       wgpu.TextureViewDimension2D,
			BaseArrayLayer:  i,
			ArrayLayerCount: 1,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("gpu: create depth array layer view %d: %w", i, err)
		}
		layerViews[i] = layerView
	}
	return tex, arrayView, layerViews, nil
}

// CreateColorImage allocates a color render target (main-pass color,
// post-process ping-pong buffers).
func (c *Context) CreateColorImage(width, height uint32, format wgpu.TextureFormat, usage wgpu.TextureUsage) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := c.Device.CreateTexture(&wgpu.TextureDescriptor{
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create color image %dx%d: %w", width, height, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("gpu: create color image view: %w", err)
	}
	return tex, view, nil
}

// CreateBindGroupLayout is a thin wrapper kept so every package calls
// through Context rather than the raw device.
func (c *Context) CreateBindGroupLayout(label string, entries []wgpu.BindGroupLayoutEntry) (*wgpu.BindGroupLayout, error) {
	layout, err := c.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: label, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group layout %q: %w", label, err)
	}
	return layout, nil
}

// CreateBindGroup is a thin wrapper kept for the same reason.
func (c *Context) CreateBindGroup(label string, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: label, Layout: layout, Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("gpu: create bind group %q: %w", label, err)
	}
	return bg, nil
}

// CreateShaderModule loads one of the WGSL modules embedded by the
// shaders package, shipped as source strings and compiled by the device
// here.
func (c *Context) CreateShaderModule(label, wgsl string) (*wgpu.ShaderModule, error) {
	mod, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: wgsl},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module %q: %w", label, err)
	}
	return mod, nil
}
