package gpu

// Fence emulates a Vulkan VkFence's wait/reset contract on top of a
// blocking wgpu Device.Poll, the same primitive the culling and particle
// readbacks call without blocking to pump their async MapAsync. A
// Fence is not itself an async handle — Wait blocks the calling (CPU main)
// goroutine until the device has drained all submitted work, which is the
// engine's only concurrency model: single-threaded CPU, a small number of
// frames in flight on the GPU.
type Fence struct {
	signaled bool
}

// Wait blocks until the device reports idle, then marks the fence
// signaled. The frame orchestrator calls this before reusing a frame
// slot's resources.
func (f *Fence) Wait(c *Context) {
	c.Device.Poll(true, nil)
	f.signaled = true
}

// Reset clears the signaled flag, right after a wait and before recording
// into that frame's command buffer again.
func (f *Fence) Reset() { f.signaled = false }

func (f *Fence) Signaled() bool { return f.signaled }

// Semaphore stands in for a VkSemaphore's GPU-side-only wait/signal pair.
// wgpu's queue ordering is implicit (submissions against one queue run in
// submission order and the surface's Present already waits on the prior
// submit), so Semaphore here is a marker type the frame orchestrator uses
// to document the acquire/submit/present dependency, not a distinct OS
// handle.
type Semaphore struct {
	name string
}

func NewSemaphore(name string) *Semaphore { return &Semaphore{name: name} }
func (s *Semaphore) String() string       { return s.name }
