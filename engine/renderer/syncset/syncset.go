// Package syncset provides the software-emulated synchronization primitives
// the Frame Loop needs around swapchain acquire/submit/present: per-frame
// image-available semaphores and in-flight fences, and per-swapchain-image
// render-finished semaphores.
//
// WebGPU has no explicit VkFence/VkSemaphore objects — submission and
// presentation are implicitly ordered by the queue — so these are modeled
// as plain Go concurrency primitives that give the Frame Loop an
// explicit wait/signal contract. This is a deliberate software
// layer, not a binding shim: the rest of the engine's wgpu usage never
// touches anything resembling a fence.
package syncset

import "sync/atomic"

// Semaphore is a binary signal: a non-blocking Signal followed by a
// blocking Wait releases exactly one waiter.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore returns an unsignaled binary semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{ch: make(chan struct{}, 1)}
}

// Signal marks the semaphore signaled. Signaling an already-signaled
// semaphore is a no-op (select/default keeps Signal non-blocking, matching
// a binary semaphore's semantics — no semaphore is signaled while already
// pending).
func (s *Semaphore) Signal() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the semaphore is signaled, consuming the signal.
func (s *Semaphore) Wait() {
	<-s.ch
}

// Fence is a software fence: Wait blocks until Signal is called (or
// returns immediately if already signaled); Reset un-signals it.
type Fence struct {
	done     chan struct{}
	signaled atomic.Bool
}

// NewFence returns a fence. If signaled is true it is created already
// signaled — required for in-flight fences so the first wait in the Frame
// Loop does not block.
func NewFence(signaled bool) *Fence {
	f := &Fence{done: make(chan struct{})}
	if signaled {
		close(f.done)
		f.signaled.Store(true)
	}
	return f
}

// Wait blocks until the fence is signaled.
func (f *Fence) Wait() {
	<-f.done
}

// Signal marks the fence signaled, releasing any current or future Wait
// calls. Signaling an already-signaled fence is a no-op.
func (f *Fence) Signal() {
	if f.signaled.CompareAndSwap(false, true) {
		close(f.done)
	}
}

// Reset un-signals the fence so a subsequent Wait blocks again. Must be
// called only when no goroutine still holds the previous Wait.
func (f *Fence) Reset() {
	if f.signaled.CompareAndSwap(true, false) {
		f.done = make(chan struct{})
	}
}

// Set is the per-(frames-in-flight, swapchain-image-count) collection of
// sync primitives the Frame Loop drives each iteration.
type Set struct {
	imageAvailable []*Semaphore
	inFlightFences []*Fence
	renderFinished []*Semaphore

	framesInFlight int
	imageCount     int
	currentFrame   int
}

// New allocates framesInFlight image-available semaphores and fences, and
// imageCount render-finished semaphores. In-flight fences start
// signaled.
func New(framesInFlight, imageCount int) *Set {
	s := &Set{
		framesInFlight: framesInFlight,
		imageCount:     imageCount,
	}
	s.imageAvailable = make([]*Semaphore, framesInFlight)
	s.inFlightFences = make([]*Fence, framesInFlight)
	for i := 0; i < framesInFlight; i++ {
		s.imageAvailable[i] = NewSemaphore()
		s.inFlightFences[i] = NewFence(true)
	}
	s.renderFinished = make([]*Semaphore, imageCount)
	for i := 0; i < imageCount; i++ {
		s.renderFinished[i] = NewSemaphore()
	}
	return s
}

// CurrentFrame returns the current frame-in-flight slot.
func (s *Set) CurrentFrame() int { return s.currentFrame }

// ImageAvailable returns the image-available semaphore for the current
// frame slot.
func (s *Set) ImageAvailable() *Semaphore {
	return s.imageAvailable[s.currentFrame]
}

// InFlightFence returns the in-flight fence for the current frame slot.
func (s *Set) InFlightFence() *Fence {
	return s.inFlightFences[s.currentFrame]
}

// RenderFinishedForImage returns the render-finished semaphore for the
// i-th swapchain image. This must be indexed by the acquired image index,
// never by frame slot — the only correct binding given unordered image
// acquisition.
func (s *Set) RenderFinishedForImage(i int) *Semaphore {
	return s.renderFinished[i]
}

// AdvanceFrame increments the current frame slot modulo framesInFlight.
func (s *Set) AdvanceFrame() {
	s.currentFrame = (s.currentFrame + 1) % s.framesInFlight
}

// Resize rebuilds the render-finished semaphores for a new image count,
// used by recreate_swapchain when the swapchain's image count changes.
// Image-available semaphores and in-flight fences are unaffected since
// framesInFlight does not change on swapchain recreation.
func (s *Set) Resize(imageCount int) {
	s.imageCount = imageCount
	s.renderFinished = make([]*Semaphore, imageCount)
	for i := 0; i < imageCount; i++ {
		s.renderFinished[i] = NewSemaphore()
	}
}
