// Package window wraps platform windowing and input behind the small
// surface the rendering core needs: a WebGPU surface descriptor, an event
// pump, a resize signal for swapchain recreation, and camera-control input
// (keys, scroll, orbit drag). Window and surface creation are collaborators
// of the core, not part of it; nothing here touches the GPU.
package window

import (
	"github.com/cogentcore/webgpu/wgpu"
)

// Creation sizes are clamped to the same bounds config.Clamp enforces, so a
// window can never come up outside the range the swapchain negotiation was
// validated against.
const (
	minWidth  = 320
	minHeight = 240
	maxWidth  = 7680
	maxHeight = 4320
)

// Key identifies the camera-control keys the engine reacts to. Values match
// GLFW keycodes so the platform layer can pass them through unmapped.
type Key uint32

const (
	KeyW Key = 87
	KeyA Key = 65
	KeyS Key = 83
	KeyD Key = 68
	KeyQ Key = 81
	KeyE Key = 69
)

// Window is the platform surface and input pump the frame loop drives.
type Window interface {
	// Size returns the current framebuffer size in pixels. This is the
	// extent the swapchain must be configured with; on high-DPI displays it
	// differs from the logical window size.
	Size() (width, height int)

	// SurfaceDescriptor returns the platform-specific descriptor for
	// creating a WebGPU surface over this window.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// SetResizeCallback registers the function invoked with the new
	// framebuffer size whenever it changes. The frame loop uses this to
	// mark the swapchain dirty.
	SetResizeCallback(func(width, height int))

	// SetKeyCallback registers the function invoked on press (pressed =
	// true) and release of one of the tracked camera-control keys. Other
	// keys are not reported.
	SetKeyCallback(func(key Key, pressed bool))

	// SetScrollCallback registers the function invoked with the vertical
	// scroll delta (positive = toward the scene).
	SetScrollCallback(func(delta float32))

	// SetOrbitDragCallback registers the function invoked with cursor
	// deltas while the middle mouse button is held. The window does the
	// press/release and last-position bookkeeping; callers only see drag
	// motion.
	SetOrbitDragCallback(func(dx, dy float32))

	// Pump processes pending platform events. Returns false once the
	// window is closing; the frame loop exits on that.
	Pump() bool

	// RequestClose asks the window to close; the next Pump returns false.
	RequestClose()

	// Destroy releases the platform window. The surface created from it
	// must already be gone.
	Destroy()
}

// New creates a platform window. width and height are a framebuffer size
// request, clamped to the supported range; the actual size (which the
// platform may further adjust) is read back via Size.
func New(title string, width, height int, fullscreen bool) (Window, error) {
	return newGLFWWindow(title, clamp(width, minWidth, maxWidth), clamp(height, minHeight, maxHeight), fullscreen)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
