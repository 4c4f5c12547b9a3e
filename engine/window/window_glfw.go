package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// trackedKeys is the set of keycodes forwarded to the key callback.
var trackedKeys = map[glfw.Key]Key{
	glfw.KeyW: KeyW,
	glfw.KeyA: KeyA,
	glfw.KeyS: KeyS,
	glfw.KeyD: KeyD,
	glfw.KeyQ: KeyQ,
	glfw.KeyE: KeyE,
}

// glfwWindow implements Window over go-gl/glfw with the wgpuglfw surface
// bridge.
type glfwWindow struct {
	win *glfw.Window

	width  int
	height int

	onResize    func(width, height int)
	onKey       func(key Key, pressed bool)
	onScroll    func(delta float32)
	onOrbitDrag func(dx, dy float32)

	dragging     bool
	lastX, lastY float64
}

func newGLFWWindow(title string, width, height int, fullscreen bool) (*glfwWindow, error) {
	// GLFW requires its event handling to stay on one OS thread.
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("window: init glfw: %w", err)
	}

	// WebGPU owns the graphics API; no GL context.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	var monitor *glfw.Monitor
	if fullscreen {
		monitor = glfw.GetPrimaryMonitor()
		if mode := monitor.GetVideoMode(); mode != nil {
			width, height = mode.Width, mode.Height
		}
	}

	win, err := glfw.CreateWindow(width, height, title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window: create window: %w", err)
	}

	w := &glfwWindow{win: win}

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			win.SetShouldClose(true)
			return
		}
		tracked, ok := trackedKeys[key]
		if !ok || w.onKey == nil {
			return
		}
		switch action {
		case glfw.Press:
			w.onKey(tracked, true)
		case glfw.Release:
			w.onKey(tracked, false)
		}
	})

	win.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if w.onScroll != nil {
			w.onScroll(float32(yoff))
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonMiddle {
			return
		}
		switch action {
		case glfw.Press:
			w.dragging = true
			w.lastX, w.lastY = win.GetCursorPos()
		case glfw.Release:
			w.dragging = false
		}
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if !w.dragging {
			return
		}
		if w.onOrbitDrag != nil {
			w.onOrbitDrag(float32(x-w.lastX), float32(y-w.lastY))
		}
		w.lastX, w.lastY = x, y
	})

	// The framebuffer size callback is the resize signal: it reports pixel
	// dimensions, which is what the surface must be configured with.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, fbw, fbh int) {
		w.width, w.height = fbw, fbh
		if w.onResize != nil {
			w.onResize(fbw, fbh)
		}
	})

	w.width, w.height = win.GetFramebufferSize()
	return w, nil
}

func (w *glfwWindow) Size() (int, int) {
	return w.width, w.height
}

func (w *glfwWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w.win)
}

func (w *glfwWindow) SetResizeCallback(cb func(width, height int)) { w.onResize = cb }

func (w *glfwWindow) SetKeyCallback(cb func(key Key, pressed bool)) { w.onKey = cb }

func (w *glfwWindow) SetScrollCallback(cb func(delta float32)) { w.onScroll = cb }

func (w *glfwWindow) SetOrbitDragCallback(cb func(dx, dy float32)) { w.onOrbitDrag = cb }

func (w *glfwWindow) Pump() bool {
	glfw.PollEvents()
	return !w.win.ShouldClose()
}

func (w *glfwWindow) RequestClose() {
	w.win.SetShouldClose(true)
}

func (w *glfwWindow) Destroy() {
	w.win.Destroy()
	glfw.Terminate()
}
