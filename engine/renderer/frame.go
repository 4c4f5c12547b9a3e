package renderer

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/engine/renderer/pipeline"
)

// configureSurface negotiates format, present mode, and image count
// against the surface's current capabilities and reconfigures it, then
// rebuilds the depth attachment and the cached render pass descriptor for
// the new extent.
func (r *Renderer) configureSurface(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps := r.surface.GetCapabilities(r.adapter)
	if len(caps.Formats) == 0 {
		return fmt.Errorf("%w: surface reports no formats", ErrFormatUnsupported)
	}

	supported := make([]FormatChoice, len(caps.Formats))
	for i, f := range caps.Formats {
		supported[i] = FormatChoice{Format: f}
	}
	// WebGPU capabilities report formats only; the transfer function rides
	// on the format itself (the *Srgb suffix), so a requested color space
	// is subsumed by the format comparison. An explicit preference is an
	// exact request; without one the sRGB-then-first fallback applies.
	choice, err := NegotiateFormat(supported, r.preferredFormat, "", r.hasPreferredFormat)
	if err != nil {
		return err
	}
	r.surfaceFormat = choice.Format

	if len(caps.PresentModes) > 0 {
		if _, err := NegotiatePresentMode(caps.PresentModes, r.presentMode); err != nil {
			return err
		}
	}

	r.imageCount = int(NegotiateImageCount(uint32(max(r.requestedImages, 1)), 8))

	r.surface.Configure(r.adapter, r.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      r.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: r.presentMode,
		AlphaMode:   caps.AlphaModes[0],
	})
	r.width, r.height = width, height

	// Depth attachment tracks the surface extent; the old one dies with the
	// reconfigure.
	if r.depthView != nil {
		r.depthView.Release()
	}
	if r.depthTexture != nil {
		r.depthTexture.Release()
	}
	depth, err := r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "frame depth",
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        pipeline.DepthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("renderer: create depth texture: %w", err)
	}
	view, err := depth.CreateView(nil)
	if err != nil {
		depth.Release()
		return fmt.Errorf("renderer: create depth view: %w", err)
	}
	r.depthTexture = depth
	r.depthView = view

	r.passDescriptor = &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			// View is set per frame to the acquired swapchain view.
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(r.clearColor[0]),
				G: float64(r.clearColor[1]),
				B: float64(r.clearColor[2]),
				A: float64(r.clearColor[3]),
			},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	}
	return nil
}

// BeginCompute opens the frame's compute command encoder and returns it.
// Culling dispatches and any pre-scene offscreen passes record into it;
// EndCompute submits the lot ahead of the render pass.
func (r *Renderer) BeginCompute() (*wgpu.CommandEncoder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("renderer: create compute encoder: %w", err)
	}
	r.computeEncoder = encoder
	return encoder, nil
}

// EndCompute finishes and submits the compute encoder opened by
// BeginCompute. Submission order puts this ahead of the frame's render
// pass on the same queue, which is the compute-write -> draw-read ordering
// the culler needs.
func (r *Renderer) EndCompute() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.computeEncoder == nil {
		return
	}
	cmd, err := r.computeEncoder.Finish(nil)
	if err == nil {
		r.queue.Submit(cmd)
		cmd.Release()
	}
	r.computeEncoder.Release()
	r.computeEncoder = nil
}

// BeginFrame acquires the next swapchain image and opens the frame's
// render pass over it, with viewport and scissor set to the full surface
// (dynamic state — pipelines are not rebuilt on resize). An acquire
// failure is the recoverable out-of-date case: the caller marks the
// swapchain dirty and skips the frame.
func (r *Renderer) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frameSurface != nil {
		return fmt.Errorf("renderer: previous frame surface not yet presented")
	}

	surfaceTexture, err := r.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("renderer: acquire surface image: %w", err)
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return fmt.Errorf("renderer: create surface view: %w", err)
	}
	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return fmt.Errorf("renderer: create frame encoder: %w", err)
	}

	r.passDescriptor.ColorAttachments[0].View = view
	pass := encoder.BeginRenderPass(r.passDescriptor)
	pass.SetViewport(0, 0, float32(r.width), float32(r.height), 0, 1)
	pass.SetScissorRect(0, 0, uint32(r.width), uint32(r.height))

	r.frameEncoder = encoder
	r.framePass = pass
	r.frameSurface = surfaceTexture
	r.frameView = view
	return nil
}

// FramePass returns the render pass opened by BeginFrame, or nil outside a
// frame.
func (r *Renderer) FramePass() *wgpu.RenderPassEncoder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.framePass
}

// EndFrame closes the render pass and submits the frame's commands. A
// finish failure drops the frame's recording: nothing is submitted and the
// acquired image is still presented to keep the swapchain advancing.
func (r *Renderer) EndFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.framePass == nil {
		return
	}
	r.framePass.End()
	r.framePass = nil

	cmd, err := r.frameEncoder.Finish(nil)
	if err == nil {
		r.queue.Submit(cmd)
		cmd.Release()
	}
	r.frameEncoder.Release()
	r.frameEncoder = nil
}

// Present presents the acquired image and releases the frame's surface
// references.
func (r *Renderer) Present() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frameSurface == nil {
		return
	}
	r.surface.Present()
	r.frameView.Release()
	r.frameView = nil
	r.frameSurface.Release()
	r.frameSurface = nil
}
