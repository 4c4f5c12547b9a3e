// Package renderer owns the GPU device, the surface and its swapchain
// negotiation, the descriptor registry/pool, the pipeline cache, and the
// per-frame command recording brackets the frame loop drives. It is the
// only package that talks to the WebGPU device directly on the render
// thread; background cleanup goes through the resource worker instead.
package renderer

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/config"
	"github.com/vertexforge/engine/engine/renderer/descriptor"
	"github.com/vertexforge/engine/engine/renderer/pipeline"
	"github.com/vertexforge/engine/engine/window"
)

// ErrNoDevice is returned when no GPU adapter or device satisfying the
// surface can be acquired. Fatal to initialization.
var ErrNoDevice = errors.New("renderer: no suitable GPU device")

// sharedTextureMaterialLayout is the descriptor registry key for the
// texture-view + sampler bind group layout backing CacheTexture/
// EvictTextures. Registered lazily on first use since no caller is
// required to use textured materials.
const sharedTextureMaterialLayout = "shared_texture_material"

// descriptorDeviceCeiling caps descriptor pool growth; mirrors the config
// package's clamp ceiling for descriptor counts.
const descriptorDeviceCeiling = 100_000

// Renderer is the render thread's GPU context. All methods must be called
// from the render goroutine except where noted.
type Renderer struct {
	mu sync.Mutex

	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	deviceLimits wgpu.Limits

	registry  *descriptor.Registry
	pool      *descriptor.Pool
	pipelines *pipeline.Cache

	textureCache *descriptor.TextureCache

	// Swapchain request + negotiated state.
	requestedImages     int
	presentMode         wgpu.PresentMode
	preferredFormat     wgpu.TextureFormat
	preferredColorSpace string
	hasPreferredFormat  bool
	clearColor          [4]float32

	surfaceFormat  wgpu.TextureFormat
	imageCount     int
	width, height  int
	depthView      *wgpu.TextureView
	depthTexture   *wgpu.Texture
	passDescriptor *wgpu.RenderPassDescriptor

	swapchainState SwapchainState

	// In-flight frame recording state.
	frameEncoder   *wgpu.CommandEncoder
	framePass      *wgpu.RenderPassEncoder
	frameSurface   *wgpu.Texture
	frameView      *wgpu.TextureView
	computeEncoder *wgpu.CommandEncoder
}

// New acquires a device compatible with the window's surface and performs
// the initial swapchain negotiation from the config's swapchain section.
// The descriptor pool's initial capacity comes from the config's
// descriptor-cache sizing. Fails rather than falling back if the requested
// present mode or an explicitly preferred surface format is unsupported.
func New(win window.Window, cfg *config.Config) (*Renderer, error) {
	r := &Renderer{
		requestedImages: 2,
		presentMode:     wgpu.PresentModeFifo,
		clearColor:      [4]float32{0, 0, 0, 1},
	}

	poolCapacity := 256
	if cfg != nil {
		r.requestedImages = cfg.Swapchain.ImageCount
		r.presentMode = translatePresentMode(cfg.Swapchain.PresentMode)
		r.clearColor = cfg.Render.ClearColor
		if cfg.Swapchain.PreferredFormat != "" {
			format, err := ParseFormat(cfg.Swapchain.PreferredFormat)
			if err != nil {
				return nil, err
			}
			r.preferredFormat = format
			r.preferredColorSpace = cfg.Swapchain.PreferredColorSpace
			r.hasPreferredFormat = true
		}
		if n := cfg.GPU.DescriptorCache.MaxSets; n > 0 {
			poolCapacity = n
		}
	}

	r.instance = wgpu.CreateInstance(nil)
	r.surface = r.instance.CreateSurface(win.SurfaceDescriptor())

	adapter, err := r.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: r.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: request adapter: %v", ErrNoDevice, err)
	}
	r.adapter = adapter

	limits := wgpu.DefaultLimits()
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:          "render device",
		RequiredLimits: &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: request device: %v", ErrNoDevice, err)
	}
	r.device = device
	r.queue = device.GetQueue()
	r.deviceLimits = limits

	r.registry = descriptor.NewRegistry(device)
	r.pool = descriptor.NewPool(device, r.registry, descriptorDeviceCeiling)
	r.pool.Build(nil, poolCapacity)
	r.pipelines = pipeline.NewCache(device, r.registry)

	r.textureCache = descriptor.NewTextureCache(r.pool, sharedTextureMaterialLayout, func(handle descriptor.TextureHandle) []wgpu.BindGroupEntry {
		return []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: handle.View},
			{Binding: 1, Sampler: handle.Sampler},
		}
	})

	w, h := win.Size()
	if err := r.configureSurface(w, h); err != nil {
		return nil, err
	}
	return r, nil
}

// Device returns the GPU device handle.
func (r *Renderer) Device() *wgpu.Device { return r.device }

// Queue returns the GPU submission queue.
func (r *Renderer) Queue() *wgpu.Queue { return r.queue }

// DeviceLimits returns the limits the device was created with, for
// re-validating configuration sizes after device selection.
func (r *Renderer) DeviceLimits() wgpu.Limits { return r.deviceLimits }

// SurfaceFormat returns the negotiated swapchain format; render pipelines
// targeting the frame pass are built against it.
func (r *Renderer) SurfaceFormat() wgpu.TextureFormat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surfaceFormat
}

// SwapchainImageCount returns the image count last negotiated for the
// surface; the sync set's render-finished semaphores are sized to it.
func (r *Renderer) SwapchainImageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.imageCount
}

// Registry returns the bind-group-layout registry.
func (r *Renderer) Registry() *descriptor.Registry { return r.registry }

// Pool returns the growable descriptor allocation pool.
func (r *Renderer) Pool() *descriptor.Pool { return r.pool }

// Pipelines returns the pipeline cache. Handles built from it stay valid
// across Recreate.
func (r *Renderer) Pipelines() *pipeline.Cache { return r.pipelines }

// CacheTexture returns the cached bind group for textureID, allocating one
// against the shared textured-material layout on first sight. The cache
// holds a strong reference to view and sampler until EvictTextures drops
// the id.
func (r *Renderer) CacheTexture(textureID uint64, view *wgpu.TextureView, sampler *wgpu.Sampler) (*wgpu.BindGroup, error) {
	if _, ok := r.registry.Lookup(sharedTextureMaterialLayout); !ok {
		textureEntry := wgpu.BindGroupLayoutEntry{Binding: 0, Visibility: wgpu.ShaderStageFragment}
		textureEntry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		textureEntry.Texture.ViewDimension = wgpu.TextureViewDimension2D

		samplerEntry := wgpu.BindGroupLayoutEntry{Binding: 1, Visibility: wgpu.ShaderStageFragment}
		samplerEntry.Sampler.Type = wgpu.SamplerBindingTypeFiltering

		if _, err := r.registry.Register(sharedTextureMaterialLayout, []wgpu.BindGroupLayoutEntry{textureEntry, samplerEntry}); err != nil {
			return nil, fmt.Errorf("renderer: register texture material layout: %w", err)
		}
	}
	return r.textureCache.GetOrCreate(textureID, descriptor.TextureHandle{View: view, Sampler: sampler})
}

// EvictTextures frees the descriptor set of every cached texture whose id
// is absent from referenced and drops the cache's strong reference.
// Returns the number evicted.
func (r *Renderer) EvictTextures(referenced map[uint64]struct{}) int {
	return r.textureCache.CleanupUnused(referenced)
}

// SwapchainDirty reports whether the swapchain needs recreation before the
// next frame. Safe from any goroutine that only reads the flag after the
// resize callback set it; the frame loop is the sole clearer.
func (r *Renderer) SwapchainDirty() bool { return r.swapchainState.Dirty() }

// MarkSwapchainDirty flags the swapchain for recreation on the next frame
// loop iteration: called from the resize callback and after a failed
// acquire.
func (r *Renderer) MarkSwapchainDirty() { r.swapchainState.MarkDirty() }

// Recreate renegotiates the swapchain extent, format, and present mode and
// reconfigures the surface, then rebuilds the depth attachment. Pipeline
// handles stay valid (dynamic viewport/scissor). The caller must have
// waited for the device to go idle.
func (r *Renderer) Recreate(width, height int) error {
	extent := NegotiateExtent(
		Extent{Width: uint32(width), Height: uint32(height)},
		Extent{},
		Extent{Width: 320, Height: 240},
		Extent{Width: 7680, Height: 4320},
	)
	if err := r.configureSurface(int(extent.Width), int(extent.Height)); err != nil {
		return err
	}
	r.swapchainState.ClearDirty()
	return nil
}

// Release tears down the renderer's GPU objects in reverse dependency
// order. The caller must have finished or abandoned any in-flight frame.
func (r *Renderer) Release() {
	r.pipelines.Release()
	if r.depthView != nil {
		r.depthView.Release()
	}
	if r.depthTexture != nil {
		r.depthTexture.Release()
	}
	if r.surface != nil {
		r.surface.Release()
	}
	if r.device != nil {
		r.device.Release()
	}
	if r.instance != nil {
		r.instance.Release()
	}
}

// translatePresentMode maps the config's present-mode names onto WebGPU
// present modes. An unknown name falls back to FIFO, the one mode every
// surface must support; the subsequent exact-match negotiation still
// validates it against the surface's reported list.
func translatePresentMode(m config.PresentMode) wgpu.PresentMode {
	switch m {
	case config.PresentModeMailbox:
		return wgpu.PresentModeMailbox
	case config.PresentModeImmediate:
		return wgpu.PresentModeImmediate
	case config.PresentModeFifoRelaxed:
		return wgpu.PresentModeFifoRelaxed
	case config.PresentModeFifo:
		return wgpu.PresentModeFifo
	default:
		log.Printf("renderer: unknown present mode %q, using fifo", m)
		return wgpu.PresentModeFifo
	}
}

// ParseFormat maps a config surface-format name onto a texture format. An
// unknown name is an ErrFormatUnsupported naming the accepted values.
func ParseFormat(name string) (wgpu.TextureFormat, error) {
	switch name {
	case "bgra8unorm-srgb":
		return wgpu.TextureFormatBGRA8UnormSrgb, nil
	case "bgra8unorm":
		return wgpu.TextureFormatBGRA8Unorm, nil
	case "rgba8unorm-srgb":
		return wgpu.TextureFormatRGBA8UnormSrgb, nil
	case "rgba8unorm":
		return wgpu.TextureFormatRGBA8Unorm, nil
	}
	return 0, fmt.Errorf("%w: unknown format name %q (accepted: bgra8unorm-srgb, bgra8unorm, rgba8unorm-srgb, rgba8unorm)", ErrFormatUnsupported, name)
}
