// Package pipeline caches graphics and compute pipelines by key. Bind
// group layouts are resolved through the descriptor registry, so a
// pipeline's group order is a list of registry keys and two pipelines
// naming the same key share one layout.
//
// Cached handles are never invalidated by swapchain recreation: pipelines
// depend only on shader modules, layouts, and formats, and viewport and
// scissor are dynamic state set per render pass. A resize therefore leaves
// every handle in the cache valid.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/engine/renderer/descriptor"
)

// DepthFormat is the depth attachment format every render pipeline is
// built against; the renderer's depth texture must match.
const DepthFormat = wgpu.TextureFormatDepth24Plus

// ErrPipelineCreateFailed is wrapped by every GPU-side pipeline
// construction failure. It is fatal to the core: callers abort
// initialization rather than draw without the pipeline.
var ErrPipelineCreateFailed = errors.New("pipeline create failed")

// RenderDesc describes a render pipeline build.
type RenderDesc struct {
	Key            string
	Source         string // WGSL with both entry points
	VertexEntry    string
	FragmentEntry  string
	VertexLayouts  []wgpu.VertexBufferLayout
	LayoutKeys     []string // descriptor registry keys, in group order
	TargetFormat   wgpu.TextureFormat
	CullBackFaces  bool
	DisableDepth   bool // skip the depth attachment state (offscreen color-only passes)
	WriteDepth     bool
}

// ComputeDesc describes a compute pipeline build.
type ComputeDesc struct {
	Key        string
	Source     string
	Entry      string
	LayoutKeys []string
}

// Cache builds and caches pipelines against one device and registry.
type Cache struct {
	mu       sync.Mutex
	device   *wgpu.Device
	registry *descriptor.Registry
	render   map[string]*wgpu.RenderPipeline
	compute  map[string]*wgpu.ComputePipeline
}

// NewCache creates an empty pipeline cache.
func NewCache(device *wgpu.Device, registry *descriptor.Registry) *Cache {
	return &Cache{
		device:   device,
		registry: registry,
		render:   make(map[string]*wgpu.RenderPipeline),
		compute:  make(map[string]*wgpu.ComputePipeline),
	}
}

// BuildRender creates (or returns the cached) render pipeline for
// desc.Key. Every layout key must already be registered; a missing key is
// an error naming it, not a silently empty group.
func (c *Cache) BuildRender(desc RenderDesc) (*wgpu.RenderPipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.render[desc.Key]; ok {
		return p, nil
	}

	module, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %v", desc.Key, ErrPipelineCreateFailed, err)
	}
	defer module.Release()

	layout, err := c.pipelineLayout(desc.Key, desc.LayoutKeys)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	cullMode := wgpu.CullModeNone
	if desc.CullBackFaces {
		cullMode = wgpu.CullModeBack
	}

	pd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Key,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: desc.VertexEntry,
			Buffers:    desc.VertexLayouts,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: ^uint32(0)},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: desc.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    desc.TargetFormat,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
	}
	if !desc.DisableDepth {
		pd.DepthStencil = &wgpu.DepthStencilState{
			Format:            DepthFormat,
			DepthWriteEnabled: desc.WriteDepth,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		}
	}

	p, err := c.device.CreateRenderPipeline(pd)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %v", desc.Key, ErrPipelineCreateFailed, err)
	}
	c.render[desc.Key] = p
	return p, nil
}

// BuildCompute creates (or returns the cached) compute pipeline for
// desc.Key.
func (c *Cache) BuildCompute(desc ComputeDesc) (*wgpu.ComputePipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.compute[desc.Key]; ok {
		return p, nil
	}

	module, err := c.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Source},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %v", desc.Key, ErrPipelineCreateFailed, err)
	}
	defer module.Release()

	layout, err := c.pipelineLayout(desc.Key, desc.LayoutKeys)
	if err != nil {
		return nil, err
	}
	defer layout.Release()

	p, err := c.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Key,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.Entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %v", desc.Key, ErrPipelineCreateFailed, err)
	}
	c.compute[desc.Key] = p
	return p, nil
}

func (c *Cache) pipelineLayout(key string, layoutKeys []string) (*wgpu.PipelineLayout, error) {
	bgls := make([]*wgpu.BindGroupLayout, len(layoutKeys))
	for i, lk := range layoutKeys {
		entry, ok := c.registry.Lookup(lk)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: layout key %q not registered", key, lk)
		}
		bgls[i] = entry.Layout
	}
	layout, err := c.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            key,
		BindGroupLayouts: bgls,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w: %v", key, ErrPipelineCreateFailed, err)
	}
	return layout, nil
}

// Render returns the cached render pipeline for key, or nil.
func (c *Cache) Render(key string) *wgpu.RenderPipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.render[key]
}

// Compute returns the cached compute pipeline for key, or nil.
func (c *Cache) Compute(key string) *wgpu.ComputePipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compute[key]
}

// Release frees every cached pipeline. Outstanding handles become invalid.
func (c *Cache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.render {
		p.Release()
	}
	for _, p := range c.compute {
		p.Release()
	}
	c.render = make(map[string]*wgpu.RenderPipeline)
	c.compute = make(map[string]*wgpu.ComputePipeline)
}
