// Package descriptor implements the descriptor-set-equivalent management
// layer: a keyed bind-group-layout registry, a growable allocation ledger
// standing in for Vulkan's descriptor pool (WebGPU has no pool object —
// device.CreateBindGroup allocates directly), and a refcounted
// texture-to-bind-group cache.
package descriptor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrEmptyBindings is returned by Registry.Register when called with no
// layout entries.
var ErrEmptyBindings = errors.New("descriptor: layout registration requires at least one binding")

// LayoutEntry pairs a registered layout handle with the binding list used
// to create it, so later pool-size aggregation can inspect binding types
// without re-deriving them from the GPU object.
type LayoutEntry struct {
	Layout   *wgpu.BindGroupLayout
	Bindings []wgpu.BindGroupLayoutEntry
}

// Registry is a keyed cache of bind group layouts. Keys are free-form
// strings forming a closed enum by convention, documented at the call
// sites that register them — kept as strings rather than a Go enum so new
// layouts can be added data-driven without a central type change.
type Registry struct {
	mu      sync.Mutex
	device  *wgpu.Device
	entries map[string]LayoutEntry
}

// NewRegistry creates an empty layout registry bound to device.
func NewRegistry(device *wgpu.Device) *Registry {
	return &Registry{
		device:  device,
		entries: make(map[string]LayoutEntry),
	}
}

// Register is idempotent by key: a key already present returns the cached
// layout and ignores bindings entirely, even if it differs from the first
// call. An empty bindings list is always an error, even for an
// existing key, since it signals caller misuse.
func (r *Registry) Register(key string, bindings []wgpu.BindGroupLayoutEntry) (*wgpu.BindGroupLayout, error) {
	if len(bindings) == 0 {
		return nil, fmt.Errorf("%w: key %q", ErrEmptyBindings, key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		return existing.Layout, nil
	}

	layout, err := r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   key,
		Entries: bindings,
	})
	if err != nil {
		return nil, fmt.Errorf("descriptor: create layout %q: %w", key, err)
	}

	r.entries[key] = LayoutEntry{Layout: layout, Bindings: bindings}
	return layout, nil
}

// Lookup returns the cached layout entry for key, and whether it exists.
func (r *Registry) Lookup(key string) (LayoutEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// DescriptorType classifies a binding for pool-size aggregation purposes.
type DescriptorType int

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeStorageBuffer
	DescriptorTypeSampler
	DescriptorTypeTexture
)

func classify(entry wgpu.BindGroupLayoutEntry) (DescriptorType, bool) {
	switch {
	case entry.Buffer.Type == wgpu.BufferBindingTypeUniform:
		return DescriptorTypeUniformBuffer, true
	case entry.Buffer.Type == wgpu.BufferBindingTypeStorage || entry.Buffer.Type == wgpu.BufferBindingTypeReadOnlyStorage:
		return DescriptorTypeStorageBuffer, true
	case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
		return DescriptorTypeSampler, true
	case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
		return DescriptorTypeTexture, true
	default:
		return 0, false
	}
}

// AggregatePoolSizes computes, for each descriptor type T present across
// keys' bindings, maxSets × (max over keys of the sum of that key's
// binding count of type T). WebGPU's
// BindGroupLayoutEntry has no descriptor-count field (it is always 1 per
// binding, unlike a VkDescriptorSetLayoutBinding's descriptorCount), so the
// "count per binding" term is simply the number of bindings of that type.
func (r *Registry) AggregatePoolSizes(keys []string, maxSets int) map[DescriptorType]int {
	perKeyCounts := make(map[string]map[DescriptorType]int, len(keys))

	r.mu.Lock()
	for _, k := range keys {
		entry, ok := r.entries[k]
		if !ok {
			continue
		}
		counts := make(map[DescriptorType]int)
		for _, b := range entry.Bindings {
			if t, ok := classify(b); ok {
				counts[t]++
			}
		}
		perKeyCounts[k] = counts
	}
	r.mu.Unlock()

	maxPerType := make(map[DescriptorType]int)
	for _, counts := range perKeyCounts {
		for t, n := range counts {
			if n > maxPerType[t] {
				maxPerType[t] = n
			}
		}
	}

	out := make(map[DescriptorType]int, len(maxPerType))
	for t, n := range maxPerType {
		out[t] = n * maxSets
	}
	return out
}
