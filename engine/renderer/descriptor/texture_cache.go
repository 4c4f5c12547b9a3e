package descriptor

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// TextureHandle is the strong reference to a texture's GPU resources that
// the cache holds alive as long as any pipeline may sample it.
type TextureHandle struct {
	View    *wgpu.TextureView
	Sampler *wgpu.Sampler
}

// EntryFactory builds the bind group entries for a texture's descriptor
// set from the texture handle alone. Supplied by the caller so the cache
// stays agnostic of a specific material layout.
type EntryFactory func(handle TextureHandle) []wgpu.BindGroupEntry

// Allocator is the subset of *Pool's interface TextureCache depends on,
// factored out so tests can exercise the cache's refcounting logic
// against a fake rather than a real device-backed pool.
type Allocator interface {
	Allocate(key string, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error)
	Free(set *wgpu.BindGroup) error
}

// TextureCache maps texture ids to their allocated descriptor set,
// refcounting nothing explicitly — liveness is tracked by forward/reverse
// map membership: the reverse map holds the strong texture reference
// alive exactly as long as the forward entry exists.
type TextureCache struct {
	mu sync.Mutex

	pool        Allocator
	layoutKey   string
	makeEntries EntryFactory

	forward map[uint64]*wgpu.BindGroup
	reverse map[*wgpu.BindGroup]textureCacheEntry
}

type textureCacheEntry struct {
	textureID uint64
	handle    TextureHandle
}

// NewTextureCache creates a cache that allocates descriptor sets from pool
// against layoutKey (the textured-material layout), using makeEntries to
// build each set's bindings.
func NewTextureCache(pool Allocator, layoutKey string, makeEntries EntryFactory) *TextureCache {
	return &TextureCache{
		pool:        pool,
		layoutKey:   layoutKey,
		makeEntries: makeEntries,
		forward:     make(map[uint64]*wgpu.BindGroup),
		reverse:     make(map[*wgpu.BindGroup]textureCacheEntry),
	}
}

// GetOrCreate returns the cached bind group for textureID, allocating one
// via the pool manager on first use.
func (c *TextureCache) GetOrCreate(textureID uint64, handle TextureHandle) (*wgpu.BindGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.forward[textureID]; ok {
		return set, nil
	}

	set, err := c.pool.Allocate(c.layoutKey, c.makeEntries(handle))
	if err != nil {
		return nil, fmt.Errorf("descriptor: texture cache get-or-create %d: %w", textureID, err)
	}

	c.forward[textureID] = set
	c.reverse[set] = textureCacheEntry{textureID: textureID, handle: handle}
	return set, nil
}

// CleanupUnused frees every cached set whose texture id is absent from
// referenced, dropping the strong texture reference that kept it alive.
func (c *TextureCache) CleanupUnused(referenced map[uint64]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	freed := 0
	for id, set := range c.forward {
		if _, stillReferenced := referenced[id]; stillReferenced {
			continue
		}
		if err := c.pool.Free(set); err == nil {
			freed++
		}
		delete(c.forward, id)
		delete(c.reverse, set)
	}
	return freed
}

// Len returns the number of live cached entries.
func (c *TextureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forward)
}
