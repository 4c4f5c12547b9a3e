package descriptor

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

type fakeAllocator struct {
	allocated int
	freed     int
}

func (f *fakeAllocator) Allocate(key string, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	f.allocated++
	return &wgpu.BindGroup{}, nil
}

func (f *fakeAllocator) Free(set *wgpu.BindGroup) error {
	f.freed++
	return nil
}

func TestGetOrCreateAllocatesOncePerTexture(t *testing.T) {
	fa := &fakeAllocator{}
	c := NewTextureCache(fa, "textured", func(TextureHandle) []wgpu.BindGroupEntry { return nil })

	set1, err := c.GetOrCreate(7, TextureHandle{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set2, err := c.GetOrCreate(7, TextureHandle{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set1 != set2 {
		t.Fatalf("GetOrCreate for the same texture id must return the same set")
	}
	if fa.allocated != 1 {
		t.Fatalf("allocations: have %d want 1", fa.allocated)
	}
}

func TestCleanupUnusedFreesOnlyDroppedTextures(t *testing.T) {
	fa := &fakeAllocator{}
	c := NewTextureCache(fa, "textured", func(TextureHandle) []wgpu.BindGroupEntry { return nil })

	if _, err := c.GetOrCreate(1, TextureHandle{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetOrCreate(2, TextureHandle{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	freed := c.CleanupUnused(map[uint64]struct{}{2: {}})
	if freed != 1 {
		t.Fatalf("freed count: have %d want 1", freed)
	}
	if c.Len() != 1 {
		t.Fatalf("cache length after cleanup: have %d want 1", c.Len())
	}
	if fa.freed != 1 {
		t.Fatalf("allocator.Free calls: have %d want 1", fa.freed)
	}

	if _, ok := c.forward[2]; !ok {
		t.Fatalf("referenced texture 2 must remain cached")
	}
	if _, ok := c.forward[1]; ok {
		t.Fatalf("unreferenced texture 1 must be evicted")
	}
}
