package descriptor

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func uniformBinding(n uint32) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: n}
	e.Buffer.Type = wgpu.BufferBindingTypeUniform
	return e
}

func samplerBinding(n uint32) wgpu.BindGroupLayoutEntry {
	e := wgpu.BindGroupLayoutEntry{Binding: n}
	e.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	return e
}

func TestRegisterIsIdempotentByKey(t *testing.T) {
	r := &Registry{entries: map[string]LayoutEntry{
		"obj": {Layout: nil, Bindings: []wgpu.BindGroupLayoutEntry{uniformBinding(0)}},
	}}

	// Second call with different bindings must be ignored entirely:
	// same key returns the same cached layout, bindings argument unused.
	got, err := r.Register("obj", []wgpu.BindGroupLayoutEntry{uniformBinding(0), samplerBinding(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("cached layout should be the pre-populated nil sentinel, got %v", got)
	}
	entry, _ := r.Lookup("obj")
	if len(entry.Bindings) != 1 {
		t.Fatalf("second Register call's bindings must be ignored: have %d bindings want 1", len(entry.Bindings))
	}
}

func TestRegisterRejectsEmptyBindings(t *testing.T) {
	r := &Registry{entries: map[string]LayoutEntry{}}
	if _, err := r.Register("empty", nil); !errors.Is(err, ErrEmptyBindings) {
		t.Fatalf("want ErrEmptyBindings, got %v", err)
	}
}

func TestAggregatePoolSizes(t *testing.T) {
	// {A: 2 uniforms}, {B: 3 uniforms, 1 sampler}, max_sets=10 ->
	// {uniform: 30, sampler: 10}.
	r := &Registry{entries: map[string]LayoutEntry{
		"A": {Bindings: []wgpu.BindGroupLayoutEntry{uniformBinding(0), uniformBinding(1)}},
		"B": {Bindings: []wgpu.BindGroupLayoutEntry{uniformBinding(0), uniformBinding(1), uniformBinding(2), samplerBinding(3)}},
	}}

	sizes := r.AggregatePoolSizes([]string{"A", "B"}, 10)
	if sizes[DescriptorTypeUniformBuffer] != 30 {
		t.Fatalf("uniform pool size: have %d want 30", sizes[DescriptorTypeUniformBuffer])
	}
	if sizes[DescriptorTypeSampler] != 10 {
		t.Fatalf("sampler pool size: have %d want 10", sizes[DescriptorTypeSampler])
	}
}

func TestPoolGrowthSequenceDoublesCapacity(t *testing.T) {
	// max_sets=3, allocate 4 sets -> pool grows once (capacity 3->6).
	p := &Pool{
		generations:   []*generation{{capacity: 3}},
		deviceCeiling: 100,
		setGen:        make(map[*wgpu.BindGroup]int),
	}

	for i := 0; i < 3; i++ {
		if idx := p.currentGenerationWithRoom(); idx != 0 {
			t.Fatalf("expected room in generation 0, got index %d", idx)
		}
		p.generations[0].allocated++
	}

	if idx := p.currentGenerationWithRoom(); idx != -1 {
		t.Fatalf("generation 0 should be full, currentGenerationWithRoom = %d", idx)
	}

	genIdx, err := p.grow()
	if err != nil {
		t.Fatalf("unexpected error growing: %v", err)
	}
	if genIdx != 1 {
		t.Fatalf("grow should append generation 1, got %d", genIdx)
	}
	if got := p.totalCapacity(); got != 6 {
		t.Fatalf("total capacity after growth: have %d want 6", got)
	}
	p.generations[1].allocated++
	if got := p.totalAllocated(); got != 4 {
		t.Fatalf("total allocated: have %d want 4", got)
	}
}

func TestGrowFailsAtDeviceCeiling(t *testing.T) {
	p := &Pool{
		generations:   []*generation{{capacity: 10, allocated: 10}},
		deviceCeiling: 10,
	}
	if _, err := p.grow(); !errors.Is(err, ErrDescriptorPoolExhausted) {
		t.Fatalf("want ErrDescriptorPoolExhausted, got %v", err)
	}
}

func TestGrowClampsToDeviceCeiling(t *testing.T) {
	p := &Pool{
		generations:   []*generation{{capacity: 8, allocated: 8}},
		deviceCeiling: 10,
	}
	if _, err := p.grow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.totalCapacity(); got != 10 {
		t.Fatalf("capacity should clamp to device ceiling: have %d want 10", got)
	}
}

func TestFreeUsesTrackedGenerationNotEveryPool(t *testing.T) {
	set := &wgpu.BindGroup{}
	p := &Pool{
		generations: []*generation{{capacity: 3, allocated: 2}, {capacity: 3, allocated: 1}},
		setGen:      map[*wgpu.BindGroup]int{set: 1},
	}
	if err := freeWithoutRelease(p, set); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.generations[0].allocated != 2 {
		t.Fatalf("generation 0 allocated count must be untouched: have %d want 2", p.generations[0].allocated)
	}
	if p.generations[1].allocated != 0 {
		t.Fatalf("generation 1 allocated count should decrement: have %d want 0", p.generations[1].allocated)
	}
}

// freeWithoutRelease mirrors Pool.Free's bookkeeping without calling
// set.Release(), which would dereference the underlying wgpu object the
// test fixture above does not actually own.
func freeWithoutRelease(p *Pool, set *wgpu.BindGroup) error {
	genIdx, ok := p.setGen[set]
	if !ok {
		return errors.New("not tracked")
	}
	delete(p.setGen, set)
	p.generations[genIdx].allocated--
	return nil
}
