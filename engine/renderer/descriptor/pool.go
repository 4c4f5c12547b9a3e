package descriptor

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrDescriptorPoolExhausted is returned by Allocate when capacity is
// already at the device ceiling and no further growth is possible.
var ErrDescriptorPoolExhausted = errors.New("descriptor: pool exhausted at device ceiling")

// generation is one growth step's capacity ledger. WebGPU has no
// VkDescriptorPool object to allocate from — device.CreateBindGroup
// allocates directly — so a generation exists purely to account for how
// many sets have been handed out against this capacity step, mirroring
// the Vulkan pool-array's "earlier pools are never freed while any set
// allocated from them is live" invariant in spirit (here: earlier
// generations' accounting never shrinks or is renumbered).
type generation struct {
	capacity  int
	allocated int
}

// Pool is the growable allocation ledger standing in for a descriptor
// pool manager on APIs that have one. It gates every bind-group creation
// through a capacity-doubling ledger and emits the exhaustion/warning
// behavior a real pool array would.
type Pool struct {
	mu sync.Mutex

	device *wgpu.Device
	layout *Registry

	keys            []string
	poolSizes       map[DescriptorType]int
	deviceCeiling   int
	generations     []*generation
	warned75        bool
	warned90        bool

	// setGen maps an allocated bind group to the generation index it was
	// allocated against, resolving the "free_set tries every pool" open
	// question with an explicit set→generation map instead.
	setGen map[*wgpu.BindGroup]int
}

// NewPool creates a pool manager bound to device and layout registry, with
// the given device ceiling (maximum total capacity the pool may ever grow
// to — a stand-in for maxBoundDescriptorSets-style device limits).
func NewPool(device *wgpu.Device, layout *Registry, deviceCeiling int) *Pool {
	return &Pool{
		device:        device,
		layout:        layout,
		deviceCeiling: deviceCeiling,
		setGen:        make(map[*wgpu.BindGroup]int),
	}
}

// Build destroys any existing generations and starts a single generation
// sized for initialCapacity sets across keys' aggregated binding types.
// The aggregated pool sizes themselves are informational bookkeeping here
// (WebGPU's CreateBindGroup doesn't consume from a fixed-size descriptor
// table), kept so callers and tests can inspect the sizing a real
// descriptor pool would be built with.
func (p *Pool) Build(keys []string, initialCapacity int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append([]string(nil), keys...)
	p.poolSizes = p.layout.AggregatePoolSizes(keys, initialCapacity)
	p.generations = []*generation{{capacity: initialCapacity}}
	p.warned75 = false
	p.warned90 = false
	p.setGen = make(map[*wgpu.BindGroup]int)
}

// totalCapacity and totalAllocated sum across all generations. Must be
// called with p.mu held.
func (p *Pool) totalCapacity() int {
	total := 0
	for _, g := range p.generations {
		total += g.capacity
	}
	return total
}

func (p *Pool) totalAllocated() int {
	total := 0
	for _, g := range p.generations {
		total += g.allocated
	}
	return total
}

// Allocate creates a bind group for key's layout using entries, growing
// the pool if the current generation set is at capacity. Growth doubles
// current total capacity (clamped to the device ceiling); if already at
// ceiling, fails with ErrDescriptorPoolExhausted.
func (p *Pool) Allocate(key string, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.layout.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("descriptor: allocate: layout key %q not registered", key)
	}

	genIdx := p.currentGenerationWithRoom()
	if genIdx < 0 {
		var err error
		genIdx, err = p.grow()
		if err != nil {
			return nil, err
		}
	}

	bindGroup, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   key + " Bind Group",
		Layout:  entry.Layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("descriptor: allocate %q: %w", key, err)
	}

	p.generations[genIdx].allocated++
	p.setGen[bindGroup] = genIdx
	p.emitCapacityWarnings()

	return bindGroup, nil
}

// currentGenerationWithRoom returns the index of the newest generation
// that still has free capacity, or -1 if all are full. Must be called
// with p.mu held.
func (p *Pool) currentGenerationWithRoom() int {
	for i := len(p.generations) - 1; i >= 0; i-- {
		if p.generations[i].allocated < p.generations[i].capacity {
			return i
		}
	}
	return -1
}

// grow appends a new generation sized to double the current total
// capacity, clamped to the device ceiling, and returns its index. Must be
// called with p.mu held.
func (p *Pool) grow() (int, error) {
	current := p.totalCapacity()
	if current >= p.deviceCeiling {
		return -1, fmt.Errorf("%w: capacity %d at ceiling %d", ErrDescriptorPoolExhausted, current, p.deviceCeiling)
	}

	newTotal := current * 2
	if newTotal > p.deviceCeiling {
		newTotal = p.deviceCeiling
	}
	added := newTotal - current

	g := &generation{capacity: added}
	p.generations = append(p.generations, g)
	p.warned75 = false
	p.warned90 = false

	return len(p.generations) - 1, nil
}

// emitCapacityWarnings logs once when usage first crosses 75% and once at
// 90%, resetting both flags on growth (so the next generation gets its own
// pair of warnings). Must be called with p.mu held.
func (p *Pool) emitCapacityWarnings() {
	total := p.totalCapacity()
	if total == 0 {
		return
	}
	allocated := p.totalAllocated()
	usage := float64(allocated) / float64(total)

	if !p.warned90 && usage >= 0.90 {
		log.Printf("descriptor: pool usage at %.0f%% (%d/%d)", usage*100, allocated, total)
		p.warned90 = true
		p.warned75 = true
		return
	}
	if !p.warned75 && usage >= 0.75 {
		log.Printf("descriptor: pool usage at %.0f%% (%d/%d)", usage*100, allocated, total)
		p.warned75 = true
	}
}

// Free releases set and decrements the allocated count of the single
// generation it was allocated from, resolved via the explicit set→
// generation map rather than probing every generation.
func (p *Pool) Free(set *wgpu.BindGroup) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	genIdx, ok := p.setGen[set]
	if !ok {
		return fmt.Errorf("descriptor: free: bind group not tracked by this pool")
	}

	set.Release()
	delete(p.setGen, set)
	p.generations[genIdx].allocated--

	return nil
}

// Capacity returns the current total capacity across all generations.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCapacity()
}

// Allocated returns the current total allocated count across all
// generations.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalAllocated()
}

// Generations returns the capacity of each generation in growth order, for
// tests that assert on the capacity-doubling sequence.
func (p *Pool) Generations() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.generations))
	for i, g := range p.generations {
		out[i] = g.capacity
	}
	return out
}
