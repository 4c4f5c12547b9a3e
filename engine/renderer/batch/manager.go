// Package batch implements CPU-side registration and GPU upload of static
// and semi-static render instances, grouped into (mesh, material) batches
// for indirect drawing by the render system.
//
// Dirty tracking uses a sparse index queue with bitset dedup; the queue is
// sorted and coalesced into contiguous runs at flush time so a handful of
// scattered updates stays a handful of buffer writes.
package batch

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/engine/renderer/buffer"
)

// Tier classifies how often an instance's transform is expected to change.
// Static instances are assumed fixed after FinalizeStatic; SemiStatic
// instances may be updated at any time via UpdateTransform.
type Tier int

const (
	Static Tier = iota
	SemiStatic
)

// ErrCapacityExceeded is returned by AddInstance once the manager's fixed
// capacity is reached, or by any AddInstance call after FinalizeStatic.
var ErrCapacityExceeded = errors.New("batch: capacity exceeded")

// BatchKey groups instances that share a draw call: one mesh bound with one
// material.
type BatchKey struct {
	MeshIndex     uint32
	MaterialIndex uint32
}

type entry struct {
	tier     Tier
	instance InstanceData
	cull     CullData
	key      BatchKey
}

// Manager owns the CPU registration table for static/semi-static instances
// and their GPU-side mirror buffers.
type Manager struct {
	mu sync.Mutex

	device *wgpu.Device
	queue  *wgpu.Queue

	capacity  uint32
	entries   []entry
	liveCount uint32

	// batches groups ids by (mesh, material); batchOrder records each key in
	// first-registration order so batch ids are stable and deterministic —
	// the culler's visible-index partitions and indirect commands are
	// addressed by this order.
	batches    map[BatchKey][]uint32
	batchOrder []BatchKey
	batchIndex map[BatchKey]uint32

	dirtyIndices []uint32
	dirtyBitset  []uint64

	finalized bool
	uploaded  bool

	instanceBuf *buffer.Buffer
	cullBuf     *buffer.Buffer
}

// New creates a Manager with a fixed instance capacity. capacity bounds the
// dense id space; AddInstance fails with ErrCapacityExceeded once it is
// reached.
func New(device *wgpu.Device, queue *wgpu.Queue, capacity uint32) *Manager {
	return &Manager{
		device:      device,
		queue:       queue,
		capacity:    capacity,
		entries:     make([]entry, capacity),
		batches:     make(map[BatchKey][]uint32),
		batchIndex:  make(map[BatchKey]uint32),
		dirtyBitset: make([]uint64, (capacity+63)/64),
	}
}

// AddInstance appends a new instance to the CPU-side table and returns its
// dense id. Returns ErrCapacityExceeded if the manager is at capacity or has
// already been finalized.
func (m *Manager) AddInstance(tier Tier, model [16]float32, mesh, material uint32, center [3]float32, radius float32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalized {
		return 0, ErrCapacityExceeded
	}
	if m.liveCount >= m.capacity {
		return 0, ErrCapacityExceeded
	}

	id := m.liveCount
	m.liveCount++

	key := BatchKey{MeshIndex: mesh, MaterialIndex: material}
	batchID, ok := m.batchIndex[key]
	if !ok {
		batchID = uint32(len(m.batchOrder))
		m.batchIndex[key] = batchID
		m.batchOrder = append(m.batchOrder, key)
	}

	m.entries[id] = entry{
		tier:     tier,
		instance: InstanceData{Model: model},
		cull: CullData{
			Center:        center,
			Radius:        radius,
			MeshIndex:     mesh,
			MaterialIndex: material,
			InstanceIndex: id,
			BatchIndex:    batchID,
		},
		key: key,
	}
	m.batches[key] = append(m.batches[key], id)

	if m.uploaded {
		m.enqueueDirty(id)
	}

	return id, nil
}

// UpdateTransform rewrites an instance's model matrix. If the instance was
// registered as Static, it is demoted to SemiStatic from this point on and a
// warning is logged — the transform write itself still
// succeeds.
func (m *Manager) UpdateTransform(id uint32, model [16]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id >= m.liveCount {
		return fmt.Errorf("batch: instance id %d out of range [0,%d)", id, m.liveCount)
	}

	e := &m.entries[id]
	if e.tier == Static {
		log.Printf("batch: UpdateTransform called on static instance %d, demoting to semi-static", id)
		e.tier = SemiStatic
	}
	e.instance.Model = model
	m.enqueueDirty(id)
	return nil
}

// FinalizeStatic freezes the manager's id space: no further AddInstance
// calls are accepted afterward.
func (m *Manager) FinalizeStatic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
}

// Finalized reports whether FinalizeStatic has been called. The culler only
// dispatches over a finalized static tier — an unfinalized table may still
// grow, which would race the cull records already uploaded.
func (m *Manager) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// UploadToGPU creates the device-local instance/cull buffers and writes the
// full CPU table into them, clearing the dirty set. Safe to call again
// after Clear.
func (m *Manager) UploadToGPU() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	instBytes := make([]byte, int(m.capacity)*InstanceDataSize)
	cullBytes := make([]byte, int(m.capacity)*CullDataSize)
	for i := uint32(0); i < m.liveCount; i++ {
		copy(instBytes[int(i)*InstanceDataSize:], m.entries[i].instance.Marshal())
		copy(cullBytes[int(i)*CullDataSize:], m.entries[i].cull.Marshal())
	}

	instBuf, err := buffer.New(m.device, m.queue, "batch-instance-data", uint64(len(instBytes)), wgpu.BufferUsageStorage, true)
	if err != nil {
		return fmt.Errorf("batch: create instance buffer: %w", err)
	}
	if err := instBuf.Write(0, instBytes); err != nil {
		return fmt.Errorf("batch: stage instance data: %w", err)
	}

	cullBuf, err := buffer.New(m.device, m.queue, "batch-cull-data", uint64(len(cullBytes)), wgpu.BufferUsageStorage, true)
	if err != nil {
		return fmt.Errorf("batch: create cull buffer: %w", err)
	}
	if err := cullBuf.Write(0, cullBytes); err != nil {
		return fmt.Errorf("batch: stage cull data: %w", err)
	}

	m.instanceBuf = instBuf
	m.cullBuf = cullBuf
	m.uploaded = true
	m.dirtyIndices = m.dirtyIndices[:0]
	for i := range m.dirtyBitset {
		m.dirtyBitset[i] = 0
	}
	return nil
}

// FlushDirty stages a partial update for every instance mutated since the
// last flush, coalescing adjacent ids into contiguous writes. Returns the
// number of instances flushed.
func (m *Manager) FlushDirty() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.dirtyIndices) == 0 || !m.uploaded {
		return 0, nil
	}

	sortUint32(m.dirtyIndices)
	count := uint32(len(m.dirtyIndices))

	runStart := m.dirtyIndices[0]
	runEnd := runStart + 1
	for i := 1; i < len(m.dirtyIndices); i++ {
		idx := m.dirtyIndices[i]
		if idx == runEnd {
			runEnd++
		} else {
			if err := m.flushRange(runStart, runEnd); err != nil {
				return 0, err
			}
			runStart = idx
			runEnd = idx + 1
		}
	}
	if err := m.flushRange(runStart, runEnd); err != nil {
		return 0, err
	}

	m.dirtyIndices = m.dirtyIndices[:0]
	for i := range m.dirtyBitset {
		m.dirtyBitset[i] = 0
	}
	return count, nil
}

func (m *Manager) flushRange(start, end uint32) error {
	instOff := uint64(start) * InstanceDataSize
	instData := make([]byte, 0, (end-start)*InstanceDataSize)
	cullData := make([]byte, 0, (end-start)*CullDataSize)
	for i := start; i < end; i++ {
		instData = append(instData, m.entries[i].instance.Marshal()...)
		cullData = append(cullData, m.entries[i].cull.Marshal()...)
	}
	if err := m.instanceBuf.Write(instOff, instData); err != nil {
		return fmt.Errorf("batch: flush instance range [%d,%d): %w", start, end, err)
	}
	cullOff := uint64(start) * CullDataSize
	if err := m.cullBuf.Write(cullOff, cullData); err != nil {
		return fmt.Errorf("batch: flush cull range [%d,%d): %w", start, end, err)
	}
	return nil
}

// Clear empties the CPU tables and releases the GPU buffers, resetting the
// manager to its pre-upload state. Ids restart at 0; the capacity and the
// finalized flag are NOT reset.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.liveCount = 0
	m.entries = make([]entry, m.capacity)
	m.batches = make(map[BatchKey][]uint32)
	m.batchOrder = nil
	m.batchIndex = make(map[BatchKey]uint32)
	m.dirtyIndices = m.dirtyIndices[:0]
	for i := range m.dirtyBitset {
		m.dirtyBitset[i] = 0
	}
	if m.instanceBuf != nil {
		m.instanceBuf.Release()
		m.instanceBuf = nil
	}
	if m.cullBuf != nil {
		m.cullBuf.Release()
		m.cullBuf = nil
	}
	m.uploaded = false
}

// Batches returns the current (mesh, material) -> instance id grouping.
// Callers must not mutate the returned slices.
func (m *Manager) Batches() map[BatchKey][]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// BatchOrder returns the batch keys in first-registration order. The i-th
// key is batch id i everywhere batch-indexed GPU data is addressed
// (visible-index partitions, per-batch counters, indirect commands).
// Callers must not mutate the returned slice.
func (m *Manager) BatchOrder() []BatchKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchOrder
}

// InstanceBuffer returns the device-local instance-data buffer, or nil if
// UploadToGPU has not been called.
func (m *Manager) InstanceBuffer() *buffer.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instanceBuf
}

// CullBuffer returns the device-local cull-data buffer, or nil if
// UploadToGPU has not been called.
func (m *Manager) CullBuffer() *buffer.Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cullBuf
}

// Len returns the number of registered instances.
func (m *Manager) Len() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveCount
}

// enqueueDirty adds an instance index to the dirty queue if not already
// present. Caller must hold m.mu.
func (m *Manager) enqueueDirty(index uint32) {
	word := index / 64
	bit := uint64(1) << (index % 64)
	if m.dirtyBitset[word]&bit != 0 {
		return
	}
	m.dirtyBitset[word] |= bit
	m.dirtyIndices = append(m.dirtyIndices, index)
}

func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		key := s[i]
		j := i - 1
		for j >= 0 && s[j] > key {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = key
	}
}
