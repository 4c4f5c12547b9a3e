// Package buffer provides a device-buffer wrapper with an optional CPU-side
// mirror for code paths that want host-visible, persistent-mapping semantics
// on top of WebGPU's write-only buffer API.
package buffer

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoSuitableUsage is returned when the requested usage combination is one
// the adapter cannot back with a single buffer object.
var ErrNoSuitableUsage = errors.New("buffer: no suitable memory type for requested usage")

// Buffer wraps a wgpu.Buffer and, for persistent buffers, a CPU-side mirror
// of its current contents.
//
// WebGPU has no notion of a buffer that stays mapped while the GPU can
// reference it, so "persistent mapping" here is a CPU abstraction: the
// mirror slice is kept in lockstep with every Write call via queue.WriteBuffer,
// rather than through GetMappedRange/Unmap (cogentcore/webgpu's buffer
// lifecycle, as used throughout this engine, never calls either).
type Buffer struct {
	device *wgpu.Device
	queue  *wgpu.Queue

	raw   *wgpu.Buffer
	usage wgpu.BufferUsage
	size  uint64

	persistent bool
	mirror     []byte
}

// New creates a device buffer of size bytes with the given usage flags.
// CopyDst is added automatically since every write path goes through
// queue.WriteBuffer. If persistent is true, a CPU-side mirror the size of
// the buffer is allocated and kept up to date by Write.
func New(device *wgpu.Device, queue *wgpu.Queue, label string, size uint64, usage wgpu.BufferUsage, persistent bool) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer %q: size must be > 0", label)
	}

	raw, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSuitableUsage, err)
	}

	b := &Buffer{
		device:     device,
		queue:      queue,
		raw:        raw,
		usage:      usage,
		size:       size,
		persistent: persistent,
	}
	if persistent {
		b.mirror = make([]byte, size)
	}
	return b, nil
}

// Raw returns the underlying wgpu.Buffer for binding into a bind group or
// command encoder call.
func (b *Buffer) Raw() *wgpu.Buffer { return b.raw }

// Size returns the buffer's byte size.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the buffer's usage flags.
func (b *Buffer) Usage() wgpu.BufferUsage { return b.usage }

// Mapped returns the CPU-side mirror for a persistent buffer, or nil if the
// buffer was created non-persistent. Callers may read it directly; writes
// must go through Write so the GPU copy stays coherent.
func (b *Buffer) Mapped() []byte {
	if !b.persistent {
		return nil
	}
	return b.mirror
}

// Write copies data into the buffer at the given byte offset, updating the
// CPU mirror (if persistent) and issuing the matching queue.WriteBuffer in
// the same call.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("buffer: write of %d bytes at offset %d exceeds size %d", len(data), offset, b.size)
	}
	if b.persistent {
		copy(b.mirror[offset:], data)
	}
	b.queue.WriteBuffer(b.raw, offset, data)
	return nil
}

// Map returns the CPU mirror for a non-persistent caller-managed mapping
// window. Persistent buffers are mapped for their whole lifetime and
// reject explicit Map calls.
func (b *Buffer) Map() ([]byte, error) {
	if b.persistent {
		return nil, errors.New("buffer: explicit Map on a persistently mapped buffer")
	}
	if b.mirror == nil {
		b.mirror = make([]byte, b.size)
	}
	return b.mirror, nil
}

// Unmap ends an explicit Map window, writing the mirror back to the GPU.
// Persistent buffers reject it for the same reason they reject Map.
func (b *Buffer) Unmap() error {
	if b.persistent {
		return errors.New("buffer: explicit Unmap on a persistently mapped buffer")
	}
	if b.mirror != nil {
		b.queue.WriteBuffer(b.raw, 0, b.mirror)
		b.mirror = nil
	}
	return nil
}

// Flush is a no-op: every Write already reaches the GPU through
// queue.WriteBuffer, the coherent path. Kept callable so staging code can
// be written against the usual map/flush contract.
func (b *Buffer) Flush(offset, size uint64) {}

// Invalidate is a no-op for the same reason as Flush.
func (b *Buffer) Invalidate(offset, size uint64) {}

// Release frees the underlying GPU object, matching this engine's uniform
// cleanup convention for wgpu resources.
func (b *Buffer) Release() {
	if b.raw != nil {
		b.raw.Release()
		b.raw = nil
	}
	b.mirror = nil
}
