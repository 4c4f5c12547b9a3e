// Package ring implements the per-frame-in-flight ring buffer: a single
// persistently-mapped device buffer partitioned into one region per frame
// slot, so CPU writes for frame N never alias the region the GPU may still
// be reading for frame N-F.
package ring

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/engine/renderer/buffer"
)

// Ring is a frame-partitioned persistent buffer. FramePtr and Write index
// into it by frame slot and element, never by raw byte offset, so callers
// cannot accidentally straddle two frames' regions.
type Ring struct {
	buf *buffer.Buffer

	frames          int
	elementsPerFrame int
	elementSize     int
	frameSize       uint64
}

// New creates a ring sized frames × elementsPerFrame × elementSize bytes,
// backed by a single persistent buffer with the given usage flags (CopyDst
// is added automatically by buffer.New).
func New(device *wgpu.Device, queue *wgpu.Queue, label string, frames, elementsPerFrame, elementSize int, usage wgpu.BufferUsage) (*Ring, error) {
	if frames <= 0 || elementsPerFrame <= 0 || elementSize <= 0 {
		return nil, fmt.Errorf("ring %q: frames, elementsPerFrame, elementSize must all be > 0", label)
	}

	frameSize := uint64(elementsPerFrame) * uint64(elementSize)
	total := uint64(frames) * frameSize

	buf, err := buffer.New(device, queue, label, total, usage, true)
	if err != nil {
		return nil, fmt.Errorf("ring %q: %w", label, err)
	}

	return &Ring{
		buf:              buf,
		frames:           frames,
		elementsPerFrame: elementsPerFrame,
		elementSize:      elementSize,
		frameSize:        frameSize,
	}, nil
}

// FrameOffset returns the byte offset of frame f's region within the ring's
// buffer. Invariant: FrameOffset(f) + frameSize <= total size for all
// f < frames.
func (r *Ring) FrameOffset(f int) uint64 {
	return uint64(f) * r.frameSize
}

// FrameSize returns the byte size of one frame's region.
func (r *Ring) FrameSize() uint64 { return r.frameSize }

// ElementsPerFrame returns the number of elements each frame's region
// holds, i.e. the per-frame submission budget.
func (r *Ring) ElementsPerFrame() int { return r.elementsPerFrame }

// FramePtr returns the CPU-mirror byte slice for frame f's region. Only
// mapped access is supported — there is no separate staged-upload path for
// ring data.
func (r *Ring) FramePtr(f int) []byte {
	off := r.FrameOffset(f)
	return r.buf.Mapped()[off : off+r.frameSize]
}

// Write writes data at elementIndex within frame f's region. The caller
// passes the current frame index explicitly; the ring never advances on its
// own (the Frame Loop owns frame sequencing).
func (r *Ring) Write(f, elementIndex int, data []byte) error {
	if f < 0 || f >= r.frames {
		return fmt.Errorf("ring: frame index %d out of range [0,%d)", f, r.frames)
	}
	if elementIndex < 0 || elementIndex >= r.elementsPerFrame {
		return fmt.Errorf("ring: element index %d out of range [0,%d)", elementIndex, r.elementsPerFrame)
	}
	if len(data) > r.elementSize {
		return fmt.Errorf("ring: write of %d bytes exceeds element size %d", len(data), r.elementSize)
	}
	offset := r.FrameOffset(f) + uint64(elementIndex)*uint64(r.elementSize)
	return r.buf.Write(offset, data)
}

// Raw returns the underlying wgpu.Buffer for binding into a bind group.
func (r *Ring) Raw() *wgpu.Buffer { return r.buf.Raw() }

// Release frees the underlying buffer.
func (r *Ring) Release() { r.buf.Release() }
