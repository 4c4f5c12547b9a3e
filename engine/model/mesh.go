// Package model holds the mesh-side data the rendering core consumes:
// vertex records in the pipeline vertex layout, and their GPU upload. Mesh
// parsing (glTF or otherwise) is an external collaborator's job — this
// package accepts already-extracted vertex and index arrays.
package model

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/vertexforge/engine/engine/renderer/buffer"
)

// VertexSize is the byte stride of one Vertex: 12 little-endian float32s.
const VertexSize = 48

// Vertex is one mesh vertex as the graphics pipelines consume it.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
	Color    [4]float32
}

// Bytes serializes vertices for GPU upload: little-endian IEEE 754
// binary32, fields in declaration order, VertexSize bytes per vertex.
func Bytes(vertices []Vertex) []byte {
	buf := make([]byte, 0, len(vertices)*VertexSize)
	put := func(v float32) {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	for _, vert := range vertices {
		for _, v := range vert.Position {
			put(v)
		}
		for _, v := range vert.Normal {
			put(v)
		}
		for _, v := range vert.UV {
			put(v)
		}
		for _, v := range vert.Color {
			put(v)
		}
	}
	return buf
}

// VertexLayout returns the vertex buffer layout matching Vertex, bound at
// slot 0 with shader locations 0-3.
func VertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: VertexSize,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
			{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: 3},
		},
	}
}

// Expand unrolls an indexed vertex array into the non-indexed form the
// batch tier draws with, so indirect commands stay the four-word
// non-indexed variant.
func Expand(vertices []Vertex, indices []uint32) ([]Vertex, error) {
	out := make([]Vertex, len(indices))
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, fmt.Errorf("model: index %d out of range for %d vertices", idx, len(vertices))
		}
		out[i] = vertices[idx]
	}
	return out, nil
}

// BoundingSphere returns the center and radius of a sphere enclosing the
// vertices, centered on their bounding-box midpoint.
func BoundingSphere(vertices []Vertex) (center [3]float32, radius float32) {
	if len(vertices) == 0 {
		return center, 0
	}
	lo, hi := vertices[0].Position, vertices[0].Position
	for _, v := range vertices[1:] {
		for i := range 3 {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	for i := range 3 {
		center[i] = (lo[i] + hi[i]) / 2
	}
	var maxSq float32
	for _, v := range vertices {
		var d float32
		for i := range 3 {
			e := v.Position[i] - center[i]
			d += e * e
		}
		maxSq = max(maxSq, d)
	}
	return center, float32(math.Sqrt(float64(maxSq)))
}

// Mesh is an uploaded, non-indexed vertex buffer.
type Mesh struct {
	buf         *buffer.Buffer
	vertexCount uint32
}

// Upload creates the mesh's GPU vertex buffer and writes vertices into it.
func Upload(device *wgpu.Device, queue *wgpu.Queue, label string, vertices []Vertex) (*Mesh, error) {
	data := Bytes(vertices)
	buf, err := buffer.New(device, queue, label, uint64(len(data)), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, false)
	if err != nil {
		return nil, fmt.Errorf("model: create vertex buffer: %w", err)
	}
	if err := buf.Write(0, data); err != nil {
		buf.Release()
		return nil, fmt.Errorf("model: write vertex buffer: %w", err)
	}
	return &Mesh{buf: buf, vertexCount: uint32(len(vertices))}, nil
}

// VertexBuffer returns the raw GPU buffer for binding at slot 0.
func (m *Mesh) VertexBuffer() *wgpu.Buffer { return m.buf.Raw() }

// VertexCount returns the number of vertices in the buffer.
func (m *Mesh) VertexCount() uint32 { return m.vertexCount }

// Release frees the mesh's GPU buffer.
func (m *Mesh) Release() { m.buf.Release() }
