package cull

import (
	"encoding/binary"
	"math"
)

// FrustumPlane is one view-frustum plane: unit normal + signed distance
// from origin. 16 bytes, std430 aligned (vec3 + f32).
type FrustumPlane struct {
	Normal   [3]float32
	Distance float32
}

func (p *FrustumPlane) marshalInto(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.Normal[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.Normal[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(p.Normal[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(p.Distance))
}

// FrustumUniformSize is the byte size of FrustumUniform's GPU layout: 6 ×
// vec4 planes (96 B) + object-count + batch-count + max-per-batch + 4 B
// pad = 112 B, std140-aligned.
const FrustumUniformSize = 112

// FrustumUniform is the per-frame culling uniform: the six frustum planes
// plus the counts the compute shader needs to bound its work and address
// its output arrays.
type FrustumUniform struct {
	Planes      [6]FrustumPlane
	ObjectCount uint32
	BatchCount  uint32
	MaxPerBatch uint32
}

// Marshal serializes FrustumUniform into its 112-byte GPU layout.
func (f *FrustumUniform) Marshal() []byte {
	buf := make([]byte, FrustumUniformSize)
	off := 0
	for i := range f.Planes {
		f.Planes[i].marshalInto(buf[off : off+16])
		off += 16
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], f.ObjectCount)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], f.BatchCount)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], f.MaxPerBatch)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], 0) // pad
	return buf
}

// CullRecordSize is the byte size of one CullRecord: bounding sphere (16
// B) + mesh-index (4 B) + material-index (4 B) + instance-index (4 B) +
// batch-index (4 B, the record's reserved word repurposed as the batch
// route) = 32 B, std140-compatible.
const CullRecordSize = 32

// CullRecord is one registered instance's cull input: its bounding sphere
// and the identifiers the culling shader needs to route a visible index
// to the right batch and draw call. BatchIndex is assigned CPU-side at
// registration so the shader never has to reverse a (mesh, material) key.
type CullRecord struct {
	Center        [3]float32
	Radius        float32
	MeshIndex     uint32
	MaterialIndex uint32
	InstanceIndex uint32
	BatchIndex    uint32
}

// Marshal serializes CullRecord into its 32-byte GPU layout.
func (c *CullRecord) Marshal() []byte {
	buf := make([]byte, CullRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(c.Center[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(c.Center[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(c.Center[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(c.Radius))
	binary.LittleEndian.PutUint32(buf[16:20], c.MeshIndex)
	binary.LittleEndian.PutUint32(buf[20:24], c.MaterialIndex)
	binary.LittleEndian.PutUint32(buf[24:28], c.InstanceIndex)
	binary.LittleEndian.PutUint32(buf[28:32], c.BatchIndex)
	return buf
}

// IndirectCommandSize is the byte size of one non-indexed indirect draw
// command: vertex-count, instance-count, first-vertex, first-instance (4
// × 4 B = 16 B, wgpu's DrawIndirectArgs layout).
const IndirectCommandSize = 16

// IndirectCommand is one batch's indirect draw arguments. InstanceCount
// is written by the culling shader; FirstInstance is precomputed per
// batch as batch-id × max-objects-per-batch.
type IndirectCommand struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// Marshal serializes IndirectCommand into its 16-byte GPU layout.
func (c *IndirectCommand) Marshal() []byte {
	buf := make([]byte, IndirectCommandSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:8], c.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], c.FirstVertex)
	binary.LittleEndian.PutUint32(buf[12:16], c.FirstInstance)
	return buf
}

// IndexedIndirectCommandSize is the byte size of the indexed indirect
// draw variant.
const IndexedIndirectCommandSize = 20

// IndexedIndirectCommand is the indexed-draw variant of IndirectCommand,
// adding index-count/first-index/vertex-offset.
type IndexedIndirectCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// Marshal serializes IndexedIndirectCommand into its 20-byte GPU layout.
func (c *IndexedIndirectCommand) Marshal() []byte {
	buf := make([]byte, IndexedIndirectCommandSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:8], c.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:12], c.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(c.BaseVertex))
	binary.LittleEndian.PutUint32(buf[16:20], c.FirstInstance)
	return buf
}
