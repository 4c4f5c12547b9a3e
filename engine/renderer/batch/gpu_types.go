package batch

import (
	"encoding/binary"
	"math"
)

// InstanceDataSize is the byte size of one InstanceData slot: a 4x4 model
// matrix (64 B) plus 12 vec4 attribute vectors (192 B) = 256 B. The 256 B
// stride is a hard layout contract: a dynamic storage-buffer binding
// addresses slot i at byte offset i*256, and the config layer's
// device-limit clamp (max objects × 256 ≤ max storage binding size)
// assumes the same stride.
const InstanceDataSize = 256

// InstanceData is the per-instance GPU payload the vertex stage reads:
// the model matrix followed by twelve vec4 attribute vectors (per-instance
// material parameters, custom shader inputs — zero when unused, doubling
// as the pad that keeps the slot at its 256 B stride). Split from CullData
// so a cull dispatch that never touches vertex data stays a narrow buffer.
type InstanceData struct {
	Model      [16]float32
	Attributes [12][4]float32
}

// Marshal serializes InstanceData into its 256-byte GPU layout.
func (d *InstanceData) Marshal() []byte {
	buf := make([]byte, InstanceDataSize)
	for i, v := range d.Model {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	off := 64
	for _, vec := range d.Attributes {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
			off += 4
		}
	}
	return buf
}

// CullDataSize is the byte size of one CullData slot: bounding sphere (16
// B) + mesh-index (4 B) + material-index (4 B) + instance-index (4 B) +
// batch-index (4 B) = 32 B, bit-identical to cull.CullRecord's layout.
const CullDataSize = 32

// CullData is the per-instance payload the cull compute pass reads: the
// same shape as cull.CullRecord, duplicated here (rather than imported) so
// this package does not need to depend on renderer/cull for its own
// storage layout. InstanceIndex is the instance's dense id; BatchIndex is
// the registration-order index of its (mesh, material) batch, the value
// the culling shader uses to route the visible index.
type CullData struct {
	Center        [3]float32
	Radius        float32
	MeshIndex     uint32
	MaterialIndex uint32
	InstanceIndex uint32
	BatchIndex    uint32
}

// Marshal serializes CullData into its 32-byte GPU layout.
func (d *CullData) Marshal() []byte {
	buf := make([]byte, CullDataSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(d.Center[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(d.Center[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(d.Center[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(d.Radius))
	binary.LittleEndian.PutUint32(buf[16:20], d.MeshIndex)
	binary.LittleEndian.PutUint32(buf[20:24], d.MaterialIndex)
	binary.LittleEndian.PutUint32(buf[24:28], d.InstanceIndex)
	binary.LittleEndian.PutUint32(buf[28:32], d.BatchIndex)
	return buf
}
