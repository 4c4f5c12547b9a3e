// Package cull implements the GPU-driven multi-batch frustum culler: a
// compute pass that writes per-batch visible-index lists and indirect draw
// commands from a frustum test against each instance's bounding sphere,
// with zero CPU readback on the hot path. All batches are processed by a
// single dispatch, routed by each cull record's batch index.
package cull

import (
	_ "embed"
	"fmt"
)

//go:embed assets/cull.wgsl
var ShaderSource string

// sphereOutsidePlane reports whether the sphere is fully outside plane,
// i.e. signed distance <= -radius.
func sphereOutsidePlane(center [3]float32, radius float32, p FrustumPlane) bool {
	d := p.Normal[0]*center[0] + p.Normal[1]*center[1] + p.Normal[2]*center[2] + p.Distance
	return d <= -radius
}

// Visible reports whether a bounding sphere survives all six frustum
// planes — visible iff it is not fully outside any single plane.
func Visible(center [3]float32, radius float32, planes [6]FrustumPlane) bool {
	for _, p := range planes {
		if sphereOutsidePlane(center, radius, p) {
			return false
		}
	}
	return true
}

// Result is the CPU-observable outcome of a cull dispatch: per-batch
// visible-index lists (capped at maxObjectsPerBatch by the overflow
// clamp), per-batch counters (which may exceed the capped list length —
// the atomic already incremented before the write was suppressed), and
// the global counter.
type Result struct {
	VisibleIndices [][]uint32
	PerBatchCounts []uint32
	Global         uint32
}

// Dispatch runs the reference (CPU-side) simulation of the culling
// shader's per-object logic against records, grouped into batchCount
// batches by batchOf, each batch capped at maxObjectsPerBatch. It exists
// so the clamping/counting invariants are checkable independent
// of an actual compute dispatch — production draw issuance never reads
// these results back; it binds the GPU-side buffers this same algorithm
// populates on the device and issues indirect draws straight from them.
//
// Within a batch, visible order is nondeterministic on real hardware
// (atomic fetch-add); this simulation assigns local indices in input
// order, which is A valid ordering, not THE ordering — callers must not
// depend on it.
func Dispatch(records []CullRecord, planes [6]FrustumPlane, batchCount int, maxObjectsPerBatch uint32, batchOf func(CullRecord) uint32) (Result, error) {
	if batchCount <= 0 {
		return Result{}, fmt.Errorf("cull: batchCount must be > 0, got %d", batchCount)
	}

	res := Result{
		VisibleIndices: make([][]uint32, batchCount),
		PerBatchCounts: make([]uint32, batchCount),
	}

	for i, rec := range records {
		if !Visible(rec.Center, rec.Radius, planes) {
			continue
		}

		batch := batchOf(rec)
		if int(batch) >= batchCount {
			return Result{}, fmt.Errorf("cull: record %d maps to batch %d, out of range [0,%d)", i, batch, batchCount)
		}

		local := res.PerBatchCounts[batch]
		res.PerBatchCounts[batch]++
		res.Global++

		if local < maxObjectsPerBatch {
			res.VisibleIndices[batch] = append(res.VisibleIndices[batch], uint32(i))
		}
		// else: overflow policy — the atomic already incremented above
		// (PerBatchCounts reports the uncapped total), the write is
		// suppressed. This is a clamping policy, not an error.
	}

	return res, nil
}

// ClampedInstanceCount returns the instance-count indirect draws should
// use for a batch: min(counted visible, maxObjectsPerBatch) — the value
// the real shader would leave in the indirect command's InstanceCount
// field.
func ClampedInstanceCount(counted, maxObjectsPerBatch uint32) uint32 {
	if counted > maxObjectsPerBatch {
		return maxObjectsPerBatch
	}
	return counted
}
