package batch

import "testing"

func identity() [16]float32 {
	return [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func TestAddInstanceGroupsByMeshMaterial(t *testing.T) {
	m := New(nil, nil, 8)

	id0, err := m.AddInstance(Static, identity(), 1, 2, [3]float32{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id1, err := m.AddInstance(Static, identity(), 1, 2, [3]float32{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := m.AddInstance(Static, identity(), 3, 4, [3]float32{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batches := m.Batches()
	key12 := BatchKey{MeshIndex: 1, MaterialIndex: 2}
	ids, ok := batches[key12]
	if !ok || len(ids) != 2 || ids[0] != id0 || ids[1] != id1 {
		t.Fatalf("batch (1,2): have %v want [%d %d]", ids, id0, id1)
	}

	key34 := BatchKey{MeshIndex: 3, MaterialIndex: 4}
	ids2, ok := batches[key34]
	if !ok || len(ids2) != 1 || ids2[0] != id2 {
		t.Fatalf("batch (3,4): have %v want [%d]", ids2, id2)
	}
}

func TestAddInstanceReturnsCapacityExceededAtLimit(t *testing.T) {
	m := New(nil, nil, 2)
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != ErrCapacityExceeded {
		t.Fatalf("AddInstance at capacity: have %v want ErrCapacityExceeded", err)
	}
}

func TestFinalizeStaticRejectsFurtherAddInstance(t *testing.T) {
	m := New(nil, nil, 8)
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.FinalizeStatic()

	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != ErrCapacityExceeded {
		t.Fatalf("AddInstance after FinalizeStatic: have %v want ErrCapacityExceeded", err)
	}
}

func TestUpdateTransformDemotesStaticToSemiStatic(t *testing.T) {
	m := New(nil, nil, 4)
	id, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.entries[id].tier != Static {
		t.Fatalf("instance should start Static")
	}

	newModel := identity()
	newModel[12] = 5 // translate x
	if err := m.UpdateTransform(id, newModel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.entries[id].tier != SemiStatic {
		t.Fatalf("instance tier after UpdateTransform: have %v want SemiStatic", m.entries[id].tier)
	}
	if m.entries[id].instance.Model != newModel {
		t.Fatalf("transform not updated")
	}
}

func TestUpdateTransformRejectsOutOfRangeID(t *testing.T) {
	m := New(nil, nil, 4)
	if err := m.UpdateTransform(0, identity()); err == nil {
		t.Fatalf("UpdateTransform on empty manager: want error, got nil")
	}
}

func TestClearResetsCPUTablesNotCapacity(t *testing.T) {
	m := New(nil, nil, 4)
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Clear()

	if m.Len() != 0 {
		t.Fatalf("Len after Clear: have %d want 0", m.Len())
	}
	if len(m.Batches()) != 0 {
		t.Fatalf("Batches after Clear: want empty map")
	}
	if m.capacity != 4 {
		t.Fatalf("capacity must survive Clear: have %d want 4", m.capacity)
	}

	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("AddInstance after Clear should succeed (not finalized): %v", err)
	}
}

func TestFlushDirtyNoopWhenNotUploaded(t *testing.T) {
	m := New(nil, nil, 4)
	id, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.UpdateTransform(id, identity()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := m.FlushDirty()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("FlushDirty before UploadToGPU: have %d want 0 (no buffers exist yet)", count)
	}
}

func TestBatchOrderFollowsFirstRegistration(t *testing.T) {
	m := New(nil, nil, 8)

	adds := []struct{ mesh, material uint32 }{
		{0, 0}, {1, 0}, {0, 0}, {1, 0}, {2, 5},
	}
	for _, a := range adds {
		if _, err := m.AddInstance(Static, identity(), a.mesh, a.material, [3]float32{}, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []BatchKey{
		{MeshIndex: 0, MaterialIndex: 0},
		{MeshIndex: 1, MaterialIndex: 0},
		{MeshIndex: 2, MaterialIndex: 5},
	}
	order := m.BatchOrder()
	if len(order) != len(want) {
		t.Fatalf("batch order length: have %d want %d", len(order), len(want))
	}
	for i, key := range want {
		if order[i] != key {
			t.Fatalf("batch order[%d]: have %+v want %+v", i, order[i], key)
		}
	}
}

func TestAddInstanceAssignsCullBatchAndInstanceIndices(t *testing.T) {
	m := New(nil, nil, 8)

	// Interleave two batches so batch ids and dense ids diverge.
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.AddInstance(Static, identity(), 1, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.AddInstance(Static, identity(), 0, 0, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantBatch := []uint32{0, 1, 0}
	for id, want := range wantBatch {
		c := m.entries[id].cull
		if c.InstanceIndex != uint32(id) {
			t.Fatalf("entry %d instance index: have %d want %d", id, c.InstanceIndex, id)
		}
		if c.BatchIndex != want {
			t.Fatalf("entry %d batch index: have %d want %d", id, c.BatchIndex, want)
		}
	}
}

func TestClearResetsBatchOrder(t *testing.T) {
	m := New(nil, nil, 4)
	if _, err := m.AddInstance(Static, identity(), 7, 7, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Clear()

	if len(m.BatchOrder()) != 0 {
		t.Fatalf("batch order after Clear: have %v want empty", m.BatchOrder())
	}
	if _, err := m.AddInstance(Static, identity(), 9, 9, [3]float32{}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := m.BatchOrder()
	if len(order) != 1 || order[0] != (BatchKey{MeshIndex: 9, MaterialIndex: 9}) {
		t.Fatalf("batch order after re-add: have %v", order)
	}
}

func TestInstanceDataMarshalsTo256ByteSlot(t *testing.T) {
	d := InstanceData{Model: identity()}
	d.Attributes[0] = [4]float32{1, 2, 3, 4}
	d.Attributes[11] = [4]float32{5, 6, 7, 8}

	buf := d.Marshal()
	if len(buf) != InstanceDataSize || InstanceDataSize != 256 {
		t.Fatalf("slot size: have %d want 256", len(buf))
	}
	// Model occupies bytes [0,64); the first attribute vector starts at 64
	// and the last ends exactly at the 256-byte stride boundary. 1.0f is
	// 0x3F800000 and 8.0f is 0x41000000, so the high byte of each
	// little-endian word carries the exponent.
	if buf[3] != 0x3F {
		t.Fatalf("model[0][0] at offset 0: have % x want high byte 3f", buf[0:4])
	}
	if buf[67] != 0x3F {
		t.Fatalf("attribute 0 x at offset 64: have % x want high byte 3f", buf[64:68])
	}
	if buf[255] != 0x41 {
		t.Fatalf("attribute 11 w at offset 252: have % x want high byte 41", buf[252:256])
	}
}
