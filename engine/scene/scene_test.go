package scene

import (
	"testing"

	"github.com/vertexforge/engine/engine/renderer/batch"
	"github.com/vertexforge/engine/engine/rendersystem"
)

func TestDynamicEvaluatesEmittersInOrder(t *testing.T) {
	l := NewList(nil)
	for i := range 4 {
		mesh := uint32(i)
		l.AddEmitter(Emitter{
			Mesh: mesh,
			At: func(elapsed float32) [16]float32 {
				var m [16]float32
				m[12] = elapsed
				return m
			},
		})
	}
	l.Update(2)

	out := l.Dynamic()
	if len(out) != 4 {
		t.Fatalf("dynamic count: have %d want 4", len(out))
	}
	for i, d := range out {
		if d.Mesh != uint32(i) {
			t.Fatalf("drawable %d: mesh %d out of order", i, d.Mesh)
		}
		if d.Tier != TierDynamic {
			t.Fatalf("drawable %d: tier %d, want dynamic", i, d.Tier)
		}
		if d.Transform[12] != 2 {
			t.Fatalf("drawable %d: transform not evaluated at elapsed time: %v", i, d.Transform[12])
		}
	}
}

func TestDynamicEmptyWithoutEmitters(t *testing.T) {
	l := NewList(nil)
	if out := l.Dynamic(); out != nil {
		t.Fatalf("expected nil, got %d drawables", len(out))
	}
}

func TestSetupFinalizesEvenWhenEmpty(t *testing.T) {
	// No statics: Setup must still finalize the tier (no upload, no cull
	// pipeline) so a later AddInstance is rejected.
	rs := &rendersystem.RenderSystem{Static: batch.New(nil, nil, 4)}
	l := NewList(nil)
	if err := l.Setup(rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rs.Static.Finalized() {
		t.Fatal("setup should finalize the static tier")
	}
	if _, err := rs.Static.AddInstance(batch.Static, [16]float32{}, 0, 0, [3]float32{}, 1); err == nil {
		t.Fatal("expected AddInstance after setup to be rejected")
	}
}

func TestSetupRunsOnce(t *testing.T) {
	rs := &rendersystem.RenderSystem{Static: batch.New(nil, nil, 4)}
	l := NewList(nil)
	if err := l.Setup(rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Setup(rs); err == nil {
		t.Fatal("expected second Setup to fail")
	}
}

func TestUpdateTransformRequiresSetup(t *testing.T) {
	rs := &rendersystem.RenderSystem{Static: batch.New(nil, nil, 4)}
	l := NewList(nil)
	l.AddStatic(Drawable{Tier: TierSemiStatic})
	if err := l.UpdateTransform(rs, 0, [16]float32{}); err == nil {
		t.Fatal("expected UpdateTransform before Setup to fail")
	}
}
