package common

import (
	"math"
	"testing"
)

func TestMul4Identity(t *testing.T) {
	a := []float32{
		2, 0, 0, 0,
		0, 3, 0, 0,
		0, 0, 4, 0,
		5, 6, 7, 1,
	}
	var id, out [16]float32
	Identity(id[:])
	Mul4(out[:], a, id[:])

	for i := range 16 {
		if out[i] != a[i] {
			t.Fatalf("out[%d]: have %v want %v", i, out[i], a[i])
		}
	}
}

func TestBuildModelMatrixTranslationOnly(t *testing.T) {
	var m [16]float32
	BuildModelMatrix(m[:], 1, 2, 3, 0, 0, 0, 1, 1, 1)

	if m[12] != 1 || m[13] != 2 || m[14] != 3 {
		t.Fatalf("translation column: have (%v %v %v) want (1 2 3)", m[12], m[13], m[14])
	}
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Fatalf("rotation-free diagonal should stay identity: %v", m)
	}
}

func TestLookAtPlacesEyeAtViewOrigin(t *testing.T) {
	var v [16]float32
	LookAt(v[:], 0, 0, 10, 0, 0, 0, 0, 1, 0)

	// view * (eye, 1) must land at the origin.
	x := v[0]*0 + v[4]*0 + v[8]*10 + v[12]
	y := v[1]*0 + v[5]*0 + v[9]*10 + v[13]
	z := v[2]*0 + v[6]*0 + v[10]*10 + v[14]
	if !near(x, 0) || !near(y, 0) || !near(z, 0) {
		t.Fatalf("eye in view space: have (%v %v %v) want origin", x, y, z)
	}
}

func TestPerspectiveIsRightHanded(t *testing.T) {
	var p [16]float32
	Perspective(p[:], math.Pi/2, 1, 0.1, 100)
	if p[11] != -1 {
		t.Fatalf("perspective w row: have %v want -1", p[11])
	}
}

func TestExtractFrustumFromIdentity(t *testing.T) {
	var id [16]float32
	Identity(id[:])
	f := ExtractFrustumFromMatrix(id[:])

	// For the identity matrix the left plane is x + 1 >= 0 and the right
	// plane is -x + 1 >= 0, both already unit length.
	left, right := f.Planes[0], f.Planes[1]
	if left.Normal != [3]float32{1, 0, 0} || !near(left.Distance, 1) {
		t.Fatalf("left plane: have %+v", left)
	}
	if right.Normal != [3]float32{-1, 0, 0} || !near(right.Distance, 1) {
		t.Fatalf("right plane: have %+v", right)
	}
}

func TestExtractFrustumNormalizesPlanes(t *testing.T) {
	var p, v, vp [16]float32
	Perspective(p[:], 1.2, 16.0/9.0, 0.1, 500)
	LookAt(v[:], 3, 4, 5, 0, 0, 0, 0, 1, 0)
	Mul4(vp[:], p[:], v[:])

	f := ExtractFrustumFromMatrix(vp[:])
	for i, pl := range f.Planes {
		n := pl.Normal
		length := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
		if !near(length, 1) {
			t.Fatalf("plane %d normal length: have %v want 1", i, length)
		}
	}
}

func near(have, want float32) bool {
	return float32(math.Abs(float64(have-want))) < 1e-4
}
