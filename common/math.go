// Package common holds the small column-major matrix and frustum toolkit
// shared by the camera, render system, and culler. All matrices are flat
// [16]float32 slices in column-major order (WebGPU convention): element
// (row, col) lives at index col*4 + row.
package common

import (
	"math"
)

// Identity writes the 4x4 identity into m.
func Identity(m []float32) {
	for i := range 16 {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 stores a * b into out. out must not alias a or b.
func Mul4(out, a, b []float32) {
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
}

// Perspective writes a right-handed perspective projection with a [0, 1]
// depth range into out.
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := float32(1.0 / math.Tan(float64(fovY)/2))
	Identity(out)
	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1
	out[14] = near * far / (near - far)
	out[15] = 0
}

// Orthographic writes a right-handed orthographic projection with a [0, 1]
// depth range into out. halfExtent is half the vertical view height; the
// horizontal half-extent is halfExtent * aspect.
func Orthographic(out []float32, halfExtent, aspect, near, far float32) {
	Identity(out)
	out[0] = 1 / (halfExtent * aspect)
	out[5] = 1 / halfExtent
	out[10] = 1 / (near - far)
	out[14] = near / (near - far)
}

// LookAt writes a right-handed view matrix into out.
func LookAt(out []float32, eyeX, eyeY, eyeZ, centerX, centerY, centerZ, upX, upY, upZ float32) {
	fwd := normalize3([3]float32{centerX - eyeX, centerY - eyeY, centerZ - eyeZ})
	right := normalize3(cross3(fwd, [3]float32{upX, upY, upZ}))
	up := cross3(right, fwd)

	Identity(out)
	out[0], out[4], out[8] = right[0], right[1], right[2]
	out[1], out[5], out[9] = up[0], up[1], up[2]
	out[2], out[6], out[10] = -fwd[0], -fwd[1], -fwd[2]
	out[12] = -(right[0]*eyeX + right[1]*eyeY + right[2]*eyeZ)
	out[13] = -(up[0]*eyeX + up[1]*eyeY + up[2]*eyeZ)
	out[14] = fwd[0]*eyeX + fwd[1]*eyeY + fwd[2]*eyeZ
}

// BuildModelMatrix writes translate * rotZ * rotY * rotX * scale into out.
func BuildModelMatrix(out []float32, posX, posY, posZ, rotX, rotY, rotZ, scaleX, scaleY, scaleZ float32) {
	sx, cx := sincos(rotX)
	sy, cy := sincos(rotY)
	sz, cz := sincos(rotZ)

	// Rotation columns, each scaled by the matching axis scale.
	out[0] = cy * cz * scaleX
	out[1] = cy * sz * scaleX
	out[2] = -sy * scaleX
	out[3] = 0
	out[4] = (sx*sy*cz - cx*sz) * scaleY
	out[5] = (sx*sy*sz + cx*cz) * scaleY
	out[6] = sx * cy * scaleY
	out[7] = 0
	out[8] = (cx*sy*cz + sx*sz) * scaleZ
	out[9] = (cx*sy*sz - sx*cz) * scaleZ
	out[10] = cx * cy * scaleZ
	out[11] = 0
	out[12] = posX
	out[13] = posY
	out[14] = posZ
	out[15] = 1
}

// Plane is ax + by + cz + d = 0 with (a, b, c) the unit normal and d the
// signed distance term.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// Frustum holds the six view-frustum planes, oriented so the positive
// half-space is inside. Order: left, right, bottom, top, near, far.
type Frustum struct {
	Planes [6]Plane
}

// ExtractFrustumFromMatrix derives the six frustum planes from a combined
// view-projection matrix by the Gribb/Hartmann row method: each plane is
// the matrix's fourth row plus or minus one of the first three. Planes are
// normalized so sphere tests can compare signed distance against a radius
// directly.
func ExtractFrustumFromMatrix(viewProj []float32) Frustum {
	row := func(i int) [4]float32 {
		return [4]float32{viewProj[i], viewProj[4+i], viewProj[8+i], viewProj[12+i]}
	}
	w := row(3)

	var f Frustum
	for axis := 0; axis < 3; axis++ {
		r := row(axis)
		for sign := 0; sign < 2; sign++ {
			p := &f.Planes[axis*2+sign]
			if sign == 0 { // w + row: left, bottom, near
				p.Normal = [3]float32{w[0] + r[0], w[1] + r[1], w[2] + r[2]}
				p.Distance = w[3] + r[3]
			} else { // w - row: right, top, far
				p.Normal = [3]float32{w[0] - r[0], w[1] - r[1], w[2] - r[2]}
				p.Distance = w[3] - r[3]
			}
			normalizePlane(p)
		}
	}
	return f
}

func normalizePlane(p *Plane) {
	n := p.Normal
	length := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if length == 0 {
		return
	}
	inv := 1 / length
	p.Normal[0] *= inv
	p.Normal[1] *= inv
	p.Normal[2] *= inv
	p.Distance *= inv
}

func sincos(a float32) (float32, float32) {
	s, c := math.Sincos(float64(a))
	return float32(s), float32(c)
}

func normalize3(v [3]float32) [3]float32 {
	l := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])))
	if l == 0 {
		return [3]float32{}
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

func cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
