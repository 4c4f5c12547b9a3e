// Package camera produces the view-projection matrix the render system
// extracts its frustum planes from. A Camera is built from the loaded
// config's camera section (projection kind, field of view or orthographic
// half-extent, clip planes, pan speed, initial position) and exposes orbit
// controls for the window's input callbacks.
package camera

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/vertexforge/engine/common"
	"github.com/vertexforge/engine/config"
)

// UniformSize is the byte size of the camera uniform: a column-major
// mat4x4<f32> view-projection followed by the world-space camera position
// (vec3 padded to 16).
const UniformSize = 80

// Camera holds projection parameters and an orbit-style controller state
// (azimuth/elevation/radius around a target). All accessors are safe to
// call from the input callbacks and the render goroutine concurrently.
type Camera struct {
	mu sync.Mutex

	projection config.ProjectionKind
	fovY       float32
	aspect     float32
	nearZ      float32
	farZ       float32

	orthoHalfExtent float32
	orthoNear       float32
	orthoFar        float32

	target    [3]float32
	azimuth   float32
	elevation float32
	radius    float32
	panSpeed  float32
}

// FromConfig builds a Camera from the clamped config camera section. The
// initial position is converted to orbit coordinates around the origin.
func FromConfig(cfg config.Camera, aspect float32) *Camera {
	c := &Camera{
		projection:      cfg.Projection,
		fovY:            cfg.FovYRad,
		aspect:          aspect,
		nearZ:           cfg.NearZ,
		farZ:            cfg.FarZ,
		orthoHalfExtent: cfg.OrthoHalfExtent,
		orthoNear:       cfg.OrthoNear,
		orthoFar:        cfg.OrthoFar,
		panSpeed:        cfg.PanSpeed,
	}
	if c.projection == "" {
		c.projection = config.ProjectionPerspective
	}
	if c.panSpeed <= 0 {
		c.panSpeed = 1
	}

	p := cfg.InitialPosition
	c.radius = float32(math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])))
	if c.radius < 1 {
		c.radius = 1
	}
	c.azimuth = float32(math.Atan2(float64(p[0]), float64(p[2])))
	c.elevation = float32(math.Asin(float64(p[1]) / float64(c.radius)))
	return c
}

// SetAspect updates the projection aspect ratio; called from the window's
// resize callback.
func (c *Camera) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect > 0 {
		c.aspect = aspect
	}
}

// Orbit rotates the camera around its target by the given azimuth and
// elevation deltas in radians. Elevation is clamped short of the poles so
// the view matrix's up vector stays well-defined.
func (c *Camera) Orbit(dAzimuth, dElevation float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azimuth += dAzimuth
	c.elevation = clampf(c.elevation+dElevation, -1.55, 1.55)
}

// Zoom moves the camera along its view ray. Positive delta moves toward
// the target; the radius never drops below the near plane.
func (c *Camera) Zoom(delta float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radius = clampf(c.radius-delta*c.radius*0.1, c.nearZ+0.01, 1e6)
}

// Pan translates the target (and with it the camera) in the horizontal
// camera plane and along the world up axis, scaled by the configured pan
// speed.
func (c *Camera) Pan(right, up, forward float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sinA, cosA := sincos(c.azimuth)
	// Camera-right and camera-forward projected onto the ground plane.
	c.target[0] += (right*cosA - forward*sinA) * c.panSpeed
	c.target[2] += (-right*sinA - forward*cosA) * c.panSpeed
	c.target[1] += up * c.panSpeed
}

// Position returns the camera's world-space position.
func (c *Camera) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

func (c *Camera) position() [3]float32 {
	sinA, cosA := sincos(c.azimuth)
	sinE, cosE := sincos(c.elevation)
	return [3]float32{
		c.target[0] + c.radius*cosE*sinA,
		c.target[1] + c.radius*sinE,
		c.target[2] + c.radius*cosE*cosA,
	}
}

// ViewProjection returns the combined projection * view matrix for the
// current orbit state.
func (c *Camera) ViewProjection() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	eye := c.position()
	var view, proj, out [16]float32
	common.LookAt(view[:], eye[0], eye[1], eye[2], c.target[0], c.target[1], c.target[2], 0, 1, 0)

	switch c.projection {
	case config.ProjectionOrthographic:
		common.Orthographic(proj[:], c.orthoHalfExtent, c.aspect, c.orthoNear, c.orthoFar)
	default:
		common.Perspective(proj[:], c.fovY, c.aspect, c.nearZ, c.farZ)
	}

	common.Mul4(out[:], proj[:], view[:])
	return out
}

// Uniform returns the UniformSize-byte GPU uniform for the current state:
// view-projection matrix then padded camera position, all little-endian
// IEEE 754 binary32.
func (c *Camera) Uniform() []byte {
	vp := c.ViewProjection()
	pos := c.Position()

	buf := make([]byte, UniformSize)
	for i, v := range vp {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	for i, v := range pos {
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(v))
	}
	return buf
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sincos(a float32) (float32, float32) {
	s, c := math.Sincos(float64(a))
	return float32(s), float32(c)
}
