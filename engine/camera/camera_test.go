package camera

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/vertexforge/engine/config"
)

func perspectiveConfig() config.Camera {
	return config.Camera{
		Projection:      config.ProjectionPerspective,
		FovYRad:         math.Pi / 4,
		NearZ:           0.1,
		FarZ:            1000,
		PanSpeed:        1,
		InitialPosition: [3]float32{0, 20, 60},
	}
}

func TestFromConfigRecoversInitialPosition(t *testing.T) {
	cfg := perspectiveConfig()
	c := FromConfig(cfg, 16.0/9.0)

	pos := c.Position()
	for i := range 3 {
		if diff := float64(pos[i] - cfg.InitialPosition[i]); math.Abs(diff) > 1e-3 {
			t.Fatalf("position[%d]: have %v want %v", i, pos[i], cfg.InitialPosition[i])
		}
	}
}

func TestOrbitClampsElevation(t *testing.T) {
	c := FromConfig(perspectiveConfig(), 1)
	c.Orbit(0, 10) // far past the pole
	if c.elevation > 1.55 {
		t.Fatalf("elevation not clamped: %v", c.elevation)
	}
	c.Orbit(0, -20)
	if c.elevation < -1.55 {
		t.Fatalf("elevation not clamped below: %v", c.elevation)
	}
}

func TestZoomMovesTowardTargetAndStopsAtNear(t *testing.T) {
	c := FromConfig(perspectiveConfig(), 1)
	before := c.radius
	c.Zoom(1)
	if c.radius >= before {
		t.Fatalf("zoom in should shrink radius: %v -> %v", before, c.radius)
	}
	for range 500 {
		c.Zoom(1)
	}
	if c.radius < c.nearZ {
		t.Fatalf("radius fell below the near plane: %v", c.radius)
	}
}

func TestProjectionKindSelectsMatrix(t *testing.T) {
	persp := FromConfig(perspectiveConfig(), 1)

	orthoCfg := perspectiveConfig()
	orthoCfg.Projection = config.ProjectionOrthographic
	orthoCfg.OrthoHalfExtent = 10
	orthoCfg.OrthoNear = 0.1
	orthoCfg.OrthoFar = 100
	ortho := FromConfig(orthoCfg, 1)

	if persp.ViewProjection() == ortho.ViewProjection() {
		t.Fatal("perspective and orthographic cameras produced the same matrix")
	}
}

func TestUniformIs80BytesWithMatrixFirst(t *testing.T) {
	c := FromConfig(perspectiveConfig(), 1)
	buf := c.Uniform()
	if len(buf) != UniformSize {
		t.Fatalf("uniform size: have %d want %d", len(buf), UniformSize)
	}
	for i, want := range c.ViewProjection() {
		if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:])); got != want {
			t.Fatalf("uniform float %d: have %v want %v", i, got, want)
		}
	}
}
