// Package config holds the fixed, JSON-loaded configuration struct the
// rendering core reads. Parsing the level/config file itself is an external
// collaborator's job; this package only owns the struct shape, range
// clamping, and the post-device-selection re-clamp.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode mirrors the user-facing present-mode names accepted in config
// files; Swapchain.PresentMode translates one of these into a wgpu.PresentMode.
type PresentMode string

const (
	PresentModeFifo        PresentMode = "fifo"
	PresentModeMailbox     PresentMode = "mailbox"
	PresentModeImmediate   PresentMode = "immediate"
	PresentModeFifoRelaxed PresentMode = "fifo-relaxed"
)

// ProjectionKind selects between perspective and orthographic camera setup.
type ProjectionKind string

const (
	ProjectionPerspective  ProjectionKind = "perspective"
	ProjectionOrthographic ProjectionKind = "orthographic"
)

// Window holds the requested window geometry and presentation title.
type Window struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Fullscreen bool   `json:"fullscreen"`
	Title      string `json:"title"`
}

// Swapchain holds the requested swapchain parameters. ImageCount is taken as
// a minimum: the renderer uses ImageCount+1, capped at 8, as its swapchain
// image count (see renderer.NegotiateImageCount). The count is not checked
// against the surface, so an unsupported count does not make setup fail.
type Swapchain struct {
	ImageCount          int         `json:"image_count"`
	MaxFramesInFlight   int         `json:"max_frames_in_flight"`
	PresentMode         PresentMode `json:"present_mode"`
	PreferredFormat     string      `json:"preferred_format"`
	PreferredColorSpace string      `json:"preferred_color_space"`
}

// Camera holds the initial camera projection and controller parameters.
type Camera struct {
	Projection      ProjectionKind `json:"projection"`
	FovYRad         float32        `json:"fov_y_rad"`
	NearZ           float32        `json:"near_z"`
	FarZ            float32        `json:"far_z"`
	OrthoHalfExtent float32        `json:"ortho_half_extent"`
	OrthoNear       float32        `json:"ortho_near"`
	OrthoFar        float32        `json:"ortho_far"`
	PanSpeed        float32        `json:"pan_speed"`
	InitialPosition [3]float32     `json:"initial_position"`
}

// Render holds top-level rendering toggles.
type Render struct {
	CullBackFaces    bool       `json:"cull_back_faces"`
	ClearColor       [4]float32 `json:"clear_color"`
	EnableGPUCulling bool       `json:"enable_gpu_culling"`
}

// DescriptorCache holds the requested descriptor-cache capacities.
type DescriptorCache struct {
	MaxSets        int `json:"max_sets"`
	UniformBuffers int `json:"uniform_buffers"`
	Samplers       int `json:"samplers"`
	StorageBuffers int `json:"storage_buffers"`
}

// GPU holds GPU-resource sizing knobs.
type GPU struct {
	MaxObjects      int             `json:"max_objects"`
	DescriptorCache DescriptorCache `json:"descriptor_cache"`
}

// Debug holds debug-overlay toggles.
type Debug struct {
	ShowLightDebug bool `json:"show_light_debug"`
}

// Config is the fixed configuration struct the rendering core reads. It
// mirrors the external collaborator's JSON file shape exactly; this
// package never writes the file back.
type Config struct {
	Window    Window    `json:"window"`
	Swapchain Swapchain `json:"swapchain"`
	Camera    Camera    `json:"camera"`
	Render    Render    `json:"render"`
	GPU       GPU       `json:"gpu"`
	Debug     Debug     `json:"debug"`
}

// Warning describes one value that Clamp adjusted because it was out of
// range or a section was missing from the source JSON.
type Warning struct {
	Field string
	Had   string
	Used  string
}

func (w Warning) String() string {
	return fmt.Sprintf("config: %s out of range (had %s), clamped to %s", w.Field, w.Had, w.Used)
}

// Load reads path as JSON into a Config, applies Clamp, and returns the
// accumulated warnings. Out-of-range values are never an error — they are
// clamped and reported as warnings; only a malformed or
// unreadable file returns an error.
func Load(path string) (*Config, []Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	warnings := cfg.Clamp()
	return &cfg, warnings, nil
}

func clampInt(field string, v, lo, hi int, warnings *[]Warning) int {
	if v < lo {
		*warnings = append(*warnings, Warning{field, fmt.Sprint(v), fmt.Sprint(lo)})
		return lo
	}
	if v > hi {
		*warnings = append(*warnings, Warning{field, fmt.Sprint(v), fmt.Sprint(hi)})
		return hi
	}
	return v
}

func clampFloat32(field string, v, lo, hi float32, warnings *[]Warning) float32 {
	if v < lo {
		*warnings = append(*warnings, Warning{field, fmt.Sprint(v), fmt.Sprint(lo)})
		return lo
	}
	if v > hi {
		*warnings = append(*warnings, Warning{field, fmt.Sprint(v), fmt.Sprint(hi)})
		return hi
	}
	return v
}

// Clamp enforces the supported value ranges in place and returns the warnings
// generated. Near/far are swapped if inverted rather than clamped.
func (c *Config) Clamp() []Warning {
	var warnings []Warning

	c.Window.Width = clampInt("window.width", c.Window.Width, 320, 7680, &warnings)
	c.Window.Height = clampInt("window.height", c.Window.Height, 240, 4320, &warnings)

	c.Swapchain.ImageCount = clampInt("swapchain.image_count", c.Swapchain.ImageCount, 2, 8, &warnings)
	c.Swapchain.MaxFramesInFlight = clampInt("swapchain.max_frames_in_flight", c.Swapchain.MaxFramesInFlight, 1, 4, &warnings)

	c.Camera.FovYRad = clampFloat32("camera.fov_y_rad", c.Camera.FovYRad, 0.1, 3.14159265, &warnings)
	if c.Camera.NearZ > c.Camera.FarZ {
		c.Camera.NearZ, c.Camera.FarZ = c.Camera.FarZ, c.Camera.NearZ
		warnings = append(warnings, Warning{"camera.near_z/far_z", "inverted", "swapped"})
	}
	if c.Camera.OrthoNear > c.Camera.OrthoFar {
		c.Camera.OrthoNear, c.Camera.OrthoFar = c.Camera.OrthoFar, c.Camera.OrthoNear
		warnings = append(warnings, Warning{"camera.ortho_near/ortho_far", "inverted", "swapped"})
	}

	c.GPU.MaxObjects = clampInt("gpu.max_objects", c.GPU.MaxObjects, 1, 10_000_000, &warnings)
	c.GPU.DescriptorCache.MaxSets = clampInt("gpu.descriptor_cache.max_sets", c.GPU.DescriptorCache.MaxSets, 1, 100_000, &warnings)
	c.GPU.DescriptorCache.UniformBuffers = clampInt("gpu.descriptor_cache.uniform_buffers", c.GPU.DescriptorCache.UniformBuffers, 1, 100_000, &warnings)
	c.GPU.DescriptorCache.Samplers = clampInt("gpu.descriptor_cache.samplers", c.GPU.DescriptorCache.Samplers, 1, 100_000, &warnings)
	c.GPU.DescriptorCache.StorageBuffers = clampInt("gpu.descriptor_cache.storage_buffers", c.GPU.DescriptorCache.StorageBuffers, 1, 100_000, &warnings)

	return warnings
}

// ReclampToDeviceLimits re-validates the config against the selected
// device's reported limits once a concrete device exists. It returns
// warnings rather than mutating silently on out-of-limit values that Clamp
// could not have known about without the device.
func (c *Config) ReclampToDeviceLimits(limits wgpu.Limits) []Warning {
	var warnings []Warning

	maxByStorageRange := int(limits.MaxStorageBufferBindingSize / 256)
	if c.GPU.MaxObjects > maxByStorageRange && maxByStorageRange > 0 {
		warnings = append(warnings, Warning{"gpu.max_objects", fmt.Sprint(c.GPU.MaxObjects), fmt.Sprint(maxByStorageRange)})
		c.GPU.MaxObjects = maxByStorageRange
	}

	if maxSets := int(limits.MaxBindGroups); c.GPU.DescriptorCache.MaxSets > maxSets && maxSets > 0 {
		warnings = append(warnings, Warning{"gpu.descriptor_cache.max_sets", fmt.Sprint(c.GPU.DescriptorCache.MaxSets), fmt.Sprint(maxSets)})
		c.GPU.DescriptorCache.MaxSets = maxSets
	}
	if maxUniforms := int(limits.MaxUniformBuffersPerShaderStage); c.GPU.DescriptorCache.UniformBuffers > maxUniforms && maxUniforms > 0 {
		warnings = append(warnings, Warning{"gpu.descriptor_cache.uniform_buffers", fmt.Sprint(c.GPU.DescriptorCache.UniformBuffers), fmt.Sprint(maxUniforms)})
		c.GPU.DescriptorCache.UniformBuffers = maxUniforms
	}
	if maxSamplers := int(limits.MaxSamplersPerShaderStage); c.GPU.DescriptorCache.Samplers > maxSamplers && maxSamplers > 0 {
		warnings = append(warnings, Warning{"gpu.descriptor_cache.samplers", fmt.Sprint(c.GPU.DescriptorCache.Samplers), fmt.Sprint(maxSamplers)})
		c.GPU.DescriptorCache.Samplers = maxSamplers
	}
	if maxStorage := int(limits.MaxStorageBuffersPerShaderStage); c.GPU.DescriptorCache.StorageBuffers > maxStorage && maxStorage > 0 {
		warnings = append(warnings, Warning{"gpu.descriptor_cache.storage_buffers", fmt.Sprint(c.GPU.DescriptorCache.StorageBuffers), fmt.Sprint(maxStorage)})
		c.GPU.DescriptorCache.StorageBuffers = maxStorage
	}

	return warnings
}
