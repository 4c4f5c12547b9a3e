package renderer

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrPresentModeUnsupported is returned by NegotiatePresentMode when the
// requested mode is not in the surface's supported list. No fallback is
// attempted — an exact match is required.
var ErrPresentModeUnsupported = errors.New("renderer: present mode unsupported")

// ErrFormatUnsupported is returned by NegotiateFormat when the surface
// reports no formats, or when an exact request for the preferred
// format/color-space pair finds no match.
var ErrFormatUnsupported = errors.New("renderer: surface format unsupported")

// FormatChoice is a (format, color space) combination reported as supported
// by a surface.
type FormatChoice struct {
	Format     wgpu.TextureFormat
	ColorSpace string
}

// NegotiateFormat selects the surface format: prefer the
// requested format/color-space if both are supported; otherwise prefer the
// first BGRA8UnormSrgb entry, whatever its color space; otherwise use the
// first reported combination. If requireExact is set and the requested pair
// is not supported, this is a hard failure carrying the supported list as
// diagnostic value — no silent substitution of a format the caller didn't
// ask for.
func NegotiateFormat(supported []FormatChoice, preferredFormat wgpu.TextureFormat, preferredColorSpace string, requireExact bool) (FormatChoice, error) {
	if len(supported) == 0 {
		return FormatChoice{}, fmt.Errorf("%w: surface reports no supported formats", ErrFormatUnsupported)
	}

	for _, c := range supported {
		if c.Format == preferredFormat && c.ColorSpace == preferredColorSpace {
			return c, nil
		}
	}
	if requireExact {
		return FormatChoice{}, fmt.Errorf("%w: %v/%s not in %v", ErrFormatUnsupported, preferredFormat, preferredColorSpace, supported)
	}

	for _, c := range supported {
		if c.Format == wgpu.TextureFormatBGRA8UnormSrgb {
			return c, nil
		}
	}

	return supported[0], nil
}

// NegotiatePresentMode requires an exact match; there is no fallback mode.
func NegotiatePresentMode(supported []wgpu.PresentMode, requested wgpu.PresentMode) (wgpu.PresentMode, error) {
	for _, m := range supported {
		if m == requested {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %v not in %v", ErrPresentModeUnsupported, requested, supported)
}

// Extent is a swapchain width/height in pixels.
type Extent struct {
	Width, Height uint32
}

// NegotiateExtent returns currentExtent unchanged if the driver reports a
// fixed extent (non-zero), otherwise clamps requested into [min, max].
func NegotiateExtent(requested, currentExtent, minExtent, maxExtent Extent) Extent {
	if currentExtent.Width != 0 && currentExtent.Height != 0 {
		return currentExtent
	}
	clamp := func(v, lo, hi uint32) uint32 {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	return Extent{
		Width:  clamp(requested.Width, minExtent.Width, maxExtent.Width),
		Height: clamp(requested.Height, minExtent.Height, maxExtent.Height),
	}
}

// NegotiateImageCount returns minImageCount+1, clamped by maxImageCount if
// maxImageCount is non-zero (0 meaning "no driver-imposed maximum").
func NegotiateImageCount(minImageCount, maxImageCount uint32) uint32 {
	count := minImageCount + 1
	if maxImageCount != 0 && count > maxImageCount {
		count = maxImageCount
	}
	return count
}

// SwapchainState tracks the dirty flag the Frame Loop consults each
// iteration: set on resize, OutOfDate/Suboptimal results,
// or a present-mode/format config change.
type SwapchainState struct {
	dirty bool
}

// MarkDirty flags the swapchain for recreation on the next Frame Loop
// iteration.
func (s *SwapchainState) MarkDirty() { s.dirty = true }

// Dirty reports whether recreation is pending.
func (s *SwapchainState) Dirty() bool { return s.dirty }

// ClearDirty resets the flag after a successful recreation.
func (s *SwapchainState) ClearDirty() { s.dirty = false }
