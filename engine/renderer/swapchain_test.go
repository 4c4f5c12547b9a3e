package renderer

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestNegotiateFormatPrefersExactMatch(t *testing.T) {
	supported := []FormatChoice{
		{Format: wgpu.TextureFormatBGRA8Unorm, ColorSpace: "SRGB_NONLINEAR"},
		{Format: wgpu.TextureFormatRGBA8UnormSrgb, ColorSpace: "SRGB_NONLINEAR"},
	}
	got, err := NegotiateFormat(supported, wgpu.TextureFormatRGBA8UnormSrgb, "SRGB_NONLINEAR", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Format != wgpu.TextureFormatRGBA8UnormSrgb {
		t.Fatalf("format: have %v want %v", got.Format, wgpu.TextureFormatRGBA8UnormSrgb)
	}
}

func TestNegotiateFormatFallsBackToSrgb(t *testing.T) {
	supported := []FormatChoice{
		{Format: wgpu.TextureFormatBGRA8UnormSrgb, ColorSpace: "SRGB_NONLINEAR"},
		{Format: wgpu.TextureFormatRGBA8Unorm, ColorSpace: "LINEAR"},
	}
	got, err := NegotiateFormat(supported, wgpu.TextureFormatRGBA16Float, "HDR10", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Format != wgpu.TextureFormatBGRA8UnormSrgb {
		t.Fatalf("fallback format: have %v want BGRA8UnormSrgb", got.Format)
	}
}

func TestNegotiateFormatFailsOnExactRequest(t *testing.T) {
	// Driver supports only RGBA8Unorm/LINEAR, preferred format requested
	// exactly and unsupported -> fatal with the supported list.
	supported := []FormatChoice{
		{Format: wgpu.TextureFormatRGBA8Unorm, ColorSpace: "LINEAR"},
	}
	_, err := NegotiateFormat(supported, wgpu.TextureFormatBGRA8UnormSrgb, "SRGB_NONLINEAR", true)
	if !errors.Is(err, ErrFormatUnsupported) {
		t.Fatalf("want ErrFormatUnsupported, got %v", err)
	}
}

func TestNegotiatePresentModeExactMatchOnly(t *testing.T) {
	_, err := NegotiatePresentMode([]wgpu.PresentMode{wgpu.PresentModeFifo}, wgpu.PresentModeImmediate)
	if !errors.Is(err, ErrPresentModeUnsupported) {
		t.Fatalf("want ErrPresentModeUnsupported, got %v", err)
	}

	got, err := NegotiatePresentMode([]wgpu.PresentMode{wgpu.PresentModeFifo, wgpu.PresentModeImmediate}, wgpu.PresentModeImmediate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != wgpu.PresentModeImmediate {
		t.Fatalf("present mode: have %v want Immediate", got)
	}
}

func TestNegotiateExtentUsesFixedCurrentExtent(t *testing.T) {
	got := NegotiateExtent(Extent{1920, 1080}, Extent{800, 600}, Extent{1, 1}, Extent{4096, 4096})
	if got != (Extent{800, 600}) {
		t.Fatalf("extent: have %+v want fixed current extent {800 600}", got)
	}
}

func TestNegotiateExtentClampsWhenNoFixedExtent(t *testing.T) {
	got := NegotiateExtent(Extent{100, 100}, Extent{0, 0}, Extent{320, 240}, Extent{1920, 1080})
	if got != (Extent{320, 240}) {
		t.Fatalf("extent: have %+v want clamped to min {320 240}", got)
	}
}

func TestNegotiateImageCountClampedByMax(t *testing.T) {
	if got := NegotiateImageCount(2, 3); got != 3 {
		t.Fatalf("image count: have %d want 3", got)
	}
	if got := NegotiateImageCount(2, 0); got != 3 {
		t.Fatalf("image count with no driver max: have %d want 3", got)
	}
}

func TestSwapchainStateDirtyFlag(t *testing.T) {
	var s SwapchainState
	if s.Dirty() {
		t.Fatalf("new SwapchainState should not be dirty")
	}
	s.MarkDirty()
	if !s.Dirty() {
		t.Fatalf("MarkDirty should set Dirty() true")
	}
	s.ClearDirty()
	if s.Dirty() {
		t.Fatalf("ClearDirty should set Dirty() false")
	}
}
