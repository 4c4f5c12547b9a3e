package ring

import "testing"

func TestNewRejectsInvalidDimensions(t *testing.T) {
	cases := []struct{ frames, elementsPerFrame, elementSize int }{
		{0, 4, 16}, {4, 0, 16}, {4, 4, 0},
	}
	for _, c := range cases {
		if _, err := New(nil, nil, "t", c.frames, c.elementsPerFrame, c.elementSize, 0); err == nil {
			t.Fatalf("New(%d,%d,%d): want error, got nil", c.frames, c.elementsPerFrame, c.elementSize)
		}
	}
}

func TestFrameOffsetIsolation(t *testing.T) {
	r := &Ring{frames: 3, elementsPerFrame: 4, elementSize: 16, frameSize: 64}
	for f := 0; f < r.frames; f++ {
		if off := r.FrameOffset(f); off+r.frameSize > uint64(r.frames)*r.frameSize {
			t.Fatalf("FrameOffset(%d)=%d overruns total size", f, off)
		}
	}
	if r.FrameOffset(0) == r.FrameOffset(1) {
		t.Fatalf("frame 0 and frame 1 must not alias")
	}
	if r.FrameOffset(1)-r.FrameOffset(0) != r.frameSize {
		t.Fatalf("adjacent frame offsets must differ by exactly frameSize")
	}
}

func TestWriteRejectsOutOfRangeFrame(t *testing.T) {
	r := &Ring{frames: 2, elementsPerFrame: 4, elementSize: 16, frameSize: 64}
	if err := r.Write(2, 0, make([]byte, 16)); err == nil {
		t.Fatalf("Write with frame index 2 (out of [0,2)): want error, got nil")
	}
}

func TestWriteRejectsOutOfRangeElement(t *testing.T) {
	r := &Ring{frames: 2, elementsPerFrame: 4, elementSize: 16, frameSize: 64}
	if err := r.Write(0, 4, make([]byte, 16)); err == nil {
		t.Fatalf("Write with element index 4 (out of [0,4)): want error, got nil")
	}
}

func TestWriteRejectsOversizedElement(t *testing.T) {
	r := &Ring{frames: 2, elementsPerFrame: 4, elementSize: 16, frameSize: 64}
	if err := r.Write(0, 0, make([]byte, 17)); err == nil {
		t.Fatalf("Write of 17 bytes into a 16-byte element: want error, got nil")
	}
}
