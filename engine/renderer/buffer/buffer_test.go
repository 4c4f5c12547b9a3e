package buffer

import "testing"

func TestNewRejectsZeroSize(t *testing.T) {
	_, err := New(nil, nil, "test", 0, 0, false)
	if err == nil {
		t.Fatalf("New with size 0: want error, got nil")
	}
}

func TestWriteRejectsOutOfRange(t *testing.T) {
	b := &Buffer{size: 16, persistent: true, mirror: make([]byte, 16)}
	if err := b.Write(8, make([]byte, 16)); err == nil {
		t.Fatalf("Write past end: want error, got nil")
	}
}

func TestMappedExposesPersistentMirror(t *testing.T) {
	// Construct directly so no real device/queue is needed: Mapped returns
	// the persistent CPU mirror itself, so a byte set there reads back.
	b := &Buffer{size: 4, persistent: true, mirror: make([]byte, 4)}
	b.mirror[0] = 0xAA
	if got := b.Mapped()[0]; got != 0xAA {
		t.Fatalf("Mapped()[0]: have %#x want %#x", got, 0xAA)
	}
}

func TestMappedNilWhenNotPersistent(t *testing.T) {
	b := &Buffer{size: 4, persistent: false}
	if m := b.Mapped(); m != nil {
		t.Fatalf("Mapped() on non-persistent buffer: have %v want nil", m)
	}
}

func TestReleaseNilRawIsNoop(t *testing.T) {
	b := &Buffer{size: 4}
	b.Release()
	if b.mirror != nil {
		t.Fatalf("Release: mirror should be cleared")
	}
}

func TestMapUnmapRejectedWhilePersistent(t *testing.T) {
	b := &Buffer{size: 4, persistent: true, mirror: make([]byte, 4)}
	if _, err := b.Map(); err == nil {
		t.Fatal("Map on persistent buffer: want error, got nil")
	}
	if err := b.Unmap(); err == nil {
		t.Fatal("Unmap on persistent buffer: want error, got nil")
	}
}

func TestFlushInvalidateCallableOnAnyBuffer(t *testing.T) {
	b := &Buffer{size: 4, persistent: true, mirror: make([]byte, 4)}
	b.Flush(0, 4)
	b.Invalidate(0, 4)
}
