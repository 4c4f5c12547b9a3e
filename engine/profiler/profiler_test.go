package profiler

import (
	"testing"
	"time"
)

func TestEndFrameWaitsForInterval(t *testing.T) {
	p := New()
	if p.EndFrame() {
		t.Fatal("EndFrame should not log before the interval elapses")
	}
	if p.frames != 1 {
		t.Fatalf("frame count: have %d want 1", p.frames)
	}
}

func TestEndFrameFlushesAfterInterval(t *testing.T) {
	p := New()
	p.interval = 0 // every EndFrame flushes
	p.Observe(StageWait, 3*time.Millisecond)
	if !p.EndFrame() {
		t.Fatal("EndFrame should log once the interval has elapsed")
	}
	if p.frames != 0 || p.totals[StageWait] != 0 {
		t.Fatal("flush should reset frame count and stage totals")
	}
}

func TestTimeAttributesDuration(t *testing.T) {
	p := New()
	p.Time(StageRecord, func() { time.Sleep(time.Millisecond) })
	if p.totals[StageRecord] <= 0 {
		t.Fatal("Time should accumulate a positive duration")
	}
}
