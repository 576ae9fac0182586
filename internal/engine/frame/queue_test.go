package frame

import (
	"sync"
	"testing"
	"time"
)

func TestRunInvokesInOrder(t *testing.T) {
	q := NewQueue()
	var got []int
	for i := 0; i < 3; i++ {
		q.RequestFrame(func(time.Duration) { got = append(got, i) })
	}

	if n := q.Run(0); n != 3 {
		t.Fatalf("Run returned %d, want 3", n)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Errorf("unexpected order %v", got)
	}
	if q.Pending() != 0 {
		t.Errorf("expected empty queue, got %d pending", q.Pending())
	}
}

func TestHandlesAreNonZeroAndUnique(t *testing.T) {
	q := NewQueue()
	a := q.RequestFrame(func(time.Duration) {})
	b := q.RequestFrame(func(time.Duration) {})
	if a == 0 || b == 0 || a == b {
		t.Errorf("bad handles %d, %d", a, b)
	}
}

func TestCancelFrame(t *testing.T) {
	q := NewQueue()
	ran := false
	h := q.RequestFrame(func(time.Duration) { ran = true })
	q.CancelFrame(h)
	q.CancelFrame(h)
	q.CancelFrame(12345)

	if n := q.Run(0); n != 0 || ran {
		t.Errorf("cancelled callback ran (n=%d)", n)
	}
}

func TestCancelDuringRun(t *testing.T) {
	q := NewQueue()
	var second Handle
	ranSecond := false
	q.RequestFrame(func(time.Duration) { q.CancelFrame(second) })
	second = q.RequestFrame(func(time.Duration) { ranSecond = true })

	q.Run(0)
	if ranSecond {
		t.Error("callback cancelled earlier in the same flush still ran")
	}
}

func TestRequestDuringRunDefersToNextFrame(t *testing.T) {
	q := NewQueue()
	var frames []time.Duration
	var tick Callback
	tick = func(now time.Duration) {
		frames = append(frames, now)
		q.RequestFrame(tick)
	}
	q.RequestFrame(tick)

	q.Run(16 * time.Millisecond)
	if len(frames) != 1 {
		t.Fatalf("self-requesting callback ran %d times in one flush", len(frames))
	}
	q.Run(32 * time.Millisecond)
	if len(frames) != 2 || frames[1] != 32*time.Millisecond {
		t.Errorf("unexpected frames %v", frames)
	}
}

func TestConcurrentRequestCancel(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h := q.RequestFrame(func(time.Duration) {})
				if j%2 == 0 {
					q.CancelFrame(h)
				}
			}
		}()
	}
	wg.Wait()

	if n := q.Run(0); n != 400 {
		t.Errorf("Run executed %d callbacks, want 400", n)
	}
}
