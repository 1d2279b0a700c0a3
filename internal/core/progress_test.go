package core

import (
	"context"
	"testing"
	"time"
)

func TestProgressEstimator_MonotonicAndCapped(t *testing.T) {
	e := NewProgressEstimator(90)
	e.Start()

	prev := 0
	for i := 0; i < 500; i++ {
		p := e.Advance()
		if p < prev {
			t.Fatalf("Advance() went backwards: %d after %d", p, prev)
		}
		if p > 90 {
			t.Fatalf("Advance() = %d, exceeds cap", p)
		}
		prev = p
	}
	if prev != 90 {
		t.Errorf("estimate settled at %d, want cap 90", prev)
	}

	e.Complete()
	if got := e.Percent(); got != 100 {
		t.Errorf("Percent() after Complete = %d, want 100", got)
	}
	if got := e.Advance(); got != 100 {
		t.Errorf("Advance() after Complete = %d, want 100", got)
	}
}

func TestProgressEstimator_Fail(t *testing.T) {
	e := NewProgressEstimator(0)
	e.Start()
	e.Advance()
	at := e.Percent()

	e.Fail()
	snap := e.Snapshot()
	if snap.State != ProgressFailed || snap.Percent != at {
		t.Errorf("Snapshot() after Fail = %+v, want failed at %d", snap, at)
	}
	if !snap.Done() {
		t.Error("failed estimate should be done")
	}
}

func TestProgressEstimator_DefaultCap(t *testing.T) {
	for _, cap := range []int{-1, 0, 100, 150} {
		e := NewProgressEstimator(cap)
		e.Start()
		for i := 0; i < 500; i++ {
			e.Advance()
		}
		if got := e.Percent(); got != DefaultProgressCap {
			t.Errorf("cap %d: settled at %d, want %d", cap, got, DefaultProgressCap)
		}
	}
}

func TestProgressEstimator_Subscribe(t *testing.T) {
	e := NewProgressEstimator(0)
	e.Start()

	ch, unsubscribe := e.Subscribe()
	defer unsubscribe()

	if first := <-ch; first.State != ProgressRunning {
		t.Errorf("first update = %+v, want running", first)
	}

	e.Advance()
	e.Complete()

	var last Progress
	for p := range ch {
		last = p
	}
	if last.State != ProgressComplete || last.Percent != 100 {
		t.Errorf("last update = %+v, want complete at 100", last)
	}
}

func TestProgressEstimator_SubscribeWhenIdle(t *testing.T) {
	e := NewProgressEstimator(0)
	ch, _ := e.Subscribe()

	p, ok := <-ch
	if !ok || p.State != ProgressIdle {
		t.Errorf("first receive = %+v, %v; want idle value", p, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed for an idle estimate")
	}
}

func TestProgressEstimator_RunStopsWhenDone(t *testing.T) {
	e := NewProgressEstimator(0)
	e.Start()

	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if e.Percent() == 0 {
		t.Error("Run() did not advance the estimate")
	}
	e.Complete()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Complete")
	}
}
