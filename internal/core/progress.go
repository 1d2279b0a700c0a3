package core

// progress.go estimates conversion progress for display.
//
// Converters report nothing while they run, so the estimate is synthetic: it
// rises in diminishing steps toward a cap below 100 and only reaches 100 when
// the conversion completes. Nothing in the workflow reads it to make
// decisions.

import (
	"context"
	"sync"
	"time"
)

// DefaultProgressCap is the highest estimate reported before completion.
const DefaultProgressCap = 95

// DefaultProgressTick is how often Run advances the estimate.
const DefaultProgressTick = 250 * time.Millisecond

// ProgressState is the lifecycle of one estimate.
type ProgressState string

const (
	ProgressIdle     ProgressState = "idle"
	ProgressRunning  ProgressState = "running"
	ProgressComplete ProgressState = "complete"
	ProgressFailed   ProgressState = "failed"
)

// Progress is a point-in-time view of an estimate.
type Progress struct {
	State   ProgressState `json:"state"`
	Percent int           `json:"percent"`
}

// Done reports whether the estimate has finished, successfully or not.
func (p Progress) Done() bool {
	return p.State == ProgressComplete || p.State == ProgressFailed
}

// ProgressEstimator produces a monotonic progress estimate for one conversion.
type ProgressEstimator struct {
	cap int

	mu        sync.Mutex
	progress  Progress
	listeners []chan Progress
}

// NewProgressEstimator creates an idle estimator. A cap outside 1..99 falls
// back to DefaultProgressCap.
func NewProgressEstimator(cap int) *ProgressEstimator {
	if cap <= 0 || cap >= 100 {
		cap = DefaultProgressCap
	}
	return &ProgressEstimator{
		cap:      cap,
		progress: Progress{State: ProgressIdle},
	}
}

// Start resets the estimate to 0 and marks it running.
func (e *ProgressEstimator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = Progress{State: ProgressRunning}
	e.notifyLocked()
}

// Advance moves a running estimate forward and returns the new percentage.
// Each step covers a tenth of the remaining distance to the cap, at least 1.
func (e *ProgressEstimator) Advance() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.progress.State != ProgressRunning {
		return e.progress.Percent
	}
	step := (e.cap - e.progress.Percent) / 10
	if step < 1 {
		step = 1
	}
	next := e.progress.Percent + step
	if next > e.cap {
		next = e.cap
	}
	if next != e.progress.Percent {
		e.progress.Percent = next
		e.notifyLocked()
	}
	return e.progress.Percent
}

// Complete forces the estimate to 100 and releases all subscribers.
func (e *ProgressEstimator) Complete() {
	e.finish(Progress{State: ProgressComplete, Percent: 100})
}

// Fail stops the estimate where it is and releases all subscribers.
func (e *ProgressEstimator) Fail() {
	e.mu.Lock()
	p := Progress{State: ProgressFailed, Percent: e.progress.Percent}
	e.mu.Unlock()
	e.finish(p)
}

// Reset returns the estimate to idle and releases all subscribers.
func (e *ProgressEstimator) Reset() {
	e.finish(Progress{State: ProgressIdle})
}

func (e *ProgressEstimator) finish(p Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = p
	e.notifyLocked()
	for _, ch := range e.listeners {
		close(ch)
	}
	e.listeners = nil
}

// Percent returns the current estimate.
func (e *ProgressEstimator) Percent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress.Percent
}

// Snapshot returns the current state and estimate.
func (e *ProgressEstimator) Snapshot() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Subscribe returns a channel of progress updates and a function that
// unsubscribes. The current value is sent immediately. The channel is closed
// when the estimate finishes; for an estimate that is not running it is
// closed right after the current value.
func (e *ProgressEstimator) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 10)

	e.mu.Lock()
	defer e.mu.Unlock()

	ch <- e.progress
	if e.progress.State != ProgressRunning {
		close(ch)
		return ch, func() {}
	}
	e.listeners = append(e.listeners, ch)

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l == ch {
				e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Run advances the estimate every interval until it stops running or ctx is
// done.
func (e *ProgressEstimator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProgressTick
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.Snapshot().State != ProgressRunning {
				return
			}
			e.Advance()
		}
	}
}

// notifyLocked sends the current value to every listener. Slow listeners
// miss updates.
func (e *ProgressEstimator) notifyLocked() {
	for _, ch := range e.listeners {
		select {
		case ch <- e.progress:
		default:
		}
	}
}
