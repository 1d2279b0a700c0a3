package core

// conversion_limiter.go bounds the number of conversions running at once.
//
// Conversions may call out to a remote converter or parse large documents, so
// the service admits at most a configured number of them across all clients.
// A conversion that cannot get a slot within maxWait fails with
// ErrTooManyConversions. Shutdown waits for running conversions through
// WaitForDrain.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyConversions is returned when every conversion slot stays
// occupied for the whole wait period.
var ErrTooManyConversions = errors.New("too many conversions in progress, please try again later")

// DefaultMaxConcurrentConversions is the default number of conversion slots.
const DefaultMaxConcurrentConversions = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ConversionLimiter is a counting semaphore over conversion slots that also
// records which formats hold them.
type ConversionLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu       sync.Mutex
	byFormat map[string]int
	drained  chan struct{} // closed while no slot is held
}

// NewConversionLimiter allows at most maxConcurrent simultaneous conversions.
func NewConversionLimiter(maxConcurrent int, maxWait time.Duration) *ConversionLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentConversions
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	drained := make(chan struct{})
	close(drained)
	return &ConversionLimiter{
		slots:    make(chan struct{}, maxConcurrent),
		maxWait:  maxWait,
		byFormat: make(map[string]int),
		drained:  drained,
	}
}

// Acquire takes a slot for a conversion of the given format. The returned
// release function must be called exactly once; extra calls are ignored.
func (l *ConversionLimiter) Acquire(ctx context.Context, format string) (func(), error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
	case <-timer.C:
		return nil, ErrTooManyConversions
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	if l.active() == 0 {
		l.drained = make(chan struct{})
	}
	l.byFormat[format]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.release(format) })
	}, nil
}

func (l *ConversionLimiter) release(format string) {
	l.mu.Lock()
	l.byFormat[format]--
	if l.byFormat[format] <= 0 {
		delete(l.byFormat, format)
	}
	if l.active() == 0 {
		close(l.drained)
	}
	l.mu.Unlock()

	<-l.slots
}

// active counts held slots; callers hold mu.
func (l *ConversionLimiter) active() int {
	n := 0
	for _, c := range l.byFormat {
		n += c
	}
	return n
}

// ActiveCount returns the number of running conversions.
func (l *ConversionLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active()
}

// MaxConcurrent returns the number of slots.
func (l *ConversionLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no conversion is running or ctx is done.
func (l *ConversionLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	drained := l.drained
	l.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConversionLimiterStatus is a snapshot of the limiter for monitoring.
type ConversionLimiterStatus struct {
	Active        int            `json:"active"`
	Available     int            `json:"available"`
	MaxConcurrent int            `json:"max_concurrent"`
	ByFormat      map[string]int `json:"by_format,omitempty"`
}

// Status returns the current limiter state.
func (l *ConversionLimiter) Status() ConversionLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	byFormat := make(map[string]int, len(l.byFormat))
	for f, c := range l.byFormat {
		byFormat[f] = c
	}
	active := l.active()
	return ConversionLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
		ByFormat:      byFormat,
	}
}
