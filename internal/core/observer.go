package core

import "time"

// Observer receives workflow outcomes for instrumentation.
// Implementations must be safe for concurrent use.
type Observer interface {
	ConversionFinished(format string, kind DocumentKind, elapsed time.Duration, err error)
	RecordCommitted(format string, err error)
	Exported(format string, err error)
	Confirmed(records int, err error)
}

type nopObserver struct{}

func (nopObserver) ConversionFinished(string, DocumentKind, time.Duration, error) {}
func (nopObserver) RecordCommitted(string, error)                                 {}
func (nopObserver) Exported(string, error)                                        {}
func (nopObserver) Confirmed(int, error)                                          {}
