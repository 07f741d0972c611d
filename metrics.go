package gopool

import "time"

// MetricsSink is an optional external collaborator the core reports
// lifecycle events to. It is never required for correctness: a Config with
// no MetricsSink gets noopMetrics, exactly the way a Config with no
// BeforeConnect gets a no-op function.
type MetricsSink interface {
	RecordAllocationSuccessLatency(d time.Duration)
	RecordAllocationFailureLatency(d time.Duration)
	RecordResetLatency(d time.Duration)
	RecordDestroyLatency(d time.Duration)
	// RecordDestroyError is called in addition to RecordDestroyLatency
	// whenever the destroy handler itself returned an error. See
	// SPEC_FULL.md's Open Questions decision #1: destroy errors are always
	// swallowed for control-flow purposes, but a host that wants to alert
	// on them can do so through this distinct hook.
	RecordDestroyError()
	RecordRecycled()
	RecordIdleTime(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordAllocationSuccessLatency(time.Duration) {}
func (noopMetrics) RecordAllocationFailureLatency(time.Duration) {}
func (noopMetrics) RecordResetLatency(time.Duration)             {}
func (noopMetrics) RecordDestroyLatency(time.Duration)           {}
func (noopMetrics) RecordDestroyError()                          {}
func (noopMetrics) RecordRecycled()                               {}
func (noopMetrics) RecordIdleTime(time.Duration)                 {}
