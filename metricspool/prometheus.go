// Package metricspool bundles a github.com/sinhashubham95/gopool
// MetricsSink implementation backed by Prometheus collectors, outside the
// core so that taking a dependency on the core never pulls in a
// prometheus client as a transitive requirement.
package metricspool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements gopool.MetricsSink. Construct with NewSink and
// register the returned collectors with a prometheus.Registerer of your
// choosing (it does not self-register, unlike a package-global singleton,
// so multiple pools in one process can each get their own labelled sink).
type PrometheusSink struct {
	allocationSuccessLatency prometheus.Histogram
	allocationFailureLatency prometheus.Histogram
	resetLatency             prometheus.Histogram
	destroyLatency           prometheus.Histogram
	destroyErrorsTotal       prometheus.Counter
	recycledTotal            prometheus.Counter
	idleTime                 prometheus.Histogram
}

// NewSink builds a PrometheusSink whose metric names are prefixed
// "<namespace>_pool_*". Pass an empty namespace to use the bare "pool_*"
// names. Buckets default to a latency-shaped spread (1ms..10s) if nil.
func NewSink(namespace string, latencyBuckets []float64) *PrometheusSink {
	if len(latencyBuckets) == 0 {
		latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	}
	return &PrometheusSink{
		allocationSuccessLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "allocation_success_latency_seconds",
			Help:      "Latency of successful Allocator invocations.",
			Buckets:   latencyBuckets,
		}),
		allocationFailureLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "allocation_failure_latency_seconds",
			Help:      "Latency of failed Allocator invocations.",
			Buckets:   latencyBuckets,
		}),
		resetLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reset_latency_seconds",
			Help:      "Latency of ReleaseHandler invocations.",
			Buckets:   latencyBuckets,
		}),
		destroyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "destroy_latency_seconds",
			Help:      "Latency of DestroyHandler invocations.",
			Buckets:   latencyBuckets,
		}),
		destroyErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "destroy_errors_total",
			Help:      "Total DestroyHandler invocations that returned an error.",
		}),
		recycledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "recycled_total",
			Help:      "Total resources returned to the idle store instead of destroyed.",
		}),
		idleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "idle_time_seconds",
			Help:      "Time a resource spent idle before being reacquired.",
			Buckets:   []float64{.01, .1, 1, 10, 60, 300, 900},
		}),
	}
}

// Collectors returns every collector so callers can MustRegister them on
// whichever prometheus.Registerer they use.
func (s *PrometheusSink) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.allocationSuccessLatency,
		s.allocationFailureLatency,
		s.resetLatency,
		s.destroyLatency,
		s.destroyErrorsTotal,
		s.recycledTotal,
		s.idleTime,
	}
}

func (s *PrometheusSink) RecordAllocationSuccessLatency(d time.Duration) {
	s.allocationSuccessLatency.Observe(d.Seconds())
}

func (s *PrometheusSink) RecordAllocationFailureLatency(d time.Duration) {
	s.allocationFailureLatency.Observe(d.Seconds())
}

func (s *PrometheusSink) RecordResetLatency(d time.Duration) {
	s.resetLatency.Observe(d.Seconds())
}

func (s *PrometheusSink) RecordDestroyLatency(d time.Duration) {
	s.destroyLatency.Observe(d.Seconds())
}

func (s *PrometheusSink) RecordDestroyError() {
	s.destroyErrorsTotal.Inc()
}

func (s *PrometheusSink) RecordRecycled() {
	s.recycledTotal.Inc()
}

func (s *PrometheusSink) RecordIdleTime(d time.Duration) {
	s.idleTime.Observe(d.Seconds())
}
