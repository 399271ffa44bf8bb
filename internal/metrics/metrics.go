package metrics

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/example/derma-check/internal/analysis"
)

// Registry holds in-process counters. The recording methods are safe on a
// nil receiver so components can run without metrics.
type Registry struct {
	requestsTotal      atomic.Uint64
	requestsInProgress atomic.Int64
	requestsSuccess    atomic.Uint64
	requestsFailed     atomic.Uint64

	analysesTotal   atomic.Uint64
	extracted       atomic.Uint64
	limitedFallback atomic.Uint64
	parseFallback   atomic.Uint64

	upstreamTimeout   atomic.Uint64
	upstreamQueueBusy atomic.Uint64
	upstreamFailed    atomic.Uint64

	startTime time.Time
}

// NewRegistry returns an empty Registry whose uptime starts now.
func NewRegistry() *Registry {
	return &Registry{startTime: time.Now()}
}

// RequestStarted marks an HTTP request as in flight and returns a func that
// records its final status.
func (r *Registry) RequestStarted() func(status int) {
	if r == nil {
		return func(int) {}
	}
	r.requestsTotal.Add(1)
	r.requestsInProgress.Add(1)
	return func(status int) {
		r.requestsInProgress.Add(-1)
		if status >= 200 && status < 400 {
			r.requestsSuccess.Add(1)
		} else {
			r.requestsFailed.Add(1)
		}
	}
}

// ObserveOutcome counts a normalized result by the branch that produced it.
func (r *Registry) ObserveOutcome(outcome analysis.Outcome) {
	if r == nil {
		return
	}
	r.analysesTotal.Add(1)
	switch outcome {
	case analysis.OutcomeExtracted:
		r.extracted.Add(1)
	case analysis.OutcomeLimitedFallback:
		r.limitedFallback.Add(1)
	case analysis.OutcomeParseFallback:
		r.parseFallback.Add(1)
	}
}

// ObserveFailure counts an upstream failure by kind.
func (r *Registry) ObserveFailure(kind analysis.FailureKind) {
	if r == nil {
		return
	}
	r.analysesTotal.Add(1)
	switch kind {
	case analysis.FailureTimeout:
		r.upstreamTimeout.Add(1)
	case analysis.FailureQueueBusy:
		r.upstreamQueueBusy.Add(1)
	default:
		r.upstreamFailed.Add(1)
	}
}

// Snapshot returns the counters in a JSON-friendly form.
func (r *Registry) Snapshot() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"requests_total":       r.requestsTotal.Load(),
		"requests_in_progress": r.requestsInProgress.Load(),
		"requests_success":     r.requestsSuccess.Load(),
		"requests_failed":      r.requestsFailed.Load(),
		"analyses": map[string]any{
			"total":            r.analysesTotal.Load(),
			"extracted":        r.extracted.Load(),
			"limited_fallback": r.limitedFallback.Load(),
			"parse_fallback":   r.parseFallback.Load(),
		},
		"upstream_failures": map[string]any{
			"timeout":         r.upstreamTimeout.Load(),
			"queue_busy":      r.upstreamQueueBusy.Load(),
			"analysis_failed": r.upstreamFailed.Load(),
		},
		"uptime_seconds": time.Since(r.startTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"num_gc":      m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}
