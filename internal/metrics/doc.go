// Package metrics measures generate calls and aggregates benchmark outcomes.
//
// Two layers live here. [Metrics] describes a single completed call: its
// wall-clock latency across all attempts, the token usage and billed cost
// the provider reported (when it did), and every backoff pause the call sat
// through. [Collector] aggregates finished cases into a [Summary] with
// latency percentiles backed by an HdrHistogram:
//
//	collector := metrics.NewCollector()
//
//	// Record a finished case
//	collector.Record(model, m, passed, errClass)
//
//	// Get aggregated statistics
//	summary := collector.Snapshot(elapsed)
//
// The Summary carries pass/fail/error counts, latency percentiles
// (P50, P90, P99), token and cost totals, retry counts, and per-model and
// per-error-class breakdowns.
//
// # Thread Safety
//
// The Collector serializes access with a mutex; it is safe to call Record
// from multiple goroutines while a dashboard polls Snapshot.
package metrics
