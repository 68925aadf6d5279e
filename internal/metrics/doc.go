// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Settlement cycle counts, durations, and failures
//   - Trades fetched, merged, and rejected per product
//   - Feed parse errors and stream connection state
//   - Per-party obligation and balance gauges
package metrics
