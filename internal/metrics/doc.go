// Package metrics provides latency and failure aggregation for a load run.
//
// The metrics package records per-request latencies in an HDR histogram and
// keeps a breakdown of failures by kind and by status label. Counts of
// succeeded and failed requests are owned by the runner; the collector adds
// the detail needed for the report, thresholds and the dashboard.
//
// # Collector
//
//	collector := metrics.NewCollector()
//	collector.RecordRequest(latency, resp.StatusCode, err)
//	stats := collector.Stats(elapsed)
//
// # Statistics
//
// The [Stats] type provides:
//   - Request counts (total, successes, failures)
//   - Latency min, max, mean and percentiles (P50, P90, P95, P99)
//   - Requests per second
//   - Failures grouped by [ErrorKind] and by status label
//
// # Thread Safety
//
// A single mutex guards the collector; RecordRequest is safe to call from
// every worker goroutine.
package metrics
