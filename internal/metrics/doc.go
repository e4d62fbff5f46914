// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Supervisor state, reconnects and authorization failures
//   - Frame and tick rates, malformed frame counts
//   - Backoff delays
//   - Writer queue depth, drops, inserts and errors
package metrics
