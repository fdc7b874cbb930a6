// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection counts and lifetimes
//   - Command and event rates by message type
//   - Registered peer count and rendezvous outcomes
//   - Audit queue drops and flush latency
package metrics
