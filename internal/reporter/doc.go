// Package reporter implements the periodic stats line.
//
// The Reporter:
//   - Samples relay state on a fixed interval (default 1m)
//   - Logs absolute gauges (connections, peers) and per-interval deltas of
//     router counters (commands, deliveries, misses)
//   - Reports audit writer counters when the audit trail is enabled
package reporter
