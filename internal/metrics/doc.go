// Package metrics exposes Prometheus collectors for the ledger.
//
// A Metrics value owns its registry so tests and embedded servers do not
// collide on the process-wide default registerer. It satisfies
// ledger.Observer and the pebble MetricsHook, and carries the live-tail
// counters used by the sessions service.
package metrics
