// Package metrics implements the engine's in-process metric system: fixed-ID
// atomic counters padded to cache lines, plus an optional latency histogram
// for the verification hot path. Exporters read point-in-time snapshots; the
// hot path never takes a lock.
package metrics
