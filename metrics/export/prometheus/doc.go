// Package prometheus provides Prometheus collectors for tokenguard metrics.
//
// [NewPrometheusExporter] accepts a [tokenguard.Engine] and exposes an
// [http.Handler] that renders all tokenguard counters and histograms in
// Prometheus text exposition format. Counter names are prefixed
// tokenguard_*_total; the single histogram is tokenguard_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
