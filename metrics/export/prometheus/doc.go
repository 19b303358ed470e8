// Package prometheus renders pairmint metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [pairmint.Engine] and exposes an
// [http.Handler] that renders every counter and histogram. Counter names
// are prefixed pairmint_*_total; the single histogram is
// pairmint_rotate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
