// Package prometheus exposes otpauth metrics as a prometheus.Collector.
//
// [NewPrometheusExporter] wraps an [otpauth.Engine]. Register the exporter
// with any registry, or mount [PrometheusExporter.Handler] which serves it
// from a private one. Counter names are otpauth_*_total; the single
// histogram is otpauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
