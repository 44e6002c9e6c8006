// Package observability wires OpenTelemetry tracing and metrics and the
// slog logger used by every command.
//
// Without an OTLP endpoint or Prometheus the providers are no-ops. Metrics
// plugs into the agent runtime (model calls and tokens), the chunk-retry
// controller and the review engine (finished runs).
package observability
