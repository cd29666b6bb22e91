// Package observability provides structured logging and Prometheus metrics
// for the shelf registry.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and field-chaining helpers:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("plugin_id", id).Info("release committed")
//
// A request-scoped logger travels in the request context; use FromContext to
// recover it together with the request ID.
//
// # Metrics
//
// Metrics registers counters for the submission workflow (staged, committed,
// retired) alongside HTTP and storage counters. Expose them with
// Metrics.Handler() on /metrics.
package observability
