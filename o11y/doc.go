// Package o11y provides the observability primitives of the knowledge-base
// backend: structured logging via slog, OpenTelemetry metrics, and health
// checks.
//
// # Logging
//
// [Logger] wraps slog.Logger with context-aware convenience methods and
// functional options:
//
//	logger := o11y.NewLogger(
//	    o11y.WithLogLevel("debug"),
//	    o11y.WithJSON(),
//	)
//	logger.Info(ctx, "file ingested", "file_id", id, "chunks", n)
//
// Loggers propagate through context via [WithLogger] and [FromContext].
//
// # Metrics
//
// Pre-registered instruments track streaming chunks, retrieval searches, and
// pipeline step durations:
//
//	o11y.ChunkEmitted(ctx, "text")
//	o11y.SearchPerformed(ctx, "elasticsearch")
//	o11y.StepDuration(ctx, "sql_flow_step_2_check_run", elapsedMs)
//
// [InitMeter] configures the package-level meter with a service name. Generic
// [Counter] and [Histogram] record ad-hoc metrics.
//
// # Health Checks
//
// Each backend store registers a [HealthChecker] with a [HealthRegistry];
// [HealthRegistry.CheckAll] probes them concurrently.
package o11y
