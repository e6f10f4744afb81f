package executor

// Centralized telemetry emission for the execution engine, grounded on
// the framework's orchestration task-telemetry helpers and renamed to
// this engine's vocabulary. A missing or no-op telemetry provider makes
// every one of these calls a cheap no-op: telemetry here is additive,
// never load-bearing.

import (
	"context"
	"time"

	"github.com/itsneelabh/subagentpool/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// EmitTaskQueued emits a metric and span event when a task is enqueued.
func EmitTaskQueued(ctx context.Context, taskID string, kind string) {
	telemetry.Counter("subagentpool.tasks.queued", "task_kind", kind)
	telemetry.AddSpanEvent(ctx, "task.queued",
		attribute.String("task_id", taskID),
		attribute.String("task_kind", kind),
	)
}

// EmitTaskStarted emits a metric and span event when a worker begins
// running a task.
func EmitTaskStarted(ctx context.Context, taskID string, kind string) {
	telemetry.Counter("subagentpool.tasks.started", "task_kind", kind)
	telemetry.AddSpanEvent(ctx, "task.started",
		attribute.String("task_id", taskID),
		attribute.String("task_kind", kind),
	)
}

// EmitOutputLine emits a counter for each line of child output captured.
func EmitOutputLine(taskID string, stream string) {
	telemetry.Counter("subagentpool.tasks.output_lines", "stream", stream)
}

// EmitTaskCompleted emits completion metrics and a span event for a
// successful task.
func EmitTaskCompleted(ctx context.Context, taskID string, duration time.Duration) {
	telemetry.Counter("subagentpool.tasks.finished", "status", "completed")
	telemetry.Histogram("subagentpool.tasks.duration_ms", float64(duration.Milliseconds()), "status", "completed")
	telemetry.AddSpanEvent(ctx, "task.completed",
		attribute.String("task_id", taskID),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)
}

// EmitTaskFailed emits failure metrics and a span event, recording err on
// the active span.
func EmitTaskFailed(ctx context.Context, taskID string, duration time.Duration, err error) {
	telemetry.Counter("subagentpool.tasks.finished", "status", "failed")
	telemetry.Histogram("subagentpool.tasks.duration_ms", float64(duration.Milliseconds()), "status", "failed")

	attrs := []attribute.KeyValue{
		attribute.String("task_id", taskID),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	telemetry.AddSpanEvent(ctx, "task.failed", attrs...)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
	}
}

// EmitTaskTimeout emits a metric and span event when a task's per-task
// deadline expires.
func EmitTaskTimeout(ctx context.Context, taskID string, timeout time.Duration) {
	telemetry.Counter("subagentpool.tasks.finished", "status", "timeout")
	telemetry.AddSpanEvent(ctx, "task.timeout",
		attribute.String("task_id", taskID),
		attribute.Int64("timeout_ms", timeout.Milliseconds()),
	)
}

// EmitTaskCancelled emits a metric and span event when a task is killed
// due to caller cancellation.
func EmitTaskCancelled(ctx context.Context, taskID string) {
	telemetry.Counter("subagentpool.tasks.finished", "status", "cancelled")
	telemetry.AddSpanEvent(ctx, "task.cancelled", attribute.String("task_id", taskID))
}

// EmitWorkerStarted emits a counter and gauge when a worker goroutine
// starts.
func EmitWorkerStarted(activeCount int) {
	telemetry.Counter("subagentpool.workers.started")
	telemetry.Gauge("subagentpool.workers.active", float64(activeCount))
}

// EmitWorkerStopped emits a counter and gauge when a worker goroutine
// exits.
func EmitWorkerStopped(activeCount int) {
	telemetry.Counter("subagentpool.workers.stopped")
	telemetry.Gauge("subagentpool.workers.active", float64(activeCount))
}

// EmitScalerGrew emits a counter each time the scaler spawns an
// additional worker.
func EmitScalerGrew(activeCount, maxWorkers int) {
	telemetry.Counter("subagentpool.scaler.grew")
	telemetry.Gauge("subagentpool.workers.ceiling", float64(maxWorkers))
	telemetry.Gauge("subagentpool.workers.active", float64(activeCount))
}
