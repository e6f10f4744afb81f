package telemetry

// This file contains metric declarations for all modules.
// It's in the telemetry package to avoid import cycles.

func init() {
	// Engine-wide metrics, emitted by core.ProductionLogger.
	DeclareMetrics("engine", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "subagentpool.engine.operations",
				Type:   "counter",
				Help:   "Logged engine operations, by level",
				Labels: []string{"level", "component"},
			},
		},
	})

	// Task lifecycle metrics, emitted by executor.Runner and executor.Scaler.
	DeclareMetrics("executor", ModuleConfig{
		Metrics: []MetricDefinition{
			{
				Name:   "subagentpool.tasks.queued",
				Type:   "counter",
				Help:   "Tasks enqueued for execution",
				Labels: []string{"task_kind"},
			},
			{
				Name:   "subagentpool.tasks.started",
				Type:   "counter",
				Help:   "Tasks that began running",
				Labels: []string{"task_kind"},
			},
			{
				Name:   "subagentpool.tasks.finished",
				Type:   "counter",
				Help:   "Tasks that reached a terminal status",
				Labels: []string{"status"},
			},
			{
				Name:    "subagentpool.tasks.duration_ms",
				Type:    "histogram",
				Help:    "Task execution duration in milliseconds",
				Labels:  []string{"status"},
				Unit:    "ms",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000, 300000},
			},
			{
				Name:   "subagentpool.tasks.output_lines",
				Type:   "counter",
				Help:   "Lines of child output captured",
				Labels: []string{"stream"},
			},
			{
				Name:   "subagentpool.workers.active",
				Type:   "gauge",
				Help:   "Currently active worker goroutines",
				Labels: []string{},
			},
			{
				Name:   "subagentpool.workers.ceiling",
				Type:   "gauge",
				Help:   "Configured maximum worker count",
				Labels: []string{},
			},
			{
				Name:   "subagentpool.scaler.grew",
				Type:   "counter",
				Help:   "Number of times the scaler spawned an additional worker",
				Labels: []string{},
			},
		},
	})
}
