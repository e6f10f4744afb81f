package executor

import (
	"context"
	"time"

	"github.com/itsneelabh/subagentpool/core"
	"github.com/itsneelabh/subagentpool/resilience"
)

// Input is the structured value execute_tasks accepts: the set of
// previously-registered task ids to run.
type Input struct {
	TaskIDs []string `json:"task_ids"`
}

// ExecuteTasks is the engine's entry point (§4.G, §6.1). It looks up the
// requested tasks, applies the mode policy, and either runs them
// (returning an ExecutionResponse) or returns a RewriteResponse
// instructing the caller to reinvoke sequentially. The returned channel
// delivers Notification events as they occur; it is closed once every
// notification for this call has been sent. ctx governs cancellation:
// cancelling it kills in-flight children and causes result collection to
// short-circuit.
func ExecuteTasks(
	ctx context.Context,
	input Input,
	mode ExecutionMode,
	cfg *core.EngineConfig,
	registry *TaskRegistry,
	tracker *ExecutionTracker,
	breaker *resilience.CircuitBreaker,
) (any, <-chan core.Notification, error) {
	tasks, err := registry.GetMany(input.TaskIDs)
	if err != nil {
		return nil, nil, err
	}

	decision, err := ResolveMode(tasks, mode)
	if err != nil {
		return nil, nil, err
	}

	notifier, notifications := NewNotifier(notificationCapacity(len(tasks)), ctx.Done())

	if decision.Rewritten {
		notifier.Close()
		return NewRewriteResponse(input.TaskIDs), notifications, nil
	}

	for _, t := range tasks {
		tracker.Register(t)
		EmitTaskQueued(ctx, t.ID, string(t.Kind))
	}

	spawnRetry := resilience.NewRetryExecutor(spawnRetryConfig())
	spawnRetry.SetLogger(cfg.Logger())

	runner := &Runner{
		HostBinary: cfg.HostBinary,
		Tracker:    tracker,
		Notifier:   notifier,
		Breaker:    breaker,
		SpawnRetry: spawnRetry,
		Logger:     cfg.Logger(),
	}

	start := time.Now()

	var resp ExecutionResponse
	if decision.Mode == ModeSequential {
		resp = runSequential(ctx, tasks, tracker, runner, cfg.PerTaskTimeout(), start)
	} else {
		resp = runParallel(ctx, tasks, tracker, runner, cfg, start)
	}

	notifier.Close()
	return resp, notifications, nil
}

// runSequential bypasses channels entirely: the one task is run directly
// and its result returned as a one-entry response.
func runSequential(ctx context.Context, tasks []core.Task, tracker *ExecutionTracker, runner *Runner, timeout time.Duration, start time.Time) ExecutionResponse {
	result := runner.Run(ctx, tasks[0], timeout)
	return BuildResponse([]core.TaskResult{result}, tasks, tracker, time.Since(start))
}

// runParallel builds the bounded task/result channels, seeds the queue,
// spawns the initial workers and the scaler, and collects results until
// every task has a terminal outcome or ctx is cancelled.
func runParallel(ctx context.Context, tasks []core.Task, tracker *ExecutionTracker, runner *Runner, cfg *core.EngineConfig, start time.Time) ExecutionResponse {
	taskCh := make(chan core.Task, len(tasks))
	resultCh := make(chan core.TaskResult, len(tasks))

	for _, t := range tasks {
		taskCh <- t
	}
	close(taskCh)

	pool := NewWorkerPool(taskCh, resultCh, runner, cfg.PerTaskTimeout(), cfg.MaxWorkers, cfg.Logger())

	initial := cfg.InitialWorkers
	if initial > cfg.MaxWorkers {
		initial = cfg.MaxWorkers
	}
	for i := 0; i < initial; i++ {
		pool.SpawnWorker(ctx)
	}

	scaler := NewScaler(pool, tracker, cfg.MaxWorkers)
	go scaler.Run(ctx)

	results := make([]core.TaskResult, 0, len(tasks))
collect:
	for len(results) < len(tasks) {
		select {
		case res := <-resultCh:
			results = append(results, res)
		case <-ctx.Done():
			break collect
		}
	}

	// Cancellation: any task still Pending or Running never reached
	// resultCh. Record it as Cancelled so the aggregated response accounts
	// for every requested task.
	if len(results) < len(tasks) {
		seen := make(map[string]bool, len(results))
		for _, r := range results {
			seen[r.TaskID] = true
		}
		for _, t := range tasks {
			if seen[t.ID] {
				continue
			}
			EmitTaskCancelled(ctx, t.ID)
			result := core.TaskResult{TaskID: t.ID, Status: core.TaskStatusFailed, Error: "Cancelled"}
			_ = tracker.Cancel(t.ID, result)
			runner.Notifier.TerminalResult(t.ID, result)
			results = append(results, result)
		}
	}

	return BuildResponse(results, tasks, tracker, time.Since(start))
}
