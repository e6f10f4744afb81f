package executor

import (
	"context"
	"testing"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

func TestScaler_StopsOnceAllTasksTerminal(t *testing.T) {
	tracker := NewExecutionTracker()
	tracker.Register(textTask("t1"))
	_ = tracker.Start("t1")
	_ = tracker.Finish("t1", core.TaskResult{TaskID: "t1", Status: core.TaskStatusCompleted})

	tasks := make(chan core.Task)
	results := make(chan core.TaskResult)
	runner := &Runner{HostBinary: "true", Tracker: tracker, Logger: &core.NoOpLogger{}}
	pool := NewWorkerPool(tasks, results, runner, time.Second, 4, &core.NoOpLogger{})

	scaler := NewScaler(pool, tracker, 4)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		scaler.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scaler did not return once all tasks were terminal")
	}
}

func TestScaler_GrowsWhilePendingWorkRemains(t *testing.T) {
	tracker := NewExecutionTracker()
	tracker.Register(textTask("t1"))
	tracker.Register(textTask("t2"))
	_ = tracker.Start("t1")
	_ = tracker.Finish("t1", core.TaskResult{TaskID: "t1", Status: core.TaskStatusCompleted})
	// t2 stays Pending: the scaler should grow the pool to pick it up.

	tasks := make(chan core.Task)
	results := make(chan core.TaskResult)
	runner := &Runner{HostBinary: "true", Tracker: tracker, Logger: &core.NoOpLogger{}}
	pool := NewWorkerPool(tasks, results, runner, time.Second, 4, &core.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scaler := NewScaler(pool, tracker, 4)
	go scaler.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.ActiveWorkers() > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scaler never grew the pool despite pending work and a completed task")
}

func TestScaler_GrowsFromZeroActiveWorkers(t *testing.T) {
	// Regression test: with no initial workers and nothing yet completed,
	// the scaler must still be able to bootstrap from a cold start
	// (every task Pending, zero active workers) instead of waiting for a
	// task to finish before it ever spawns one.
	tracker := NewExecutionTracker()
	tracker.Register(textTask("t1"))
	tracker.Register(textTask("t2"))

	tasks := make(chan core.Task)
	results := make(chan core.TaskResult)
	runner := &Runner{HostBinary: "true", Tracker: tracker, Logger: &core.NoOpLogger{}}
	pool := NewWorkerPool(tasks, results, runner, time.Second, 4, &core.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scaler := NewScaler(pool, tracker, 4)
	go scaler.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.ActiveWorkers() > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scaler never spawned a worker from a cold start with zero active workers")
}

func TestScaler_DoesNotExceedMaxWorkers(t *testing.T) {
	tracker := NewExecutionTracker()
	for _, id := range []string{"t1", "t2", "t3"} {
		tracker.Register(textTask(id))
	}
	_ = tracker.Start("t1")
	_ = tracker.Finish("t1", core.TaskResult{TaskID: "t1", Status: core.TaskStatusCompleted})

	tasks := make(chan core.Task)
	results := make(chan core.TaskResult)
	runner := &Runner{HostBinary: "true", Tracker: tracker, Logger: &core.NoOpLogger{}}
	pool := NewWorkerPool(tasks, results, runner, time.Second, 4, &core.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scaler := NewScaler(pool, tracker, 1)
	go scaler.Run(ctx)

	time.Sleep(500 * time.Millisecond)
	if pool.ActiveWorkers() > 1 {
		t.Errorf("ActiveWorkers() = %d, want <= 1 (the configured maxWorkers)", pool.ActiveWorkers())
	}
}
