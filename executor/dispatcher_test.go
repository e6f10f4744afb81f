package executor

import (
	"context"
	"testing"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

func drainNotifications(ch <-chan core.Notification) []core.Notification {
	var out []core.Notification
	for n := range ch {
		out = append(out, n)
	}
	return out
}

func TestExecuteTasks_SingleTextTaskSuccess(t *testing.T) {
	cfg, err := core.NewEngineConfig(core.WithHostBinary("true"), core.WithPerTaskTimeout(5))
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1")})
	tracker := NewExecutionTracker()

	out, notifications, err := ExecuteTasks(context.Background(), Input{TaskIDs: []string{"t1"}}, ModeSequential, cfg, registry, tracker, nil)
	if err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}
	drainNotifications(notifications)

	resp, ok := out.(ExecutionResponse)
	if !ok {
		t.Fatalf("response type = %T, want ExecutionResponse", out)
	}
	if resp.Status != "completed" || len(resp.Results) != 1 || resp.Results[0].Status != core.TaskStatusCompleted {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestExecuteTasks_ParallelRunWithAFailure(t *testing.T) {
	cfg, err := core.NewEngineConfig(
		core.WithHostBinary("false"),
		core.WithPerTaskTimeout(5),
		core.WithInitialWorkers(2),
		core.WithMaxWorkers(2),
	)
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1"), textTask("t2")})
	tracker := NewExecutionTracker()

	out, notifications, err := ExecuteTasks(context.Background(), Input{TaskIDs: []string{"t1", "t2"}}, ModeParallel, cfg, registry, tracker, nil)
	if err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}
	drainNotifications(notifications)

	resp := out.(ExecutionResponse)
	if resp.Status != "failed" {
		t.Fatalf("resp.Status = %q, want failed", resp.Status)
	}
	if resp.Stats.Failed != 2 || resp.Stats.Completed != 0 {
		t.Fatalf("resp.Stats = %+v, want both tasks failed", resp.Stats)
	}
	if resp.Summary == "" {
		t.Error("expected a non-empty failure summary")
	}
}

func TestExecuteTasks_SequentialWhenRepeatedRewrite(t *testing.T) {
	cfg, err := core.NewEngineConfig(core.WithHostBinary("true"), core.WithPerTaskTimeout(5))
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1"), sequentialWhenRepeatedTask("t2")})
	tracker := NewExecutionTracker()

	out, notifications, err := ExecuteTasks(context.Background(), Input{TaskIDs: []string{"t1", "t2"}}, ModeParallel, cfg, registry, tracker, nil)
	if err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}
	drainNotifications(notifications)

	rr, ok := out.(RewriteResponse)
	if !ok {
		t.Fatalf("response type = %T, want RewriteResponse", out)
	}
	if rr.ExecutionMode != "sequential" {
		t.Errorf("ExecutionMode = %q, want sequential", rr.ExecutionMode)
	}
	if len(rr.TaskIDs) != 2 {
		t.Errorf("TaskIDs = %v, want both ids echoed back", rr.TaskIDs)
	}

	total, _, _, completed, _ := tracker.Counts()
	if total != 0 || completed != 0 {
		t.Error("no task should have been registered with the tracker on a rewrite, since nothing ran")
	}
}

func TestExecuteTasks_ParallelRunStartsFromZeroInitialWorkers(t *testing.T) {
	// §8 boundary case: initial_workers = 0 must still drain correctly,
	// relying entirely on the scaler to spawn the first worker.
	cfg, err := core.NewEngineConfig(
		core.WithHostBinary("true"),
		core.WithPerTaskTimeout(5),
		core.WithInitialWorkers(0),
		core.WithMaxWorkers(3),
	)
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1"), textTask("t2"), textTask("t3")})
	tracker := NewExecutionTracker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, notifications, err := ExecuteTasks(ctx, Input{TaskIDs: []string{"t1", "t2", "t3"}}, ModeParallel, cfg, registry, tracker, nil)
	if err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}
	drainNotifications(notifications)

	resp, ok := out.(ExecutionResponse)
	if !ok {
		t.Fatalf("response type = %T, want ExecutionResponse", out)
	}
	if resp.Status != "completed" || resp.Stats.Completed != 3 {
		t.Fatalf("resp = %+v, want all 3 tasks completed despite zero initial workers", resp)
	}
}

func TestExecuteTasks_Timeout(t *testing.T) {
	cfg, err := core.NewEngineConfig(core.WithHostBinary("yes"), core.WithPerTaskTimeout(30))
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1")})
	tracker := NewExecutionTracker()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, notifications, err := ExecuteTasks(ctx, Input{TaskIDs: []string{"t1"}}, ModeSequential, cfg, registry, tracker, nil)
	if err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}
	drainNotifications(notifications)

	resp := out.(ExecutionResponse)
	if resp.Status != "failed" || resp.Results[0].Error != "Task timeout" {
		t.Fatalf("resp = %+v, want a Task timeout failure", resp)
	}
}

func TestExecuteTasks_CancellationMidFlight(t *testing.T) {
	cfg, err := core.NewEngineConfig(
		core.WithHostBinary("yes"),
		core.WithPerTaskTimeout(30),
		core.WithInitialWorkers(1),
		core.WithMaxWorkers(1),
	)
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1"), textTask("t2")})
	tracker := NewExecutionTracker()

	ctx, cancel := context.WithCancel(context.Background())

	respCh := make(chan any, 1)
	var notifications <-chan core.Notification
	go func() {
		resp, n, err := ExecuteTasks(ctx, Input{TaskIDs: []string{"t1", "t2"}}, ModeParallel, cfg, registry, tracker, nil)
		if err != nil {
			t.Errorf("ExecuteTasks: %v", err)
		}
		notifications = n
		respCh <- resp
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case out := <-respCh:
		resp := out.(ExecutionResponse)
		if resp.Status != "failed" {
			t.Fatalf("resp.Status = %q, want failed", resp.Status)
		}
		var sawCancelled bool
		for _, r := range resp.Results {
			if r.Error == "Cancelled" {
				sawCancelled = true
			}
		}
		if !sawCancelled {
			t.Errorf("resp.Results = %+v, want at least one Cancelled result", resp.Results)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteTasks did not return after context cancellation")
	}
	if notifications != nil {
		drainNotifications(notifications)
	}
}

func TestExecuteTasks_UnknownTaskID(t *testing.T) {
	cfg, err := core.NewEngineConfig(core.WithHostBinary("true"), core.WithPerTaskTimeout(5))
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	registry := NewTaskRegistry()
	_ = registry.Save([]core.Task{textTask("t1")})
	tracker := NewExecutionTracker()

	_, _, err = ExecuteTasks(context.Background(), Input{TaskIDs: []string{"does-not-exist"}}, ModeSequential, cfg, registry, tracker, nil)
	if err == nil {
		t.Fatal("expected an error for an unregistered task id")
	}
	fe, ok := err.(*core.FrameworkError)
	if !ok {
		t.Fatalf("expected *core.FrameworkError, got %T", err)
	}
	if fe.ID != "does-not-exist" {
		t.Errorf("FrameworkError.ID = %q, want %q", fe.ID, "does-not-exist")
	}
}
