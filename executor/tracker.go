package executor

import (
	"sync"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

// ExecutionTracker holds the mutable per-task status record for one
// execute-tasks call. Start/append/finish share a single mutex because
// the read-modify-write each performs must be atomic with respect to the
// others touching the same id.
type ExecutionTracker struct {
	mu     sync.Mutex
	tasks  map[string]*core.TaskInfo
	logger core.Logger
}

// NewExecutionTracker creates an empty tracker.
func NewExecutionTracker() *ExecutionTracker {
	return &ExecutionTracker{
		tasks:  make(map[string]*core.TaskInfo),
		logger: &core.NoOpLogger{},
	}
}

// SetLogger configures the logger for this tracker.
func (t *ExecutionTracker) SetLogger(logger core.Logger) {
	if logger == nil {
		t.logger = nil
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		t.logger = cal.WithComponent("framework/executor")
		return
	}
	t.logger = logger
}

// Register creates a Pending entry for task.
func (t *ExecutionTracker) Register(task core.Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tasks[task.ID] = &core.TaskInfo{
		Task:   task,
		Status: core.TaskStatusPending,
	}
}

// Start transitions a task from Pending to Running, recording the start
// time. It fails if the task is not currently Pending.
func (t *ExecutionTracker) Start(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.tasks[id]
	if !ok {
		return &core.FrameworkError{Op: "ExecutionTracker.Start", Kind: "task", ID: id, Message: "unknown task", Err: core.ErrTaskNotFound}
	}
	if info.Status != core.TaskStatusPending {
		return &core.FrameworkError{Op: "ExecutionTracker.Start", Kind: "task", ID: id, Message: "task is not pending", Err: core.ErrNotPending}
	}

	now := time.Now()
	info.Status = core.TaskStatusRunning
	info.StartTime = &now
	return nil
}

// AppendOutput appends a line (with trailing newline) to current_output
// while the task is Running. It is silently ignored otherwise: a child
// process may emit a final line after the tracker has already recorded a
// terminal status due to timeout or cancellation.
func (t *ExecutionTracker) AppendOutput(id, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.tasks[id]
	if !ok || info.Status != core.TaskStatusRunning {
		return
	}
	info.CurrentOutput += line + "\n"
}

// Finish transitions a task from Running to a terminal status, recording
// the end time and result. It fails if the task is not currently Running.
func (t *ExecutionTracker) Finish(id string, result core.TaskResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.tasks[id]
	if !ok {
		return &core.FrameworkError{Op: "ExecutionTracker.Finish", Kind: "task", ID: id, Message: "unknown task", Err: core.ErrTaskNotFound}
	}
	if info.Status != core.TaskStatusRunning {
		return &core.FrameworkError{Op: "ExecutionTracker.Finish", Kind: "task", ID: id, Message: "task is not running", Err: core.ErrNotRunning}
	}

	now := time.Now()
	info.Status = result.Status
	info.EndTime = &now
	info.Result = &result
	return nil
}

// Cancel forces a task directly into a terminal status regardless of its
// current status (Pending or Running), for a task that never reached the
// result channel because the caller's cancellation token fired first.
// It is a no-op, returning core.ErrTaskNotCancellable, if the task is
// already terminal.
func (t *ExecutionTracker) Cancel(id string, result core.TaskResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.tasks[id]
	if !ok {
		return &core.FrameworkError{Op: "ExecutionTracker.Cancel", Kind: "task", ID: id, Message: "unknown task", Err: core.ErrTaskNotFound}
	}
	if info.Status.IsTerminal() {
		return &core.FrameworkError{Op: "ExecutionTracker.Cancel", Kind: "task", ID: id, Message: "task already terminal", Err: core.ErrTaskNotCancellable}
	}

	now := time.Now()
	if info.StartTime == nil {
		info.StartTime = &now
	}
	info.Status = result.Status
	info.EndTime = &now
	info.Result = &result
	return nil
}

// Snapshot returns a copy of the task's current tracker record.
func (t *ExecutionTracker) Snapshot(id string) (core.TaskInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.tasks[id]
	if !ok {
		return core.TaskInfo{}, false
	}
	return *info, true
}

// Counts returns the five aggregates the scaler and dispatcher need.
func (t *ExecutionTracker) Counts() (total, pending, running, completed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total = len(t.tasks)
	for _, info := range t.tasks {
		switch info.Status {
		case core.TaskStatusPending:
			pending++
		case core.TaskStatusRunning:
			running++
		case core.TaskStatusCompleted:
			completed++
		case core.TaskStatusFailed:
			failed++
		}
	}
	return
}
