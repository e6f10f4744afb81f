// Package executor implements the sub-recipe task execution engine: a
// bounded worker pool that runs registered tasks as child processes of a
// host agent binary, tracks their lifecycle, and streams progress back to
// a caller through a notification channel.
package executor

import (
	"sync"

	"github.com/itsneelabh/subagentpool/core"
)

// TaskRegistry is a process-wide keyed store of tasks, safe for concurrent
// use by the dispatcher (writer) and workers (readers).
type TaskRegistry struct {
	mu     sync.RWMutex
	tasks  map[string]core.Task
	logger core.Logger
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks:  make(map[string]core.Task),
		logger: &core.NoOpLogger{},
	}
}

// SetLogger configures the logger for this registry, tagging it with the
// executor component the way the framework tags its own subsystems.
func (r *TaskRegistry) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = nil
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("framework/executor")
		return
	}
	r.logger = logger
}

// Save inserts or overwrites entries. Insertion is idempotent by id: the
// last Save for a given id wins.
func (r *TaskRegistry) Save(tasks []core.Task) error {
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}

	if r.logger != nil {
		r.logger.Debug("tasks saved", map[string]interface{}{
			"count": len(tasks),
		})
	}
	return nil
}

// Get returns the task for id and whether it exists.
func (r *TaskRegistry) Get(id string) (core.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// GetMany looks up every id in order, failing fast on the first miss.
func (r *TaskRegistry) GetMany(ids []string) ([]core.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Task, 0, len(ids))
	for _, id := range ids {
		t, ok := r.tasks[id]
		if !ok {
			return nil, &core.FrameworkError{
				Op:      "TaskRegistry.GetMany",
				Kind:    "task",
				ID:      id,
				Message: "unknown task id",
				Err:     core.ErrTaskNotFound,
			}
		}
		out = append(out, t)
	}
	return out, nil
}
