package executor

import "github.com/itsneelabh/subagentpool/core"

// Notifier is the sender half of the notification stream handed to
// execute_tasks. It is a thin wrapper over a channel so the runner and
// dispatcher can emit typed events without every call site repeating a
// select-on-done guard.
type Notifier struct {
	ch   chan core.Notification
	done <-chan struct{}
}

// NewNotifier creates a notification channel buffered to capacity. Per
// spec, capacity should be at least taskCount times the expected lines
// per task so workers rarely suspend on send.
func NewNotifier(capacity int, done <-chan struct{}) (*Notifier, <-chan core.Notification) {
	if capacity < 1 {
		capacity = 1
	}
	ch := make(chan core.Notification, capacity)
	return &Notifier{ch: ch, done: done}, ch
}

// notificationCapacity computes the buffer size required for taskCount
// tasks, per §4.I: capacity >= tasks * expected-lines-per-task.
func notificationCapacity(taskCount int) int {
	const expectedLinesPerTask = 8
	c := taskCount * expectedLinesPerTask
	if c < 16 {
		c = 16
	}
	return c
}

// StatusChanged emits a StatusChanged notification. Send is best-effort:
// if the receiver has gone away (done fired), the event is dropped rather
// than blocking the worker forever.
func (n *Notifier) StatusChanged(taskID string, status core.TaskStatus) {
	n.send(core.Notification{
		Kind:      core.NotificationStatusChanged,
		TaskID:    taskID,
		NewStatus: status,
	})
}

// OutputLine emits an OutputLine notification for one line of child output.
func (n *Notifier) OutputLine(taskID string, stream core.OutputStream, line string) {
	n.send(core.Notification{
		Kind:   core.NotificationOutputLine,
		TaskID: taskID,
		Stream: stream,
		Line:   line,
	})
}

// TerminalResult emits a TerminalResult notification summarizing a task's
// outcome. Ordering guarantee: the dispatcher only calls this after every
// OutputLine for taskID has already been sent.
func (n *Notifier) TerminalResult(taskID string, result core.TaskResult) {
	n.send(core.Notification{
		Kind:    core.NotificationTerminalResult,
		TaskID:  taskID,
		Summary: &result,
	})
}

func (n *Notifier) send(evt core.Notification) {
	select {
	case n.ch <- evt:
	case <-n.done:
	}
}

// Close closes the sender half. Any notifications already buffered remain
// available to a caller still draining the receiver.
func (n *Notifier) Close() {
	close(n.ch)
}
