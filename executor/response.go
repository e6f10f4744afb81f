package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

// ExecutionResponse is the structured value execute_tasks returns to its
// caller once every task has reached a terminal status (or collection was
// short-circuited by cancellation).
type ExecutionResponse struct {
	Status  string            `json:"status"`
	Results []core.TaskResult `json:"results"`
	Stats   core.ExecutionStats `json:"stats"`

	// Summary is a human-readable, multi-line error digest populated only
	// when Status is "failed"; it is what an LLM orchestrator reads to
	// decide what to retry.
	Summary string `json:"summary,omitempty"`
}

// RewriteResponse is returned instead of ExecutionResponse when the mode
// policy rewrites a parallel request to sequential (§4.G step 2, §4.H).
// No task is executed in this case.
type RewriteResponse struct {
	ExecutionMode string   `json:"execution_mode"`
	TaskIDs       []string `json:"task_ids"`
	Results       []string `json:"results"`
}

// NewRewriteResponse builds the rewrite payload instructing the caller to
// reinvoke execute_tasks in sequential mode with the same ids.
func NewRewriteResponse(taskIDs []string) RewriteResponse {
	return RewriteResponse{
		ExecutionMode: "sequential",
		TaskIDs:       taskIDs,
		Results: []string{
			"the tasks should be executed sequentially, one at a time, by calling this tool again with execution_mode=\"sequential\" for each task id",
		},
	}
}

// BuildResponse aggregates per-task results into the final
// ExecutionResponse, formatting a human-readable summary for any failures
// per §7.
func BuildResponse(results []core.TaskResult, tasks []core.Task, tracker *ExecutionTracker, elapsed time.Duration) ExecutionResponse {
	stats := core.ExecutionStats{
		TotalTasks:      len(results),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}

	descByID := make(map[string]string, len(tasks))
	for _, t := range tasks {
		descByID[t.ID] = displayName(t)
	}

	var failedLines []string
	status := "completed"
	for _, res := range results {
		switch res.Status {
		case core.TaskStatusCompleted:
			stats.Completed++
		case core.TaskStatusFailed:
			stats.Failed++
			status = "failed"
			failedLines = append(failedLines, formatFailure(res, descByID[res.TaskID], tracker))
		}
	}

	resp := ExecutionResponse{
		Status:  status,
		Results: results,
		Stats:   stats,
	}

	if len(failedLines) > 0 {
		resp.Summary = fmt.Sprintf("%d/%d tasks failed:\n%s", len(failedLines), len(results), strings.Join(failedLines, "\n"))
	}

	return resp
}

// formatFailure renders one failed task's summary line: id, description,
// error, and a trimmed partial-output snippet.
func formatFailure(res core.TaskResult, description string, tracker *ExecutionTracker) string {
	partial := "No output captured"
	if tracker != nil {
		if info, ok := tracker.Snapshot(res.TaskID); ok {
			trimmed := strings.TrimSpace(info.CurrentOutput)
			if trimmed != "" {
				partial = truncateOutput(trimmed, 500)
			}
		}
	}

	return fmt.Sprintf("- %s (%s): %s\n  partial_output: %s", res.TaskID, description, res.Error, partial)
}

// truncateOutput trims a partial-output snippet to at most max runes,
// marking truncation explicitly.
func truncateOutput(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "... (truncated)"
}
