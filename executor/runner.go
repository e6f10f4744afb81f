package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/itsneelabh/subagentpool/core"
	"github.com/itsneelabh/subagentpool/resilience"
)

// Runner spawns the host binary for one task at a time and streams its
// output to the tracker and notifier.
type Runner struct {
	HostBinary string
	Tracker    *ExecutionTracker
	Notifier   *Notifier
	Breaker    *resilience.CircuitBreaker
	SpawnRetry *resilience.RetryExecutor
	Logger     core.Logger
}

// killGrace bounds how long a cancelled or timed-out child is given to
// exit after SIGTERM before Cmd.Wait forcibly kills it and closes its
// pipes, per Cmd.WaitDelay.
const killGrace = 2 * time.Second

// spawnRetryConfig allows a couple of quick retries for a host binary
// spawn that fails for a transient OS-level reason (e.g. a momentary
// fork/exec resource shortage under load). It is deliberately short: a
// permanently missing or broken binary should still fail fast rather
// than stall every task behind a long backoff.
func spawnRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  25 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterEnabled: false,
	}
}

// buildArgs derives the child command's argument vector from the task
// kind, per the host binary contract.
func buildArgs(hostBinary string, task core.Task) ([]string, error) {
	switch task.Kind {
	case core.TaskKindSubRecipe:
		path, _ := task.SubRecipePath()
		params, _ := task.CommandParameters()
		args := []string{hostBinary, "run", "--recipe", path}
		for k, v := range params {
			args = append(args, "--params", fmt.Sprintf("%s=%s", k, v))
		}
		return args, nil
	case core.TaskKindTextInstruction:
		text, _ := task.TextInstructionText()
		return []string{hostBinary, "run", "--text", text}, nil
	default:
		return nil, &core.FrameworkError{Op: "buildArgs", Kind: "task", ID: task.ID, Message: fmt.Sprintf("unknown task kind %q", task.Kind)}
	}
}

// displayName returns the identifier used to prefix human-visible output:
// "sub-recipe <name>" for sub-recipe tasks, the task id otherwise.
func displayName(task core.Task) string {
	if name, ok := task.SubRecipeName(); ok {
		return "sub-recipe " + name
	}
	return task.ID
}

// Run spawns the child for task, streams its output, and returns a
// terminal TaskResult. Run itself never returns an error — every outcome
// is encoded in the returned TaskResult, matching the "per-task errors
// never abort the pool" propagation policy.
func (r *Runner) Run(ctx context.Context, task core.Task, timeout time.Duration) core.TaskResult {
	start := time.Now()

	if r.Notifier != nil {
		r.Notifier.StatusChanged(task.ID, core.TaskStatusRunning)
	}
	if err := r.Tracker.Start(task.ID); err != nil {
		return r.fail(task.ID, fmt.Sprintf("failed to start task: %v", err))
	}
	EmitTaskStarted(ctx, task.ID, string(task.Kind))

	args, err := buildArgs(r.HostBinary, task)
	if err != nil {
		return r.fail(task.ID, err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := r.spawnAndStream(runCtx, task, args)
	r.emitOutcome(ctx, result, time.Since(start))
	return result
}

// emitOutcome emits the terminal telemetry event matching result.Error,
// distinguishing timeout and cancellation from a generic failure.
func (r *Runner) emitOutcome(ctx context.Context, result core.TaskResult, duration time.Duration) {
	switch {
	case result.Status == core.TaskStatusCompleted:
		EmitTaskCompleted(ctx, result.TaskID, duration)
	case result.Error == "Task timeout":
		EmitTaskTimeout(ctx, result.TaskID, duration)
	case result.Error == "Cancelled":
		EmitTaskCancelled(ctx, result.TaskID)
	default:
		EmitTaskFailed(ctx, result.TaskID, duration, errors.New(result.Error))
	}
}

func (r *Runner) spawnAndStream(ctx context.Context, task core.Task, args []string) core.TaskResult {
	var cmd *exec.Cmd
	var stdout, stderr io.ReadCloser

	spawn := func() error {
		c := exec.CommandContext(ctx, args[0], args[1:]...)
		c.Cancel = func() error {
			if runtime.GOOS == "windows" {
				return c.Process.Kill()
			}
			return c.Process.Signal(syscall.SIGTERM)
		}
		c.WaitDelay = killGrace
		so, err := c.StdoutPipe()
		if err != nil {
			return err
		}
		se, err := c.StderrPipe()
		if err != nil {
			return err
		}
		if err := c.Start(); err != nil {
			return err
		}
		cmd, stdout, stderr = c, so, se
		return nil
	}

	retrying := spawn
	if r.SpawnRetry != nil {
		retrying = func() error { return r.SpawnRetry.Execute(ctx, task.ID, spawn) }
	}

	var err error
	if r.Breaker != nil {
		err = r.Breaker.Execute(ctx, retrying)
	} else {
		err = retrying()
	}
	if err != nil {
		return r.fail(task.ID, fmt.Sprintf("Failed to spawn host binary: %v", err))
	}

	var outBuf, errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	go r.streamLines(&wg, &mu, task.ID, core.StreamStdout, stdout, &outBuf)
	go r.streamLines(&wg, &mu, task.ID, core.StreamStderr, stderr, &errBuf)
	wg.Wait()

	waitErr := cmd.Wait()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return r.fail(task.ID, "Task timeout")
	case ctx.Err() == context.Canceled:
		return r.fail(task.ID, "Cancelled")
	case waitErr == nil:
		return r.ok(task.ID, outBuf.String())
	default:
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = "Command failed"
		}
		return r.fail(task.ID, msg)
	}
}

// streamLines reads line by line from a child pipe until EOF, appending
// each stripped line to the tracker's current_output and emitting an
// OutputLine notification for it.
func (r *Runner) streamLines(wg *sync.WaitGroup, mu *sync.Mutex, taskID string, stream core.OutputStream, pipe io.Reader, buf *strings.Builder) {
	defer wg.Done()

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		clean := stripANSI(scanner.Text())

		mu.Lock()
		buf.WriteString(clean)
		buf.WriteString("\n")
		mu.Unlock()

		r.Tracker.AppendOutput(taskID, clean)
		EmitOutputLine(taskID, string(stream))
		if r.Notifier != nil {
			r.Notifier.OutputLine(taskID, stream, clean)
		}
	}
}

func (r *Runner) ok(taskID, data string) core.TaskResult {
	result := core.TaskResult{TaskID: taskID, Status: core.TaskStatusCompleted, Data: data}
	r.finish(taskID, result)
	return result
}

func (r *Runner) fail(taskID, errMsg string) core.TaskResult {
	result := core.TaskResult{TaskID: taskID, Status: core.TaskStatusFailed, Error: errMsg}
	r.finish(taskID, result)
	return result
}

func (r *Runner) finish(taskID string, result core.TaskResult) {
	_ = r.Tracker.Finish(taskID, result)
	if r.Notifier != nil {
		r.Notifier.TerminalResult(taskID, result)
	}
}
