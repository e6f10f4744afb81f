package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

// WorkerPool runs a bounded set of cooperative workers consuming tasks
// from a shared channel, grounded on the framework's TaskWorkerPool
// goroutine-per-worker shape generalized from a fixed worker count to a
// pool the scaler can grow at runtime.
type WorkerPool struct {
	tasks    <-chan core.Task
	results  chan<- core.TaskResult
	runner   *Runner
	timeout  time.Duration
	maxSize  int
	logger   core.Logger

	active atomic.Int32
	wg     sync.WaitGroup
}

// NewWorkerPool creates a pool draining tasks and delivering each task's
// result on results.
func NewWorkerPool(tasks <-chan core.Task, results chan<- core.TaskResult, runner *Runner, timeout time.Duration, maxSize int, logger core.Logger) *WorkerPool {
	return &WorkerPool{
		tasks:   tasks,
		results: results,
		runner:  runner,
		timeout: timeout,
		maxSize: maxSize,
		logger:  logger,
	}
}

// ActiveWorkers returns the current active worker count. Lock-free, read
// with acquire semantics by the scaler.
func (p *WorkerPool) ActiveWorkers() int {
	return int(p.active.Load())
}

// SpawnWorker starts one more worker against ctx, as long as the pool has
// not reached maxSize. It returns false if the pool is already at
// capacity and no worker was started.
func (p *WorkerPool) SpawnWorker(ctx context.Context) bool {
	for {
		current := p.active.Load()
		if int(current) >= p.maxSize {
			return false
		}
		if p.active.CompareAndSwap(current, current+1) {
			break
		}
	}

	p.wg.Add(1)
	EmitWorkerStarted(int(p.active.Load()))
	go p.runWorker(ctx)
	return true
}

// Wait blocks until every spawned worker has exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// runWorker is the main loop for one worker goroutine. It receives tasks
// until the channel is closed and drained or ctx is cancelled, and sends
// each result on the results channel; a send failure (receiver gone)
// causes the worker to break its loop.
func (p *WorkerPool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		remaining := p.active.Add(-1)
		EmitWorkerStopped(int(remaining))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}

			result := p.runner.Run(ctx, task, p.timeout)

			select {
			case p.results <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}
