package executor

import (
	"context"
	"time"
)

// scalerInterval is how often the scaler reevaluates whether to grow the
// pool, per spec's "every 100 ms, for instance".
const scalerInterval = 100 * time.Millisecond

// Scaler is a background goroutine that grows WorkerPool up to a ceiling
// while work remains, grounded on the monitor-goroutine lifecycle pattern
// the framework's worker pool uses, generalized here from "fixed worker
// count" to "grow to ceiling."
type Scaler struct {
	pool       *WorkerPool
	tracker    *ExecutionTracker
	maxWorkers int
}

// NewScaler creates a scaler for pool, reading pending/running counts
// from tracker and growing pool up to maxWorkers.
func NewScaler(pool *WorkerPool, tracker *ExecutionTracker, maxWorkers int) *Scaler {
	return &Scaler{pool: pool, tracker: tracker, maxWorkers: maxWorkers}
}

// Run ticks every scalerInterval, spawning additional workers as long as
// active workers are below the ceiling and tasks are still pending. It
// returns once every task reaches a terminal status or ctx is done.
// Scaling is monotonic: workers are never retired early by the scaler.
func (s *Scaler) Run(ctx context.Context) {
	ticker := time.NewTicker(scalerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, pending, _, completed, failed := s.tracker.Counts()
			if completed+failed >= total {
				return
			}
			if pending == 0 {
				continue
			}

			active := s.pool.ActiveWorkers()
			if active >= s.maxWorkers {
				continue
			}
			if s.pool.SpawnWorker(ctx) {
				EmitScalerGrew(s.pool.ActiveWorkers(), s.maxWorkers)
			}
		}
	}
}
