package executor

import (
	"github.com/itsneelabh/subagentpool/core"
	"github.com/itsneelabh/subagentpool/resilience"
)

// NewSpawnBreaker builds the circuit breaker that wraps host-binary spawn
// calls, keyed by the host binary name, so a binary that cannot be
// started (missing or not executable) trips the breaker and makes
// subsequent spawns fail fast instead of queueing every remaining task
// through a doomed exec.Command call. Only spawn errors count: a child
// that starts and then exits with an error does not. Returns nil (no breaker) when the
// configuration disables it. This is the one resilience dependency the
// original design has no equivalent for: a pure addition that does not
// change any per-task result shape — a tripped breaker still produces a
// Failed result with a descriptive error, exactly what a spawn failure
// already produces.
func NewSpawnBreaker(cfg *core.EngineConfig) (*resilience.CircuitBreaker, error) {
	cb := cfg.Resilience.CircuitBreaker
	if !cb.Enabled {
		return nil, nil
	}

	rc := &resilience.CircuitBreakerConfig{
		Name:             "subagentpool." + cfg.HostBinary,
		ErrorThreshold:   0.5,
		VolumeThreshold:  cb.Threshold,
		SleepWindow:      cb.Timeout,
		HalfOpenRequests: cb.HalfOpenRequests,
		BucketCount:      10,
		Logger:           cfg.Logger(),
		Metrics:          resilience.NewTelemetryMetrics(),
	}
	return resilience.NewCircuitBreaker(rc)
}
