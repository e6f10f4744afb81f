package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
	
	"github.com/itsneelabh/subagentpool/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	JitterEnabled   bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	
	var lastErr error
	delay := config.InitialDelay
	
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		// Check context
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		
		// Try the function
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		
		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}
		
		// Calculate next delay with exponential backoff
		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}
		
		// Add jitter if enabled to prevent synchronized retries
		// across multiple clients (thundering herd mitigation)
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}
		
		// Sleep with context cancellation
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	
	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", config.MaxAttempts, lastErr, core.ErrMaxRetriesExceeded)
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}

		err := fn()
		if err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}

// RetryExecutor wraps Retry with structured logging of each attempt, for
// callers that want retry_start/retry_backoff/retry_exhausted visibility
// without instrumenting the call site themselves.
type RetryExecutor struct {
	config           *RetryConfig
	logger           core.Logger
	telemetryEnabled bool
}

// NewRetryExecutor creates an executor with config, or DefaultRetryConfig
// if config is nil.
func NewRetryExecutor(config *RetryConfig) *RetryExecutor {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryExecutor{config: config, logger: &core.NoOpLogger{}}
}

// SetLogger configures the executor's logger.
func (e *RetryExecutor) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		e.logger = cal.WithComponent("framework/resilience")
		return
	}
	e.logger = logger
}

// Execute runs fn under the executor's retry policy, logging the start of
// the sequence, each backoff wait, and the terminal outcome.
func (e *RetryExecutor) Execute(ctx context.Context, operation string, fn func() error) error {
	e.logger.Info("Starting retry operation", map[string]interface{}{
		"operation":      "retry_start",
		"retry_operation": operation,
		"max_attempts":   e.config.MaxAttempts,
		"initial_delay":  e.config.InitialDelay.String(),
		"backoff_factor": e.config.BackoffFactor,
	})

	attempt := 0
	err := Retry(ctx, e.config, func() error {
		attempt++
		if attempt > 1 {
			e.logger.Debug("retry backoff elapsed, attempting again", map[string]interface{}{
				"operation":       "retry_backoff",
				"retry_operation": operation,
				"attempt":         attempt,
			})
		}
		innerErr := fn()
		if innerErr != nil {
			e.logger.Debug("retry attempt failed", map[string]interface{}{
				"operation":       "retry_attempt_failed",
				"retry_operation": operation,
				"attempt":         attempt,
				"error":           innerErr.Error(),
			})
		}
		return innerErr
	})

	if err != nil {
		e.logger.Error("retry operation exhausted", map[string]interface{}{
			"operation":       "retry_exhausted",
			"retry_operation": operation,
			"attempts":        attempt,
			"error":           err.Error(),
		})
		return err
	}

	e.logger.Info("retry operation succeeded", map[string]interface{}{
		"operation":       "retry_success",
		"retry_operation": operation,
		"attempts":        attempt,
	})
	return nil
}