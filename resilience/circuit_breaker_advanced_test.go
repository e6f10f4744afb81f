package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

// TestCircuitBreakerExecuteWithTimeout tests timeout functionality
func TestCircuitBreakerExecuteWithTimeout(t *testing.T) {
	config := DefaultConfig()
	config.Name = "timeout-test"

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	// Test 1: Function completes before timeout
	err = cb.ExecuteWithTimeout(context.Background(), 100*time.Millisecond, func() error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	if err != nil {
		t.Errorf("Expected success when function completes before timeout, got: %v", err)
	}

	// Test 2: Function times out
	err = cb.ExecuteWithTimeout(context.Background(), 20*time.Millisecond, func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got: %v", err)
	}

	// Test 3: Zero timeout (should work like normal Execute)
	err = cb.ExecuteWithTimeout(context.Background(), 0, func() error {
		return nil
	})

	if err != nil {
		t.Errorf("Expected success with zero timeout, got: %v", err)
	}
}

// TestCircuitBreakerCleanupOrphanedRequests - REMOVED
// This test had a fundamental logic flaw: it expected orphaned tokens to remain in the map,
// but the circuit breaker correctly cleans them up automatically via goroutines when the
// function completes (circuit_breaker.go:426-429). The test would pass in isolation due
// to timing, but fail when run with other tests. Since the code correctly prevents the
// condition the test was checking for, the test has been removed.
// The cleanup functionality is tested in production_logging_test.go with manually injected tokens.

// TestCircuitBreakerConfigValidation tests configuration validation
func TestCircuitBreakerConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      *CircuitBreakerConfig
		expectError bool
		errorMsg    string
	}{
		{
			name:        "nil config",
			config:      nil,
			expectError: false, // Now uses defaults instead of failing
			errorMsg:    "",
		},
		{
			name: "empty name",
			config: &CircuitBreakerConfig{
				Name:            "",
				ErrorThreshold:  0.5,
				VolumeThreshold: 10,
			},
			expectError: true,
			errorMsg:    "name is required",
		},
		{
			name: "negative error threshold",
			config: &CircuitBreakerConfig{
				Name:            "test",
				ErrorThreshold:  -0.1,
				VolumeThreshold: 10,
			},
			expectError: true,
			errorMsg:    "error threshold must be between 0 and 1",
		},
		{
			name: "error threshold > 1",
			config: &CircuitBreakerConfig{
				Name:            "test",
				ErrorThreshold:  1.5,
				VolumeThreshold: 10,
			},
			expectError: true,
			errorMsg:    "error threshold must be between 0 and 1",
		},
		{
			name: "negative volume threshold",
			config: &CircuitBreakerConfig{
				Name:            "test",
				ErrorThreshold:  0.5,
				VolumeThreshold: -1,
			},
			expectError: true,
			errorMsg:    "volume threshold must be non-negative",
		},
		{
			name: "negative success threshold",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				SuccessThreshold: -0.1,
			},
			expectError: true,
			errorMsg:    "success threshold must be between 0 and 1",
		},
		{
			name: "success threshold > 1",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				SuccessThreshold: 1.1,
			},
			expectError: true,
			errorMsg:    "success threshold must be between 0 and 1",
		},
		{
			name: "zero half-open requests",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				HalfOpenRequests: 0,
			},
			expectError: true,
			errorMsg:    "half-open requests must be at least 1",
		},
		{
			name: "negative sleep window",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				HalfOpenRequests: 3, // Add required field
				SleepWindow:      -1 * time.Second,
			},
			expectError: true,
			errorMsg:    "sleep window must be non-negative",
		},
		{
			name: "negative window size",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				HalfOpenRequests: 3, // Add required field
				WindowSize:       -1 * time.Second,
			},
			expectError: true,
			errorMsg:    "window size must be non-negative",
		},
		{
			name: "zero bucket count",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				HalfOpenRequests: 3, // Add required field
				BucketCount:      0,
			},
			expectError: true,
			errorMsg:    "bucket count must be at least 1",
		},
		{
			name: "valid config",
			config: &CircuitBreakerConfig{
				Name:             "test",
				ErrorThreshold:   0.5,
				VolumeThreshold:  10,
				HalfOpenRequests: 3,
				SuccessThreshold: 0.6,
				SleepWindow:      30 * time.Second,
				WindowSize:       60 * time.Second,
				BucketCount:      10,
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCircuitBreaker(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for %s, got nil", tt.name)
				} else if tt.errorMsg != "" && !errors.Is(err, errors.New(tt.errorMsg)) {
					// Check if error message contains expected text
					if !contains(err.Error(), tt.errorMsg) {
						t.Errorf("Expected error containing '%s', got '%v'", tt.errorMsg, err)
					}
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error for %s, got: %v", tt.name, err)
				}
			}
		})
	}
}

// TestCircuitBreakerPanicRecovery tests that panics are properly handled
func TestCircuitBreakerPanicRecovery(t *testing.T) {
	config := DefaultConfig()
	config.Name = "panic-test"

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	// Test that panic is converted to error
	err = cb.Execute(context.Background(), func() error {
		panic("test panic - should be handled")
	})

	if err == nil {
		t.Fatal("Expected error from panic, got nil")
	}

	if !strings.Contains(err.Error(), "panic in circuit breaker") {
		t.Errorf("Expected panic error message, got: %v", err)
	}

	if !strings.Contains(err.Error(), "test panic - should be handled") {
		t.Errorf("Expected original panic message, got: %v", err)
	}

	// Verify circuit breaker is still functional after panic
	err = cb.Execute(context.Background(), func() error {
		return nil // Normal success
	})

	if err != nil {
		t.Errorf("Circuit breaker should work normally after panic, got: %v", err)
	}
}

// TestCircuitBreakerStateChangeListeners tests state change notifications
func TestCircuitBreakerStateChangeListeners(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping circuit breaker state change listeners test in short mode (requires 200ms+ sleep)")
	}

	config := DefaultConfig()
	config.Name = "listener-test"
	config.ErrorThreshold = 0.5
	config.VolumeThreshold = 2

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	var stateChanges []string
	var mu sync.Mutex

	// Add listener
	cb.AddStateChangeListener(func(name string, from, to CircuitState) {
		mu.Lock()
		stateChanges = append(stateChanges, fmt.Sprintf("%s->%s", from, to))
		mu.Unlock()
	})

	// Trigger state changes
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.New("error")
		})
	}

	// Wait for async listener calls with CI-friendly buffer
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(stateChanges) == 0 {
		t.Error("Expected state change notifications, got none")
	}

	// Should have transitioned from closed to open
	found := false
	for _, change := range stateChanges {
		if change == "closed->open" {
			found = true
			break
		}
	}

	if !found {
		t.Errorf("Expected closed->open transition, got: %v", stateChanges)
	}
}

// TestCircuitBreakerConcurrentHalfOpen tests concurrent access in half-open state
func TestCircuitBreakerConcurrentHalfOpen(t *testing.T) {
	config := DefaultConfig()
	config.Name = "concurrent-halfopen"
	config.ErrorThreshold = 0.5
	config.VolumeThreshold = 2
	config.HalfOpenRequests = 5
	config.SleepWindow = 50 * time.Millisecond

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	// Open the circuit
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.New("error")
		})
	}

	if cb.GetState() != "open" {
		t.Fatal("Circuit should be open")
	}

	// Wait for half-open with CI-friendly buffer
	time.Sleep(config.SleepWindow + 50*time.Millisecond)

	// Concurrent requests in half-open state
	var allowed int32
	var rejected int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cb.Execute(context.Background(), func() error {
				atomic.AddInt32(&allowed, 1)
				time.Sleep(10 * time.Millisecond)
				return nil
			})

			if errors.Is(err, core.ErrCircuitBreakerOpen) {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}

	wg.Wait()

	// Should allow exactly HalfOpenRequests
	if allowed > int32(config.HalfOpenRequests) {
		t.Errorf("Allowed %d requests in half-open, expected max %d",
			allowed, config.HalfOpenRequests)
	}

	// Some should be rejected
	if rejected == 0 {
		t.Error("Expected some requests to be rejected in half-open state")
	}

	t.Logf("Half-open state: allowed=%d, rejected=%d", allowed, rejected)
}

// TestCircuitBreakerMetricsAccuracy tests metrics collection accuracy
func TestCircuitBreakerMetricsAccuracy(t *testing.T) {
	config := DefaultConfig()
	config.Name = "metrics-test"

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	// Execute some operations
	successCount := 10
	failureCount := 5

	for i := 0; i < successCount; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return nil
		})
	}

	for i := 0; i < failureCount; i++ {
		_ = cb.Execute(context.Background(), func() error {
			return errors.New("error")
		})
	}

	metrics := cb.GetMetrics()

	// Verify metrics
	if metrics["name"] != "metrics-test" {
		t.Errorf("Expected name 'metrics-test', got %v", metrics["name"])
	}

	if metrics["state"] != "closed" {
		t.Errorf("Expected state 'closed', got %v", metrics["state"])
	}

	success, ok := metrics["success"].(uint64)
	if !ok || success != uint64(successCount) {
		t.Errorf("Expected %d successes, got %v", successCount, metrics["success"])
	}

	failure, ok := metrics["failure"].(uint64)
	if !ok || failure != uint64(failureCount) {
		t.Errorf("Expected %d failures, got %v", failureCount, metrics["failure"])
	}

	total, ok := metrics["total"].(uint64)
	if !ok || total != uint64(successCount+failureCount) {
		t.Errorf("Expected total %d, got %v", successCount+failureCount, metrics["total"])
	}

	errorRate, ok := metrics["error_rate"].(float64)
	expectedRate := float64(failureCount) / float64(successCount+failureCount)
	if !ok || errorRate != expectedRate {
		t.Errorf("Expected error rate %.2f, got %v", expectedRate, metrics["error_rate"])
	}
}

// TestCircuitBreakerForceStates tests forced open/closed states
func TestCircuitBreakerForceStates(t *testing.T) {
	config := DefaultConfig()
	config.Name = "force-test"

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	// Test ForceOpen
	cb.ForceOpen()

	err = cb.Execute(context.Background(), func() error {
		return nil
	})

	if !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("Expected ErrCircuitBreakerOpen when forced open, got: %v", err)
	}

	metrics := cb.GetMetrics()
	if !metrics["force_open"].(bool) {
		t.Error("Expected force_open to be true")
	}

	// Test ForceClosed
	cb.ForceClosed()

	// Should allow execution even with failures
	for i := 0; i < 100; i++ {
		err = cb.Execute(context.Background(), func() error {
			return errors.New("error")
		})

		if errors.Is(err, core.ErrCircuitBreakerOpen) {
			t.Error("Circuit should not open when forced closed")
		}
	}

	metrics = cb.GetMetrics()
	if !metrics["force_closed"].(bool) {
		t.Error("Expected force_closed to be true")
	}

	// Test ClearForce
	cb.ClearForce()

	metrics = cb.GetMetrics()
	if metrics["force_open"].(bool) || metrics["force_closed"].(bool) {
		t.Error("Expected force flags to be cleared")
	}
}

// TestSlidingWindowTimeSkew tests sliding window with time skew
func TestSlidingWindowTimeSkew(t *testing.T) {
	// Test with monotonic time enabled (should handle skew)
	window := NewSlidingWindow(1*time.Second, 10, true)

	// Record some data
	window.RecordSuccess()
	window.RecordSuccess()
	window.RecordFailure()

	// Simulate time going backward (this would be a time skew)
	// The monotonic implementation should handle this gracefully
	window.RecordSuccess()

	success, failure := window.GetCounts()
	total := success + failure

	if total != 4 {
		t.Errorf("Expected 4 total events after potential time skew, got %d", total)
	}
}

// TestCircuitBreakerLegacyCompatibility tests backward compatibility
func TestCircuitBreakerLegacyCompatibility(t *testing.T) {
	// Test NewCircuitBreakerLegacy
	cb := NewCircuitBreakerLegacy(3, 100*time.Millisecond)

	if cb == nil {
		t.Fatal("Failed to create legacy circuit breaker")
	}

	// Test that it respects legacy parameters
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	if cb.GetState() != "open" {
		t.Error("Legacy circuit breaker should open after failure threshold")
	}

	// Test NewCircuitBreakerWithConfig (backward compat)
	config := DefaultConfig()
	cb2 := NewCircuitBreakerWithConfig(config)

	if cb2 == nil {
		t.Fatal("Failed to create circuit breaker with config (compat)")
	}
}

// TestCircuitBreakerExecutionTracking tests in-flight execution tracking
func TestCircuitBreakerExecutionTracking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping circuit breaker execution tracking test in short mode (requires 200ms+ sleep)")
	}

	config := DefaultConfig()
	config.Name = "tracking-test"

	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("Failed to create circuit breaker: %v", err)
	}

	// Start a long-running execution
	done := make(chan bool)
	execStarted := make(chan bool)
	go func() {
		_ = cb.Execute(context.Background(), func() error {
			execStarted <- true                // Signal execution has started
			time.Sleep(200 * time.Millisecond) // Longer duration for stability
			return nil
		})
		done <- true
	}()

	// Wait for execution to actually start
	<-execStarted
	// Give additional time for metrics to update
	time.Sleep(50 * time.Millisecond)

	metrics := cb.GetMetrics()
	inFlight, ok := metrics["executions_in_flight"].(int32)
	if !ok || inFlight != 1 {
		t.Errorf("Expected 1 execution in flight, got %v", metrics["executions_in_flight"])
	}

	// Wait for completion
	<-done

	metrics = cb.GetMetrics()
	inFlight, ok = metrics["executions_in_flight"].(int32)
	if !ok || inFlight != 0 {
		t.Errorf("Expected 0 executions in flight after completion, got %v",
			metrics["executions_in_flight"])
	}
}

// Helper function to check if string contains substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && s[0:len(substr)] == substr || len(s) > len(substr) && s[len(s)-len(substr):] == substr || (len(substr) > 0 && len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
