package executor

import (
	"testing"
	"time"

	"github.com/itsneelabh/subagentpool/core"
)

func TestNewSpawnBreaker_Disabled(t *testing.T) {
	cfg, err := core.NewEngineConfig(core.WithHostBinary("echo"))
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}
	cfg.Resilience.CircuitBreaker.Enabled = false

	breaker, err := NewSpawnBreaker(cfg)
	if err != nil {
		t.Fatalf("NewSpawnBreaker: %v", err)
	}
	if breaker != nil {
		t.Error("expected a nil breaker when the circuit breaker is disabled")
	}
}

func TestNewSpawnBreaker_EnabledBridgesConfig(t *testing.T) {
	cfg, err := core.NewEngineConfig(
		core.WithHostBinary("echo"),
		core.WithCircuitBreaker(3, 10*time.Second),
	)
	if err != nil {
		t.Fatalf("NewEngineConfig: %v", err)
	}

	breaker, err := NewSpawnBreaker(cfg)
	if err != nil {
		t.Fatalf("NewSpawnBreaker: %v", err)
	}
	if breaker == nil {
		t.Fatal("expected a non-nil breaker when the circuit breaker is enabled")
	}
}
