package core

import (
	"context"
	"sync"
)

// Logger is the minimal logging interface every engine component depends
// on. Components never depend on a concrete logger implementation so that
// callers can plug in whatever structured-logging backend they use.
type Logger interface {
	// Basic logging methods
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	// Context-aware methods for distributed tracing and request correlation
	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with component context support.
// This allows different parts of the engine to tag their own component
// identifier while sharing the same base configuration.
//
// Component naming convention:
//   - "framework/executor"   - task registry / execution tracker
//   - "framework/resilience" - retry executor, and circuit breakers built
//     through the resilience factory or given a logger via SetLogger
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional telemetry support every component accepts but
// never requires; a nil Telemetry (or NoOpTelemetry) must make every call
// a cheap no-op.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a telemetry span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry provides a no-op telemetry implementation.
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan provides a no-op span implementation.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}

// ============================================================================
// Global Registry Pattern for Telemetry Integration
// ============================================================================

// MetricsRegistry enables the telemetry package to register itself with
// core without creating an import cycle (core cannot import telemetry,
// telemetry imports core for Logger/Task types).
type MetricsRegistry interface {
	Counter(name string, labels ...string)
	EmitWithContext(ctx context.Context, name string, value float64, labels ...string)
	GetBaggage(ctx context.Context) map[string]string
	Gauge(name string, value float64, labels ...string)
	Histogram(name string, value float64, labels ...string)
}

// Global registry - set by the telemetry package when it initializes.
var globalMetricsRegistry MetricsRegistry

// SetMetricsRegistry allows the telemetry package to register itself.
func SetMetricsRegistry(registry MetricsRegistry) {
	globalMetricsRegistry = registry
	enableMetricsOnExistingLoggers()
}

// GetGlobalMetricsRegistry returns the global metrics registry if available.
// Returns nil if the telemetry package has not registered one yet.
func GetGlobalMetricsRegistry() MetricsRegistry {
	return globalMetricsRegistry
}

// Track created loggers to enable metrics when telemetry becomes available.
var createdLoggers []*ProductionLogger
var loggersMutex sync.RWMutex

func trackLogger(logger *ProductionLogger) {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	createdLoggers = append(createdLoggers, logger)

	if globalMetricsRegistry != nil {
		logger.EnableMetrics()
	}
}

func enableMetricsOnExistingLoggers() {
	loggersMutex.Lock()
	defer loggersMutex.Unlock()

	for _, logger := range createdLoggers {
		logger.EnableMetrics()
	}
}
