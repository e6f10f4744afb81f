package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// EngineConfig holds all configuration for the subagent execution engine.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewEngineConfig(
//	    WithMaxWorkers(20),
//	    WithHostBinary("goose"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type EngineConfig struct {
	// Name identifies this engine instance in logs and metrics.
	Name string `json:"name" env:"SUBAGENTPOOL_NAME" default:"subagentpool"`

	// InitialWorkers is the number of workers the dispatcher spawns before
	// handing control to the scaler.
	InitialWorkers int `json:"initial_workers" env:"SUBAGENTPOOL_INITIAL_WORKERS" default:"2"`

	// MaxWorkers is the ceiling the scaler will not grow past.
	MaxWorkers int `json:"max_workers" env:"SUBAGENTPOOL_MAX_WORKERS" default:"10"`

	// PerTaskTimeoutSeconds bounds how long a single child process may run
	// before the runner kills it and records a timeout failure. Must be >= 1.
	PerTaskTimeoutSeconds int `json:"per_task_timeout_seconds" env:"SUBAGENTPOOL_TASK_TIMEOUT_SECONDS" default:"300"`

	// HostBinary is the executable the child runner invokes for every task.
	HostBinary string `json:"host_binary" env:"SUBAGENTPOOL_HOST_BINARY" default:"goose"`

	// Logging configuration.
	Logging LoggingConfig `json:"logging"`

	// Development configuration.
	Development DevelopmentConfig `json:"development"`

	// Resilience configuration for the circuit breaker wrapping host-binary spawn.
	Resilience ResilienceConfig `json:"resilience"`

	// Logger instance for configuration operations (excluded from JSON).
	logger Logger `json:"-"`
}

// PerTaskTimeout returns PerTaskTimeoutSeconds as a time.Duration.
func (c *EngineConfig) PerTaskTimeout() time.Duration {
	return time.Duration(c.PerTaskTimeoutSeconds) * time.Second
}

// Logger returns the configured logger, falling back to a no-op logger.
func (c *EngineConfig) Logger() Logger {
	if c.logger == nil {
		return &NoOpLogger{}
	}
	return c.logger
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
type LoggingConfig struct {
	Level      string `json:"level" env:"SUBAGENTPOOL_LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"SUBAGENTPOOL_LOG_FORMAT" default:"json"`
	Output     string `json:"output" env:"SUBAGENTPOOL_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"time_format" env:"SUBAGENTPOOL_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.999999999Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
// When Enabled=true, the engine uses development-friendly defaults:
// human-readable logs and debug logging.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"SUBAGENTPOOL_DEV_MODE" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"SUBAGENTPOOL_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" env:"SUBAGENTPOOL_PRETTY_LOGS" default:"false"`
}

// ResilienceConfig configures the circuit breaker wrapping host-binary spawn.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
// The circuit breaker prevents cascading spawn failures by failing fast
// once at least Threshold spawn attempts have been seen within its
// 60-second window and at least half of them failed.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"SUBAGENTPOOL_CB_ENABLED" default:"true"`
	Threshold        int           `json:"threshold" env:"SUBAGENTPOOL_CB_THRESHOLD" default:"5"`
	Timeout          time.Duration `json:"timeout" env:"SUBAGENTPOOL_CB_TIMEOUT" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" env:"SUBAGENTPOOL_CB_HALF_OPEN" default:"3"`
}

// Option is a functional option for configuring the engine.
// Options are applied in order and can return an error if the configuration
// is invalid.
type Option func(*EngineConfig) error

// DefaultEngineConfig returns a configuration with sensible defaults,
// matching the spec's Configuration defaults (initial_workers=2,
// max_workers=10, per_task_timeout_seconds=300).
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Name:                  "subagentpool",
		InitialWorkers:        2,
		MaxWorkers:            10,
		PerTaskTimeoutSeconds: 300,
		HostBinary:            "goose",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Development: DevelopmentConfig{
			Enabled:      false,
			DebugLogging: false,
			PrettyLogs:   false,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 3,
			},
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are overridden by
// functional options.
func (c *EngineConfig) LoadFromEnv() error {
	if v := os.Getenv("SUBAGENTPOOL_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("SUBAGENTPOOL_INITIAL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SUBAGENTPOOL_INITIAL_WORKERS: %w", err)
		}
		c.InitialWorkers = n
	}
	if v := os.Getenv("SUBAGENTPOOL_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SUBAGENTPOOL_MAX_WORKERS: %w", err)
		}
		c.MaxWorkers = n
	}
	if v := os.Getenv("SUBAGENTPOOL_TASK_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SUBAGENTPOOL_TASK_TIMEOUT_SECONDS: %w", err)
		}
		c.PerTaskTimeoutSeconds = n
	}
	if v := os.Getenv("SUBAGENTPOOL_HOST_BINARY"); v != "" {
		c.HostBinary = v
	}
	if v := os.Getenv("SUBAGENTPOOL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SUBAGENTPOOL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SUBAGENTPOOL_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("SUBAGENTPOOL_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Development.DebugLogging = true
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("SUBAGENTPOOL_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}
	if v := os.Getenv("SUBAGENTPOOL_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("SUBAGENTPOOL_CB_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SUBAGENTPOOL_CB_THRESHOLD: %w", err)
		}
		c.Resilience.CircuitBreaker.Threshold = n
	}

	return nil
}

// Validate checks the final configuration after defaults, environment
// variables, and functional options have all been applied.
//
// Validation rules:
//   - per_task_timeout_seconds must be >= 1 (spec §8 boundary behavior)
//   - initial_workers must be >= 0
//   - max_workers must be >= 1 and >= initial_workers
//   - host_binary must not be empty
func (c *EngineConfig) Validate() error {
	if c.PerTaskTimeoutSeconds < 1 {
		return &FrameworkError{
			Op:      "EngineConfig.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("per_task_timeout_seconds must be >= 1, got %d", c.PerTaskTimeoutSeconds),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.InitialWorkers < 0 {
		return &FrameworkError{
			Op:      "EngineConfig.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("initial_workers must be >= 0, got %d", c.InitialWorkers),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.MaxWorkers < 1 {
		return &FrameworkError{
			Op:      "EngineConfig.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("max_workers must be >= 1, got %d", c.MaxWorkers),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.MaxWorkers < c.InitialWorkers {
		return &FrameworkError{
			Op:      "EngineConfig.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("max_workers (%d) must be >= initial_workers (%d)", c.MaxWorkers, c.InitialWorkers),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.HostBinary == "" {
		return &FrameworkError{
			Op:      "EngineConfig.Validate",
			Kind:    "config",
			Message: "host_binary is required",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithInitialWorkers sets the number of workers spawned before the scaler
// takes over.
func WithInitialWorkers(n int) Option {
	return func(c *EngineConfig) error {
		c.InitialWorkers = n
		return nil
	}
}

// WithMaxWorkers sets the ceiling the scaler will not grow past.
func WithMaxWorkers(n int) Option {
	return func(c *EngineConfig) error {
		c.MaxWorkers = n
		return nil
	}
}

// WithPerTaskTimeout sets the per-task execution timeout in seconds.
func WithPerTaskTimeout(seconds int) Option {
	return func(c *EngineConfig) error {
		c.PerTaskTimeoutSeconds = seconds
		return nil
	}
}

// WithHostBinary sets the child-process executable name.
func WithHostBinary(name string) Option {
	return func(c *EngineConfig) error {
		if name == "" {
			return fmt.Errorf("host binary name cannot be empty")
		}
		c.HostBinary = name
		return nil
	}
}

// WithLogLevel sets the logging level ("debug", "info", "warn", "error").
func WithLogLevel(level string) Option {
	return func(c *EngineConfig) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *EngineConfig) error {
		if format != "json" && format != "text" {
			return fmt.Errorf("invalid log format: %s (must be 'json' or 'text')", format)
		}
		c.Logging.Format = format
		return nil
	}
}

// WithDevelopmentMode toggles development-friendly defaults (pretty logs,
// debug logging).
func WithDevelopmentMode(enabled bool) Option {
	return func(c *EngineConfig) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Development.DebugLogging = true
			c.Logging.Format = "text"
		}
		return nil
	}
}

// WithCircuitBreaker configures the spawn circuit breaker's threshold and
// open-state timeout.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *EngineConfig) error {
		c.Resilience.CircuitBreaker.Threshold = threshold
		c.Resilience.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithLogger injects a pre-configured logger instead of constructing a
// ProductionLogger from the Logging/Development settings.
func WithLogger(logger Logger) Option {
	return func(c *EngineConfig) error {
		c.logger = logger
		return nil
	}
}

// NewEngineConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultEngineConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
func NewEngineConfig(opts ...Option) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}
		cfg.logger = logger
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================================================
// ProductionLogger Implementation - Layered Observability Architecture
// ============================================================================

// ProductionLogger provides layered observability for engine operations:
// structured log output, with an optional metrics layer enabled once a
// telemetry provider registers itself via SetMetricsRegistry.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:          strings.ToLower(logging.Level),
		debug:          dev.DebugLogging || logging.Level == "debug",
		serviceName:    serviceName,
		format:         logging.Format,
		output:         output,
		metricsEnabled: false,
	}
}

// EnableMetrics is called by the telemetry package to enable the metrics
// layer once a MetricsRegistry has registered itself.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

// WithComponent returns a logger tagged with the given component name,
// used so worker-pool logs can be filtered from child-runner logs or
// registry logs. Grounded on the teacher's createComponentLogger fallback
// pattern (core/agent.go), but implemented directly on ProductionLogger
// rather than left as an optional interface assertion.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// GetComponent returns the logger's current component tag, letting a
// caller confirm which component a factory-constructed default logger
// actually landed on.
func (p *ProductionLogger) GetComponent() string {
	return p.component
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

// logEvent is the core logging implementation shared by every level.
func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	component := p.component
	if component == "" {
		component = "framework"
	}

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": component,
			"message":   msg,
		}

		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
			timestamp, level, p.serviceName, component, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitEngineMetric(level, msg, fields, ctx)
	}
}

// emitEngineMetric reports a log event as a low-cardinality counter metric.
func (p *ProductionLogger) emitEngineMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	component := p.component
	if component == "" {
		component = "framework"
	}

	labels := []string{
		"level", level,
		"service", p.serviceName,
		"component", component,
	}

	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "task_id", "kind":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	if ctx != nil {
		emitMetricWithContext(ctx, "subagentpool.engine.operations", 1.0, labels...)
	} else {
		emitMetric("subagentpool.engine.operations", 1.0, labels...)
	}
}

// Helper functions for weak coupling to the telemetry package, avoiding an
// import cycle (core cannot import telemetry; telemetry imports core).
func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
