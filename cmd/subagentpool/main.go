// Command subagentpool runs a batch of sub-recipe/text-instruction tasks
// through the execution engine and prints the resulting notifications and
// final response as JSON.
//
// Usage:
//
//	subagentpool -tasks tasks.json -mode parallel
//	cat tasks.json | subagentpool -mode sequential
//
// tasks.json is a JSON array of core.Task records. With no -tasks flag,
// the task list is read from stdin.
//
// Environment Variables:
//
//	SUBAGENTPOOL_HOST_BINARY        - child executable invoked per task (default: goose)
//	SUBAGENTPOOL_INITIAL_WORKERS    - workers spawned before the scaler takes over
//	SUBAGENTPOOL_MAX_WORKERS        - worker ceiling
//	SUBAGENTPOOL_TASK_TIMEOUT_SECONDS - per-task timeout
//	SUBAGENTPOOL_LOG_LEVEL          - debug, info, warn, error
//	SUBAGENTPOOL_DEV_MODE           - pretty, human-readable logs when true
//	APP_ENV                         - development, staging, production (telemetry profile)
//	OTEL_EXPORTER_OTLP_ENDPOINT     - OpenTelemetry collector endpoint
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsneelabh/subagentpool/core"
	"github.com/itsneelabh/subagentpool/executor"
	"github.com/itsneelabh/subagentpool/telemetry"
)

func main() {
	tasksPath := flag.String("tasks", "", "path to a JSON file containing the task list (default: stdin)")
	mode := flag.String("mode", "parallel", "execution mode: parallel or sequential")
	flag.Parse()

	cfg, err := core.NewEngineConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	initTelemetry(cfg.Name)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			cfg.Logger().Warn("telemetry shutdown error", map[string]interface{}{"error": err.Error()})
		}
	}()

	tasks, err := loadTasks(*tasksPath)
	if err != nil {
		log.Fatalf("failed to load tasks: %v", err)
	}

	registry := executor.NewTaskRegistry()
	registry.SetLogger(cfg.Logger())
	if err := registry.Save(tasks); err != nil {
		log.Fatalf("failed to register tasks: %v", err)
	}

	tracker := executor.NewExecutionTracker()
	tracker.SetLogger(cfg.Logger())

	breaker, err := executor.NewSpawnBreaker(cfg)
	if err != nil {
		log.Fatalf("failed to configure circuit breaker: %v", err)
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	input := executor.Input{TaskIDs: ids}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cfg.Logger().Info("shutting down gracefully", nil)
		cancel()
	}()
	defer cancel()

	resp, notifications, err := executor.ExecuteTasks(ctx, input, executor.ExecutionMode(*mode), cfg, registry, tracker, breaker)
	if err != nil {
		log.Fatalf("execute_tasks failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := range notifications {
			printNotification(n)
		}
	}()
	<-done

	if err := json.NewEncoder(os.Stdout).Encode(resp); err != nil {
		log.Fatalf("failed to encode response: %v", err)
	}

	if r, ok := resp.(executor.ExecutionResponse); ok && r.Status == "failed" {
		os.Exit(1)
	}
}

// loadTasks reads and decodes the task list from path, or from stdin when
// path is empty.
func loadTasks(path string) ([]core.Task, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var tasks []core.Task
	if err := json.NewDecoder(r).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}
	return tasks, nil
}

// printNotification writes one notification event to stderr, one JSON
// object per line, so progress can be observed without interleaving with
// the final response on stdout.
func printNotification(n core.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

func initTelemetry(serviceName string) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	var profile telemetry.Profile
	switch env {
	case "production", "prod":
		profile = telemetry.ProfileProduction
	case "staging":
		profile = telemetry.ProfileStaging
	default:
		profile = telemetry.ProfileDevelopment
	}

	config := telemetry.UseProfile(profile)
	config.ServiceName = serviceName

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		config.Endpoint = endpoint
	}

	if err := telemetry.Initialize(config); err != nil {
		log.Printf("warning: telemetry init failed: %v", err)
		return
	}

	telemetry.EnableFrameworkIntegration(nil)
}
