// ABOUTME: This file implements the health:check command
// ABOUTME: Probes the state database, the source session and the sink session

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"media-archiver/config"
	"media-archiver/driver"
	"media-archiver/repository"
	"media-archiver/service"
)

// healthTimeout bounds the whole probe.
const healthTimeout = 30 * time.Second

// HealthChecker probes every external dependency of the service. The probe
// functions are swappable for tests.
type HealthChecker struct {
	config *config.Config
	logger *slog.Logger

	stateProbe  func(ctx context.Context, dbPath string) error
	sourceProbe func(ctx context.Context, cfg *config.Config) error
	sinkProbe   func(ctx context.Context, cfg *config.Config) error
}

// NewHealthChecker creates a checker with the real probes.
func NewHealthChecker(cfg *config.Config, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		config:      cfg,
		logger:      logger,
		stateProbe:  probeState,
		sourceProbe: probeSource,
		sinkProbe:   probeSink,
	}
}

// Check runs all probes and returns the report map. status is "healthy" only
// when every probe passes.
func (h *HealthChecker) Check(ctx context.Context) map[string]interface{} {
	result := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	var failures []string

	if err := h.stateProbe(ctx, h.config.State.DBPath); err != nil {
		result["state_db"] = "error"
		failures = append(failures, fmt.Sprintf("state_db: %v", err))
	} else {
		result["state_db"] = "ok"
	}

	if err := h.sourceProbe(ctx, h.config); err != nil {
		result["source_session"] = "error"
		failures = append(failures, fmt.Sprintf("source_session: %v", err))
	} else {
		result["source_session"] = "ok"
	}

	if err := h.sinkProbe(ctx, h.config); err != nil {
		result["sink_session"] = "error"
		failures = append(failures, fmt.Sprintf("sink_session: %v", err))
	} else {
		result["sink_session"] = "ok"
	}

	if len(failures) > 0 {
		result["status"] = "unhealthy"
		result["error_details"] = failures
	}

	return result
}

func probeState(ctx context.Context, dbPath string) error {
	store, err := repository.NewSQLiteStateStore(dbPath, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Init(ctx)
}

func probeSource(ctx context.Context, cfg *config.Config) error {
	client, err := driver.NewTwitterClient(&cfg.Source.Cookies, cfg.Source.BearerToken, nil)
	if err != nil {
		return err
	}
	timeline := service.NewTimelineService(client, nil)
	if len(cfg.Source.Users) == 0 {
		return fmt.Errorf("no source users configured")
	}
	return timeline.HealthCheck(ctx, cfg.Source.Users[0])
}

func probeSink(ctx context.Context, cfg *config.Config) error {
	client, err := driver.NewTelegramClient(cfg.Sink.APIID, cfg.Sink.APIHash, cfg.Sink.StringSession, nil)
	if err != nil {
		return err
	}
	defer client.Disconnect()
	return client.HealthCheck(ctx)
}

// runHealthCheck prints the report as JSON and fails when unhealthy.
func runHealthCheck(logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	result := NewHealthChecker(cfg, logger).Check(ctx)

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health report: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(output))

	if result["status"] != "healthy" {
		return fmt.Errorf("health check reported %v", result["status"])
	}
	return nil
}
