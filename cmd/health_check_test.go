// ABOUTME: Tests for the health:check probe aggregation
// ABOUTME: Uses stubbed probes; no network or database access

package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"media-archiver/config"
)

func newTestChecker() *HealthChecker {
	checker := NewHealthChecker(&config.Config{}, nil)
	checker.stateProbe = func(ctx context.Context, dbPath string) error { return nil }
	checker.sourceProbe = func(ctx context.Context, cfg *config.Config) error { return nil }
	checker.sinkProbe = func(ctx context.Context, cfg *config.Config) error { return nil }
	return checker
}

func TestHealthChecker_AllHealthy(t *testing.T) {
	checker := newTestChecker()

	result := checker.Check(context.Background())

	assert.Equal(t, "healthy", result["status"])
	assert.Equal(t, "ok", result["state_db"])
	assert.Equal(t, "ok", result["source_session"])
	assert.Equal(t, "ok", result["sink_session"])
	assert.NotContains(t, result, "error_details")
}

func TestHealthChecker_SourceFailure(t *testing.T) {
	checker := newTestChecker()
	checker.sourceProbe = func(ctx context.Context, cfg *config.Config) error {
		return fmt.Errorf("session not logged in")
	}

	result := checker.Check(context.Background())

	assert.Equal(t, "unhealthy", result["status"])
	assert.Equal(t, "error", result["source_session"])
	assert.Equal(t, "ok", result["state_db"])

	details, ok := result["error_details"].([]string)
	assert.True(t, ok)
	assert.Len(t, details, 1)
	assert.Contains(t, details[0], "source_session")
}

func TestHealthChecker_MultipleFailures(t *testing.T) {
	checker := newTestChecker()
	checker.stateProbe = func(ctx context.Context, dbPath string) error {
		return fmt.Errorf("database locked")
	}
	checker.sinkProbe = func(ctx context.Context, cfg *config.Config) error {
		return fmt.Errorf("auth key unregistered")
	}

	result := checker.Check(context.Background())

	assert.Equal(t, "unhealthy", result["status"])
	details, ok := result["error_details"].([]string)
	assert.True(t, ok)
	assert.Len(t, details, 2)
}
