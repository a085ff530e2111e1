// ABOUTME: This file handles configuration management for media-archiver
// ABOUTME: Loads environment variables and validates source, sink and scheduler settings

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"media-archiver/models"
)

// Config holds all configuration for the media-archiver service
type Config struct {
	// Service configuration
	ServiceName string
	LogLevel    string

	// Source platform configuration
	Source SourceConfig

	// Sink (archive channel) configuration
	Sink SinkConfig

	// State database configuration
	State StateConfig

	// Sync run configuration
	Sync SyncConfig

	// Scheduler configuration
	Scheduler SchedulerConfig
}

// SourceConfig holds source platform credentials and accounts
type SourceConfig struct {
	Users            []string
	Cookies          models.CookieBundle
	RewrittenDomains int
	BearerToken      string
	Cooldown         time.Duration
}

// SinkConfig holds archive channel credentials
type SinkConfig struct {
	APIID         int
	APIHash       string
	StringSession string
}

// StateConfig holds the embedded database settings
type StateConfig struct {
	DBPath string
}

// SyncConfig bounds one sync run
type SyncConfig struct {
	BackfillPagesPerRun int
	MaxMediaPerRun      int
	DownloadTmpDir      string
	JobLockTTL          time.Duration
	MaxUploadVideoBytes int64
}

// SchedulerConfig holds daily scheduling settings
type SchedulerConfig struct {
	Timezone     string
	DailyAt      string
	TickInterval time.Duration
	RunOnStart   bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnvOrDefault("SERVICE_NAME", "media-archiver"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),

		Source: SourceConfig{
			Users:       parseUsers(os.Getenv("SOURCE_USERS")),
			BearerToken: os.Getenv("SOURCE_WEB_BEARER_TOKEN"),
			Cooldown:    time.Duration(getEnvInt("SOURCE_RATE_LIMIT_COOLDOWN_SECONDS", 7200)) * time.Second,
		},

		Sink: SinkConfig{
			APIID:         getEnvInt("SINK_API_ID", 0),
			APIHash:       os.Getenv("SINK_API_HASH"),
			StringSession: os.Getenv("SINK_STRING_SESSION"),
		},

		State: StateConfig{
			DBPath: getEnvOrDefault("STATE_DB_PATH", "/data/state.sqlite"),
		},

		Sync: SyncConfig{
			BackfillPagesPerRun: getEnvInt("BACKFILL_PAGES_PER_RUN", 10),
			MaxMediaPerRun:      getEnvInt("MAX_MEDIA_PER_RUN", 300),
			DownloadTmpDir:      getEnvOrDefault("DOWNLOAD_TMP_DIR", "/tmp/work"),
			JobLockTTL:          time.Duration(getEnvInt("JOB_LOCK_TTL_SECONDS", 3300)) * time.Second,
			MaxUploadVideoBytes: getEnvInt64("MAX_UPLOAD_VIDEO_BYTES", 512*1024*1024),
		},

		Scheduler: SchedulerConfig{
			Timezone:     getEnvOrDefault("TZ", "Asia/Shanghai"),
			DailyAt:      getEnvOrDefault("SYNC_DAILY_AT", "09:00"),
			TickInterval: time.Duration(getEnvInt("SCHEDULER_TICK_SECONDS", 30)) * time.Second,
			RunOnStart:   isTruthy(os.Getenv("SCHEDULER_RUN_ON_START")),
		},
	}

	if raw := os.Getenv("SOURCE_COOKIES_JSON"); raw != "" {
		bundle, rewritten, err := ParseCookies(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SOURCE_COOKIES_JSON: %w", err)
		}
		cfg.Source.Cookies = *bundle
		cfg.Source.RewrittenDomains = rewritten
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Source.Users) == 0 {
		return fmt.Errorf("SOURCE_USERS is required")
	}

	if c.Source.Cookies.Get("auth_token") == "" {
		return fmt.Errorf("SOURCE_COOKIES_JSON must contain an auth_token cookie")
	}

	if c.Source.Cookies.Get("ct0") == "" {
		return fmt.Errorf("SOURCE_COOKIES_JSON must contain a ct0 cookie")
	}

	if c.Sink.APIID == 0 {
		return fmt.Errorf("SINK_API_ID is required")
	}

	if c.Sink.APIHash == "" {
		return fmt.Errorf("SINK_API_HASH is required")
	}

	if c.Sink.StringSession == "" {
		return fmt.Errorf("SINK_STRING_SESSION is required")
	}

	return nil
}

// parseUsers splits the comma-separated handle list and strips leading @.
func parseUsers(raw string) []string {
	var users []string
	for _, part := range strings.Split(raw, ",") {
		handle := strings.TrimPrefix(strings.TrimSpace(part), "@")
		if handle != "" {
			users = append(users, handle)
		}
	}
	return users
}

// isTruthy recognises the usual affirmative strings.
func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or the default when unset
// or unparsable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
