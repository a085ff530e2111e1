// ABOUTME: This file tests configuration loading and validation
// ABOUTME: Ensures proper environment variable parsing and required field validation

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCookiesJSON = `[
	{"name":"auth_token","value":"tok","domain":".twitter.com","path":"/"},
	{"name":"ct0","value":"csrf","domain":".twitter.com","path":"/"}
]`

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SOURCE_USERS", "alice,@bob")
	t.Setenv("SOURCE_COOKIES_JSON", validCookiesJSON)
	t.Setenv("SINK_API_ID", "12345")
	t.Setenv("SINK_API_HASH", "hash")
	t.Setenv("SINK_STRING_SESSION", "session")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, cfg.Source.Users)
	assert.Equal(t, "/data/state.sqlite", cfg.State.DBPath)
	assert.Equal(t, 10, cfg.Sync.BackfillPagesPerRun)
	assert.Equal(t, 300, cfg.Sync.MaxMediaPerRun)
	assert.Equal(t, "/tmp/work", cfg.Sync.DownloadTmpDir)
	assert.Equal(t, 3300*time.Second, cfg.Sync.JobLockTTL)
	assert.Equal(t, int64(512*1024*1024), cfg.Sync.MaxUploadVideoBytes)
	assert.Equal(t, 2*time.Hour, cfg.Source.Cooldown)
	assert.Equal(t, "Asia/Shanghai", cfg.Scheduler.Timezone)
	assert.Equal(t, "09:00", cfg.Scheduler.DailyAt)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	assert.False(t, cfg.Scheduler.RunOnStart)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_MEDIA_PER_RUN", "50")
	t.Setenv("SYNC_DAILY_AT", "21:30")
	t.Setenv("SCHEDULER_RUN_ON_START", "yes")
	t.Setenv("SOURCE_WEB_BEARER_TOKEN", "custom-bearer")
	t.Setenv("TZ", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Sync.MaxMediaPerRun)
	assert.Equal(t, "21:30", cfg.Scheduler.DailyAt)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, "custom-bearer", cfg.Source.BearerToken)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
}

func TestLoadConfig_RequiresUsers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_USERS", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCE_USERS")
}

func TestLoadConfig_RequiresAuthCookies(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SOURCE_COOKIES_JSON", `[{"name":"other","value":"x","domain":".twitter.com"}]`)

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth_token")
}

func TestLoadConfig_RequiresSinkCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SINK_API_ID", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SINK_API_ID")
}

func TestParseUsers_StripsAtAndWhitespace(t *testing.T) {
	users := parseUsers(" @alice , bob ,, @carol")
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "on", "TRUE", " Yes "} {
		assert.True(t, isTruthy(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "no"} {
		assert.False(t, isTruthy(v), v)
	}
}
