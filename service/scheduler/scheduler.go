// ABOUTME: Daily at-most-once scheduler driving sync runs on a coarse tick
// ABOUTME: Timezone-aware date keys prevent duplicate runs after restarts within a day

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"media-archiver/models"
)

// Engine is the runnable the scheduler drives.
type Engine interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}

// Config controls when the daily run fires.
type Config struct {
	Timezone     string
	DailyAt      string // "HH:MM" in Timezone
	TickInterval time.Duration
	RunOnStart   bool
}

// DailyScheduler triggers at most one successful run per local calendar day.
type DailyScheduler struct {
	engine Engine
	config Config
	logger *slog.Logger

	location  *time.Location
	dueHour   int
	dueMinute int

	isRunning      bool
	lastRunDateKey string

	now func() time.Time
}

// NewDailyScheduler validates the timezone and daily time up front.
func NewDailyScheduler(engine Engine, config Config, logger *slog.Logger) (*DailyScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
	}

	hour, minute, err := parseDailyAt(config.DailyAt)
	if err != nil {
		return nil, err
	}

	return &DailyScheduler{
		engine:    engine,
		config:    config,
		logger:    logger,
		location:  location,
		dueHour:   hour,
		dueMinute: minute,
		now:       time.Now,
	}, nil
}

// Start ticks until the context is cancelled. Blocking.
func (s *DailyScheduler) Start(ctx context.Context) error {
	s.logger.Info("Scheduler starting",
		"timezone", s.config.Timezone,
		"daily_at", s.config.DailyAt,
		"tick_interval", s.config.TickInterval,
		"run_on_start", s.config.RunOnStart)

	if s.config.RunOnStart {
		s.tick(ctx, true)
	}

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, false)
		}
	}
}

// tick runs the engine when due. forced bypasses the time-of-day gate but not
// the once-per-day gate.
func (s *DailyScheduler) tick(ctx context.Context, forced bool) {
	if s.isRunning {
		s.logger.Warn("Previous run still in progress, skipping tick")
		return
	}

	localNow := s.now().In(s.location)
	dateKey := localNow.Format("2006-01-02")

	if s.lastRunDateKey == dateKey {
		return
	}
	if !forced {
		due := localNow.Hour() > s.dueHour ||
			(localNow.Hour() == s.dueHour && localNow.Minute() >= s.dueMinute)
		if !due {
			return
		}
	}

	s.isRunning = true
	defer func() { s.isRunning = false }()

	s.logger.Info("Triggering daily sync", "date_key", dateKey, "forced", forced)

	summary, err := s.engine.Run(ctx)
	if err != nil {
		s.logger.Error("Daily sync failed", "date_key", dateKey, "error", err)
		s.hintOnAuthError(err)
		return
	}

	if summary.SkippedByLock {
		s.logger.Warn("Daily sync skipped by job lock, will retry on next tick",
			"date_key", dateKey)
		return
	}

	s.lastRunDateKey = dateKey
	s.logger.Info("Daily sync completed",
		"date_key", dateKey,
		"total_uploaded", summary.TotalUploaded())
}

// hintOnAuthError surfaces an operator hint when the failure smells like
// expired credentials.
func (s *DailyScheduler) hintOnAuthError(err error) {
	msg := err.Error()
	if models.IsAuthInvalid(err) || strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		s.logger.Error("Credentials appear invalid or expired, refresh SOURCE_COOKIES_JSON from a logged-in browser session")
	}
}

// parseDailyAt parses "HH:MM".
func parseDailyAt(value string) (hour, minute int, err error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid daily time %q, expected HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in daily time %q", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in daily time %q", value)
	}
	return hour, minute, nil
}
