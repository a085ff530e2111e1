// ABOUTME: Tests for the daily tick gating logic
// ABOUTME: Drives the unexported tick with an injected clock and a fake engine

package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-archiver/models"
)

type fakeEngine struct {
	runs          int
	err           error
	skippedByLock bool
}

func (e *fakeEngine) Run(ctx context.Context) (*models.RunSummary, error) {
	e.runs++
	if e.err != nil {
		return nil, e.err
	}
	summary := models.NewRunSummary("test", time.Now())
	summary.SkippedByLock = e.skippedByLock
	return summary, nil
}

func newTestScheduler(t *testing.T, engine Engine) *DailyScheduler {
	t.Helper()
	sched, err := NewDailyScheduler(engine, Config{
		Timezone:     "Asia/Shanghai",
		DailyAt:      "09:00",
		TickInterval: 30 * time.Second,
	}, nil)
	require.NoError(t, err)
	return sched
}

// shanghai returns a clock pinned to the given local time in Asia/Shanghai.
func shanghai(t *testing.T, hour, minute int) func() time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return func() time.Time {
		return time.Date(2026, 8, 25, hour, minute, 0, 0, loc)
	}
}

func TestTick_NotDueBeforeDailyTime(t *testing.T) {
	engine := &fakeEngine{}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 8, 59)

	sched.tick(context.Background(), false)

	assert.Zero(t, engine.runs)
}

func TestTick_RunsOnceWhenDue(t *testing.T) {
	engine := &fakeEngine{}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 9, 0)

	sched.tick(context.Background(), false)
	sched.tick(context.Background(), false)
	sched.tick(context.Background(), false)

	assert.Equal(t, 1, engine.runs, "same date key must not trigger twice")
	assert.Equal(t, "2026-08-25", sched.lastRunDateKey)
}

func TestTick_RunsAgainOnNextDay(t *testing.T) {
	engine := &fakeEngine{}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 10, 0)
	sched.tick(context.Background(), false)

	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	sched.now = func() time.Time {
		return time.Date(2026, 8, 26, 9, 5, 0, 0, loc)
	}
	sched.tick(context.Background(), false)

	assert.Equal(t, 2, engine.runs)
	assert.Equal(t, "2026-08-26", sched.lastRunDateKey)
}

func TestTick_FailedRunRetriesOnNextTick(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("source unavailable")}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 9, 30)

	sched.tick(context.Background(), false)
	assert.Empty(t, sched.lastRunDateKey, "failed run leaves the day unclaimed")

	engine.err = nil
	sched.tick(context.Background(), false)
	assert.Equal(t, 2, engine.runs)
	assert.Equal(t, "2026-08-25", sched.lastRunDateKey)
}

func TestTick_LockSkipRetriesOnNextTick(t *testing.T) {
	engine := &fakeEngine{skippedByLock: true}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 9, 0)

	sched.tick(context.Background(), false)
	assert.Empty(t, sched.lastRunDateKey)

	engine.skippedByLock = false
	sched.tick(context.Background(), false)
	assert.Equal(t, "2026-08-25", sched.lastRunDateKey)
}

func TestTick_NoOpWhileRunInProgress(t *testing.T) {
	engine := &fakeEngine{}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 9, 0)
	sched.isRunning = true

	sched.tick(context.Background(), false)
	sched.tick(context.Background(), true)

	assert.Zero(t, engine.runs, "in-progress guard blocks even forced ticks")
	assert.Empty(t, sched.lastRunDateKey)
}

func TestTick_ForcedBypassesTimeGateNotDayGate(t *testing.T) {
	engine := &fakeEngine{}
	sched := newTestScheduler(t, engine)
	sched.now = shanghai(t, 6, 0)

	sched.tick(context.Background(), true)
	assert.Equal(t, 1, engine.runs, "forced tick runs before the daily time")

	sched.tick(context.Background(), true)
	assert.Equal(t, 1, engine.runs, "forced tick still honors the once-per-day gate")
}

func TestNewDailyScheduler_RejectsBadInput(t *testing.T) {
	_, err := NewDailyScheduler(&fakeEngine{}, Config{Timezone: "Mars/Olympus", DailyAt: "09:00"}, nil)
	assert.Error(t, err)

	_, err = NewDailyScheduler(&fakeEngine{}, Config{Timezone: "UTC", DailyAt: "25:00"}, nil)
	assert.Error(t, err)

	_, err = NewDailyScheduler(&fakeEngine{}, Config{Timezone: "UTC", DailyAt: "0900"}, nil)
	assert.Error(t, err)
}
