// ABOUTME: This file defines the durable per-account sync cursor
// ABOUTME: Tracks latest-seen post id, backfill continuation and rate-limit cooldown

package models

import "time"

// AccountCursor is the per-handle progress state persisted between runs.
// A zero-valued cursor (empty ids, nil timestamps) means the account has
// never been synced.
type AccountCursor struct {
	Handle           string     `json:"handle" db:"handle"`
	LatestSeenPostID string     `json:"latest_seen_post_id" db:"latest_seen_post_id"`
	BackfillCursor   string     `json:"backfill_cursor" db:"backfill_cursor"`
	BackfillDone     bool       `json:"backfill_done" db:"backfill_done"`
	RateLimitedUntil *time.Time `json:"rate_limited_until" db:"rate_limited_until"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// NewAccountCursor creates a zero-valued cursor for a handle.
func NewAccountCursor(handle string) *AccountCursor {
	return &AccountCursor{Handle: handle}
}

// InCooldown reports whether the account is currently rate-limit suppressed.
func (c *AccountCursor) InCooldown(now time.Time) bool {
	return c.RateLimitedUntil != nil && c.RateLimitedUntil.After(now)
}

// ApplyCooldown sets the cooldown deadline, leaving all progress fields alone.
func (c *AccountCursor) ApplyCooldown(until time.Time) {
	c.RateLimitedUntil = &until
}

// ClearCooldown removes any cooldown deadline.
func (c *AccountCursor) ClearCooldown() {
	c.RateLimitedUntil = nil
}
