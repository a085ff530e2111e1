// ABOUTME: Repository layer common interfaces for clean architecture
// ABOUTME: Defines the durable state contract used by the sync engine

package repository

import (
	"context"
	"time"

	"media-archiver/models"
)

// StateStore is the durable persistence contract: account cursors, the media
// dedupe registry and the job lock. A single SQLite file backs all three.
type StateStore interface {
	// Init performs idempotent schema bring-up, including additive migrations.
	Init(ctx context.Context) error

	// GetAccount returns the stored cursor, or a zero-valued cursor if the
	// handle has never been seen. It never returns ErrNotFound.
	GetAccount(ctx context.Context, handle string) (*models.AccountCursor, error)

	// PutAccount upserts a cursor by handle. UpdatedAt defaults to now when unset.
	PutAccount(ctx context.Context, cursor *models.AccountCursor) error

	// IsMediaUploaded is a point lookup on the dedupe registry.
	IsMediaUploaded(ctx context.Context, mediaKey string) (bool, error)

	// MarkMedia inserts-or-replaces a registry row by media key.
	MarkMedia(ctx context.Context, record *models.MediaRecord) error

	// AcquireLock atomically claims the job lock when absent or expired.
	// Contention is a false return, not an error.
	AcquireLock(ctx context.Context, jobName, holderID string, ttl time.Duration) (bool, error)

	// ReleaseLock deletes the lock row only when holderID matches. A holder
	// mismatch is a no-op.
	ReleaseLock(ctx context.Context, jobName, holderID string) error

	// Close releases the underlying database handle.
	Close() error
}
