// ABOUTME: SQLite-backed implementation of the StateStore contract
// ABOUTME: Single-file database with WAL journaling and immediate-write lock transactions

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"media-archiver/models"

	_ "modernc.org/sqlite" // Pure Go driver
)

const timeFormat = time.RFC3339Nano

// SQLiteStateStore persists cursors, the media registry and the job lock in a
// single SQLite file. The store is single-process; the job lock row protects
// against overlapping runs, and against other processes when the file is shared.
type SQLiteStateStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStateStore opens (or creates) the database at dbPath with the
// mandatory pragmas applied to every pooled connection. _txlock=immediate makes
// explicit transactions take the write lock up front, which is what makes
// AcquireLock a real check-and-set against other writers.
func NewSQLiteStateStore(dbPath string, logger *slog.Logger) (*SQLiteStateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// One writer connection keeps statement ordering trivial for a store this small.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	return &SQLiteStateStore{db: db, logger: logger}, nil
}

// Init creates the three relations if absent and applies additive migrations.
func (s *SQLiteStateStore) Init(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS account_cursors (
			handle              TEXT PRIMARY KEY,
			latest_seen_post_id TEXT NOT NULL DEFAULT '',
			backfill_cursor     TEXT NOT NULL DEFAULT '',
			backfill_done       INTEGER NOT NULL DEFAULT 0,
			rate_limited_until  TEXT,
			updated_at          TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS media_registry (
			media_key        TEXT PRIMARY KEY,
			post_id          TEXT NOT NULL,
			account_handle   TEXT NOT NULL,
			media_url        TEXT NOT NULL,
			media_type       TEXT NOT NULL,
			uploaded_at      TEXT NOT NULL,
			sink_message_ids TEXT NOT NULL DEFAULT '[]',
			status           TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_locks (
			job_name     TEXT PRIMARY KEY,
			locked_until TEXT NOT NULL,
			holder_id    TEXT NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	// Older databases predate cooldown tracking.
	if err := s.migrateRateLimitedUntil(ctx); err != nil {
		return fmt.Errorf("failed to migrate account_cursors: %w", err)
	}

	s.logger.Debug("State store schema ready")
	return nil
}

// migrateRateLimitedUntil adds the rate_limited_until column when an older
// schema lacks it. Schema evolution is additive only.
func (s *SQLiteStateStore) migrateRateLimitedUntil(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(account_cursors)`)
	if err != nil {
		return fmt.Errorf("failed to inspect account_cursors: %w", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == "rate_limited_until" {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE account_cursors ADD COLUMN rate_limited_until TEXT`); err != nil {
		// Racing schema bring-up in another process may have added it already.
		if strings.Contains(err.Error(), "duplicate column name") {
			return nil
		}
		return err
	}

	s.logger.Info("Added rate_limited_until column to account_cursors")
	return nil
}

// GetAccount returns the stored cursor or a zero-valued one if absent.
func (s *SQLiteStateStore) GetAccount(ctx context.Context, handle string) (*models.AccountCursor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT handle, latest_seen_post_id, backfill_cursor, backfill_done, rate_limited_until, updated_at
		 FROM account_cursors WHERE handle = ?`, handle)

	var (
		cursor    models.AccountCursor
		done      int
		rateLimit sql.NullString
		updatedAt string
	)
	err := row.Scan(&cursor.Handle, &cursor.LatestSeenPostID, &cursor.BackfillCursor, &done, &rateLimit, &updatedAt)
	if err == sql.ErrNoRows {
		return models.NewAccountCursor(handle), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor for %s: %w", handle, err)
	}

	cursor.BackfillDone = done != 0
	if rateLimit.Valid && rateLimit.String != "" {
		t, err := time.Parse(timeFormat, rateLimit.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rate_limited_until for %s: %w", handle, err)
		}
		cursor.RateLimitedUntil = &t
	}
	if cursor.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for %s: %w", handle, err)
	}

	return &cursor, nil
}

// PutAccount upserts a cursor by handle.
func (s *SQLiteStateStore) PutAccount(ctx context.Context, cursor *models.AccountCursor) error {
	updatedAt := cursor.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var rateLimit interface{}
	if cursor.RateLimitedUntil != nil {
		rateLimit = cursor.RateLimitedUntil.UTC().Format(timeFormat)
	}

	done := 0
	if cursor.BackfillDone {
		done = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO account_cursors (handle, latest_seen_post_id, backfill_cursor, backfill_done, rate_limited_until, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(handle) DO UPDATE SET
			latest_seen_post_id = excluded.latest_seen_post_id,
			backfill_cursor     = excluded.backfill_cursor,
			backfill_done       = excluded.backfill_done,
			rate_limited_until  = excluded.rate_limited_until,
			updated_at          = excluded.updated_at`,
		cursor.Handle, cursor.LatestSeenPostID, cursor.BackfillCursor, done, rateLimit, updatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to upsert cursor for %s: %w", cursor.Handle, err)
	}
	return nil
}

// IsMediaUploaded is a point lookup on the dedupe registry.
func (s *SQLiteStateStore) IsMediaUploaded(ctx context.Context, mediaKey string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM media_registry WHERE media_key = ?`, mediaKey).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up media key: %w", err)
	}
	return true, nil
}

// MarkMedia inserts-or-replaces a registry row by media key.
func (s *SQLiteStateStore) MarkMedia(ctx context.Context, record *models.MediaRecord) error {
	ids, err := json.Marshal(record.SinkMessageIDs)
	if err != nil {
		return fmt.Errorf("failed to encode sink message ids: %w", err)
	}

	uploadedAt := record.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO media_registry
			(media_key, post_id, account_handle, media_url, media_type, uploaded_at, sink_message_ids, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.MediaKey, record.PostID, record.AccountHandle, record.MediaURL,
		string(record.MediaType), uploadedAt.UTC().Format(timeFormat), string(ids), string(record.Status))
	if err != nil {
		return fmt.Errorf("failed to mark media %s: %w", record.MediaKey, err)
	}
	return nil
}

// AcquireLock claims the job lock inside an immediate-write transaction so two
// callers cannot both observe the lock as free.
func (s *SQLiteStateStore) AcquireLock(ctx context.Context, jobName, holderID string, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin lock transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	var lockedUntil string
	err = tx.QueryRowContext(ctx, `SELECT locked_until FROM job_locks WHERE job_name = ?`, jobName).Scan(&lockedUntil)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to read job lock: %w", err)
	}
	if err == nil {
		until, parseErr := time.Parse(timeFormat, lockedUntil)
		if parseErr != nil {
			return false, fmt.Errorf("failed to parse locked_until: %w", parseErr)
		}
		if until.After(now) {
			// Held and unexpired. Contention is a return value, not an error.
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_locks (job_name, locked_until, holder_id) VALUES (?, ?, ?)`,
		jobName, now.Add(ttl).Format(timeFormat), holderID)
	if err != nil {
		return false, fmt.Errorf("failed to write job lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit job lock: %w", err)
	}

	s.logger.Debug("Acquired job lock", "job_name", jobName, "holder_id", holderID, "ttl", ttl)
	return true, nil
}

// ReleaseLock deletes the lock row only when the holder matches.
func (s *SQLiteStateStore) ReleaseLock(ctx context.Context, jobName, holderID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_locks WHERE job_name = ? AND holder_id = ?`, jobName, holderID)
	if err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Warn("Release requested for lock not held by caller",
			"job_name", jobName, "holder_id", holderID)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}
