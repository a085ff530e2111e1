// ABOUTME: This file defines the media dedupe registry record and the media key derivation
// ABOUTME: Presence of a media key in the registry is the authoritative dedupe signal

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MediaStatus is the terminal state of a registry row.
type MediaStatus string

const (
	MediaStatusUploaded        MediaStatus = "uploaded"
	MediaStatusSkippedOversize MediaStatus = "skipped_oversize"
)

// MediaRecord is one row of the dedupe registry. Inserted exactly once when a
// media is delivered to the sink or deliberately dropped; never updated.
type MediaRecord struct {
	MediaKey       string      `json:"media_key" db:"media_key"`
	PostID         string      `json:"post_id" db:"post_id"`
	AccountHandle  string      `json:"account_handle" db:"account_handle"`
	MediaURL       string      `json:"media_url" db:"media_url"`
	MediaType      MediaType   `json:"media_type" db:"media_type"`
	UploadedAt     time.Time   `json:"uploaded_at" db:"uploaded_at"`
	SinkMessageIDs []int       `json:"sink_message_ids" db:"sink_message_ids"`
	Status         MediaStatus `json:"status" db:"status"`
}

// MediaKey derives the content-addressed dedupe key for a (post, media URL)
// pair: lowercase hex sha256 of "<post_id>::<media_url>". Stable across
// processes and runs.
func MediaKey(postID, mediaURL string) string {
	sum := sha256.Sum256([]byte(postID + "::" + mediaURL))
	return hex.EncodeToString(sum[:])
}

// JobLock is the single durable mutex row gating concurrent runs.
type JobLock struct {
	JobName     string    `json:"job_name" db:"job_name"`
	LockedUntil time.Time `json:"locked_until" db:"locked_until"`
	HolderID    string    `json:"holder_id" db:"holder_id"`
}
