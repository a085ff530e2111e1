// ABOUTME: This file defines domain models for source-platform posts and their media
// ABOUTME: Posts carry one or more media items; posts without usable media are dropped upstream

package models

import "time"

// MediaType classifies a media item attached to a post.
type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
	MediaTypeGIF   MediaType = "gif"
)

// MediaItem is a single downloadable media attached to a post.
type MediaItem struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// Post represents a media-bearing post from the source platform.
type Post struct {
	ID       string      `json:"id"` // decimal snowflake id, numerically comparable
	Handle   string      `json:"handle"`
	URL      string      `json:"url"`
	PostedAt time.Time   `json:"posted_at"`
	Media    []MediaItem `json:"media"`
}

// LocalFile describes a media item that has been downloaded to disk.
type LocalFile struct {
	MediaKey  string    `json:"media_key"`
	MediaURL  string    `json:"media_url"`
	MediaType MediaType `json:"media_type"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
}

// CompareIDs compares two decimal post ids numerically without overflow:
// shorter strings are smaller, equal-length strings compare lexicographically.
// Returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
