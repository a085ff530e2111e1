// ABOUTME: Source adapter: paged retrieval of a user's media-bearing posts
// ABOUTME: Threads bottom cursors between pages and extracts usable media per post

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"media-archiver/driver"
	"media-archiver/models"
)

// timelinePageSize is the page size requested from the user-posts query.
const timelinePageSize = 20

// FetchDirection selects incremental (newer) or backfill (older) paging.
type FetchDirection string

const (
	DirectionNewer FetchDirection = "newer"
	DirectionOlder FetchDirection = "older"
)

// ListPostsRequest parameterises one paged fetch.
type ListPostsRequest struct {
	Handle    string
	Direction FetchDirection
	Cursor    string
	PageLimit int
}

// FetchResult carries the media posts of a fetch plus the continuation token
// for older-direction paging.
type FetchResult struct {
	Posts      []*models.Post
	NextCursor string
}

// TwitterDriver is the wire-level surface the timeline service consumes.
type TwitterDriver interface {
	UserByScreenName(ctx context.Context, handle string) (*driver.UserResult, error)
	UserTweets(ctx context.Context, userID string, count int, cursor string) (*driver.UserResult, error)
	CheckSession(ctx context.Context) (*driver.SessionStatus, error)
}

// TimelineService implements the source adapter over the GraphQL driver.
type TimelineService struct {
	client  TwitterDriver
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	userIDs map[string]string // handle -> rest_id
}

// NewTimelineService creates a timeline service. Pages are paced at one per
// second to stay polite with the source platform.
func NewTimelineService(client TwitterDriver, logger *slog.Logger) *TimelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelineService{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		userIDs: make(map[string]string),
	}
}

// ListPostsWithMedia pages the user's timeline up to PageLimit pages, stopping
// early when no bottom cursor is produced or the cursor fails to advance.
// Posts are deduplicated by id and returned newest-first; the final bottom
// cursor is yielded only for older-direction fetches.
func (s *TimelineService) ListPostsWithMedia(ctx context.Context, req ListPostsRequest) (*FetchResult, error) {
	userID, err := s.resolveUserID(ctx, req.Handle)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var posts []*models.Post
	cursor := req.Cursor
	var lastCursor string

	for page := 0; page < req.PageLimit; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := s.client.UserTweets(ctx, userID, timelinePageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to page timeline for %s: %w", req.Handle, err)
		}

		pagePosts, bottomCursor := s.extractPage(result, req.Handle)
		for _, post := range pagePosts {
			if !seen[post.ID] {
				seen[post.ID] = true
				posts = append(posts, post)
			}
		}

		s.logger.Debug("Fetched timeline page",
			"handle", req.Handle,
			"direction", string(req.Direction),
			"page", page+1,
			"media_posts", len(pagePosts),
			"has_cursor", bottomCursor != "")

		if bottomCursor == "" {
			// Timeline end. Clear any earlier cursor so older-direction
			// callers see an empty continuation and stop here.
			lastCursor = ""
			break
		}
		if bottomCursor == cursor {
			break
		}
		lastCursor = bottomCursor
		cursor = bottomCursor
	}

	sort.Slice(posts, func(i, j int) bool {
		return models.CompareIDs(posts[i].ID, posts[j].ID) > 0
	})

	res := &FetchResult{Posts: posts}
	if req.Direction == DirectionOlder {
		res.NextCursor = lastCursor
	}
	return res, nil
}

// CheckSession probes the source session state.
func (s *TimelineService) CheckSession(ctx context.Context) (*driver.SessionStatus, error) {
	return s.client.CheckSession(ctx)
}

// HealthCheck verifies the session and that the handle resolves.
func (s *TimelineService) HealthCheck(ctx context.Context, handle string) error {
	status, err := s.CheckSession(ctx)
	if err != nil {
		return fmt.Errorf("session check failed: %w", err)
	}
	if !status.LoggedIn {
		return fmt.Errorf("source session not logged in: %s", status.Reason)
	}
	if _, err := s.resolveUserID(ctx, handle); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", handle, err)
	}
	return nil
}

// resolveUserID maps a handle to its internal user id, cached per service.
func (s *TimelineService) resolveUserID(ctx context.Context, handle string) (string, error) {
	s.mu.Lock()
	cached, ok := s.userIDs[handle]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	user, err := s.client.UserByScreenName(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("failed to resolve user id for %s: %w", handle, err)
	}

	s.mu.Lock()
	s.userIDs[handle] = user.RestID
	s.mu.Unlock()

	return user.RestID, nil
}

// extractPage walks one timeline response: media posts plus the bottom cursor.
func (s *TimelineService) extractPage(result *driver.UserResult, handle string) ([]*models.Post, string) {
	var posts []*models.Post
	bottomCursor := ""

	for _, instruction := range result.TimelineV2.Timeline.Instructions {
		if instruction.Type != "TimelineAddEntries" {
			continue
		}
		for _, entry := range instruction.Entries {
			switch entry.Content.EntryType {
			case "TimelineTimelineCursor":
				if entry.Content.CursorType == "Bottom" {
					bottomCursor = entry.Content.Value
				}
			case "TimelineTimelineItem":
				tweet := entry.Content.ItemContent.TweetResults.Result.Unwrap()
				if tweet == nil || tweet.RestID == "" {
					continue
				}
				if post := s.buildPost(tweet, handle); post != nil {
					posts = append(posts, post)
				}
			}
		}
	}

	return posts, bottomCursor
}

// buildPost extracts usable media from a tweet; nil when none remains.
func (s *TimelineService) buildPost(tweet *driver.TweetResult, handle string) *models.Post {
	var media []models.MediaItem
	for _, entity := range tweet.Legacy.ExtendedEntities.Media {
		switch entity.Type {
		case "photo":
			if entity.MediaURLHTTPS != "" {
				media = append(media, models.MediaItem{
					URL:  entity.MediaURLHTTPS + "?name=orig",
					Type: models.MediaTypePhoto,
				})
			}
		case "video", "animated_gif":
			url := entity.BestMP4()
			if url == "" {
				continue
			}
			mediaType := models.MediaTypeVideo
			if entity.Type == "animated_gif" {
				mediaType = models.MediaTypeGIF
			}
			media = append(media, models.MediaItem{URL: url, Type: mediaType})
		}
	}
	if len(media) == 0 {
		return nil
	}

	postHandle := tweet.Core.UserResults.Result.Legacy.ScreenName
	if postHandle == "" {
		postHandle = handle
	}

	return &models.Post{
		ID:       tweet.RestID,
		Handle:   postHandle,
		URL:      fmt.Sprintf("https://x.com/%s/status/%s", strings.TrimPrefix(postHandle, "@"), tweet.RestID),
		PostedAt: tweet.Legacy.CreatedAtTime(),
		Media:    media,
	}
}
