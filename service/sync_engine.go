// ABOUTME: The per-run sync pipeline: cursor selection, candidate merge, budgeted
// ABOUTME: processing, cooldown application and durable progress under the job lock

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"media-archiver/models"
	"media-archiver/repository"
	"media-archiver/utils"
)

// jobName keys the single durable mutex row gating concurrent runs.
const jobName = "daily-sync"

// SourceAdapter lists a user's media-bearing posts with paging.
type SourceAdapter interface {
	ListPostsWithMedia(ctx context.Context, req ListPostsRequest) (*FetchResult, error)
}

// SinkAdapter delivers media groups and text reports to the archive channel.
type SinkAdapter interface {
	SendMediaGroup(ctx context.Context, postURL, handle string, postedAt time.Time, files []models.LocalFile) ([]int, error)
	SendText(ctx context.Context, text string) error
}

// Downloader fetches one media to local disk.
type Downloader interface {
	Download(ctx context.Context, req DownloadRequest) (*models.LocalFile, error)
}

// EngineConfig bounds one run of the pipeline.
type EngineConfig struct {
	Accounts            []string
	DownloadDir         string
	LockTTL             time.Duration
	BackfillPagesPerRun int
	MaxMediaPerRun      int
	MaxUploadVideoBytes int64
	Cooldown            time.Duration
}

// SyncEngine orchestrates one run: strictly sequential across accounts, posts
// and media. Predictability and rate-limit friendliness dominate.
type SyncEngine struct {
	state      repository.StateStore
	source     SourceAdapter
	sink       SinkAdapter
	downloader Downloader
	config     EngineConfig
	logger     *slog.Logger
	metrics    *utils.RunMetrics

	downloadRetry RetryConfig
	sendRetry     RetryConfig

	now func() time.Time
}

// NewSyncEngine wires the pipeline together.
func NewSyncEngine(
	state repository.StateStore,
	source SourceAdapter,
	sink SinkAdapter,
	downloader Downloader,
	config EngineConfig,
	logger *slog.Logger,
) *SyncEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncEngine{
		state:         state,
		source:        source,
		sink:          sink,
		downloader:    downloader,
		config:        config,
		logger:        logger,
		metrics:       utils.NewRunMetrics(logger),
		downloadRetry: RetryConfig{MaxRetries: 2, InitialDelay: time.Second, Multiplier: 2.0},
		sendRetry:     RetryConfig{MaxRetries: 2, InitialDelay: 1500 * time.Millisecond, Multiplier: 2.0},
		now:           time.Now,
	}
}

// Run executes one sync run and returns its summary. Lock contention is not an
// error: the summary reports skipped_by_lock and no accounts.
func (e *SyncEngine) Run(ctx context.Context) (*models.RunSummary, error) {
	startedAt := e.now()
	holderID := fmt.Sprintf("sync-%d-%d", os.Getpid(), startedAt.UnixMilli())
	summary := models.NewRunSummary(holderID, startedAt)

	if err := e.state.Init(ctx); err != nil {
		return nil, fmt.Errorf("state init failed: %w", err)
	}
	if err := os.MkdirAll(e.config.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	acquired, err := e.state.AcquireLock(ctx, jobName, holderID, e.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	if !acquired {
		e.logger.Warn("Another run holds the job lock, skipping", "holder_id", holderID)
		summary.SkippedByLock = true
		summary.FinishedAt = e.now()
		return summary, nil
	}

	defer func() {
		// The run context may already be cancelled on shutdown; the lock
		// must still be freed rather than lingering until TTL.
		releaseCtx := context.WithoutCancel(ctx)
		if err := e.state.ReleaseLock(releaseCtx, jobName, holderID); err != nil {
			e.logger.Error("Failed to release job lock", "holder_id", holderID, "error", err)
		}
	}()

	e.logger.Info("Sync run starting",
		"run_id", summary.RunID,
		"holder_id", holderID,
		"accounts", len(e.config.Accounts))

	for _, handle := range e.config.Accounts {
		account := e.processAccount(ctx, handle)
		summary.Accounts = append(summary.Accounts, account)
		e.metrics.Add("media_uploaded", float64(account.Uploaded), "handle", handle)
		e.metrics.Add("media_skipped", float64(account.Skipped), "handle", handle)
		e.metrics.Add("posts_failed", float64(account.Failed), "handle", handle)
	}

	if err := e.sink.SendText(ctx, BuildRunReport(summary)); err != nil {
		e.logger.Error("Failed to send run report", "error", err)
	}

	summary.FinishedAt = e.now()
	e.metrics.Flush()
	e.logger.Info("Sync run finished",
		"run_id", summary.RunID,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
		"total_uploaded", summary.TotalUploaded())

	return summary, nil
}

// processAccount runs the full fetch/select/process cycle for one handle.
// Errors never escape the account boundary.
func (e *SyncEngine) processAccount(ctx context.Context, handle string) models.AccountSummary {
	summary := models.AccountSummary{Handle: handle}

	cursor, err := e.state.GetAccount(ctx, handle)
	if err != nil {
		e.logger.Error("Failed to load account cursor", "handle", handle, "error", err)
		summary.Failed = 1
		e.reportAccountFailure(ctx, handle, err)
		return summary
	}

	now := e.now()
	if cursor.InCooldown(now) {
		e.logger.Info("Account in cooldown, skipping",
			"handle", handle,
			"cooldown_until", cursor.RateLimitedUntil)
		summary.CooldownActive = true
		summary.CooldownUntil = cursor.RateLimitedUntil
		return summary
	}

	// Keep the pre-run cursor fields for the failure paths.
	preRun := *cursor

	incremental, newestSeenID, err := e.fetchIncremental(ctx, handle, cursor.LatestSeenPostID)
	if err != nil {
		return e.handleAccountError(ctx, handle, &preRun, summary, err)
	}

	backfill, nextCursor, backfillDone, err := e.fetchBackfill(ctx, handle, cursor)
	if err != nil {
		return e.handleAccountError(ctx, handle, &preRun, summary, err)
	}

	incrementalSet := make(map[string]bool, len(incremental))
	for _, p := range incremental {
		incrementalSet[p.ID] = true
	}

	incCandidates, backCandidates := mergeCandidates(incremental, backfill, incrementalSet)
	summary.IncrementalCandidates = len(incCandidates)
	summary.BackfillCandidates = len(backCandidates)

	selected, incSelected, backSelected := e.selectWithinBudget(incCandidates, backCandidates, incrementalSet)
	summary.IncrementalSelected = incSelected
	summary.BackfillSelected = backSelected

	for _, post := range selected {
		uploaded, skipped, postErr := e.processPost(ctx, handle, post)
		summary.Uploaded += uploaded
		summary.Skipped += skipped
		if postErr != nil {
			if models.IsRateLimit(postErr) {
				return e.handleAccountError(ctx, handle, &preRun, summary, postErr)
			}
			summary.Failed++
			e.logger.Error("Post processing failed",
				"handle", handle,
				"post_id", post.ID,
				"error", postErr)
		}
	}

	cursor.LatestSeenPostID = newestSeenID
	cursor.BackfillCursor = nextCursor
	cursor.BackfillDone = backfillDone
	cursor.ClearCooldown()
	cursor.UpdatedAt = e.now()
	if err := e.state.PutAccount(ctx, cursor); err != nil {
		e.logger.Error("Failed to persist cursor", "handle", handle, "error", err)
		summary.Failed++
		e.reportAccountFailure(ctx, handle, err)
		return summary
	}

	summary.BackfillDone = backfillDone
	e.logger.Info("Account processed",
		"handle", handle,
		"uploaded", summary.Uploaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"backfill_done", backfillDone)

	return summary
}

// handleAccountError applies the cursor failure policy: a rate limit writes
// only the cooldown deadline onto the pre-run cursor; any other failure leaves
// the stored cursor untouched and sends a failure report.
func (e *SyncEngine) handleAccountError(ctx context.Context, handle string, preRun *models.AccountCursor, summary models.AccountSummary, err error) models.AccountSummary {
	summary.Failed++

	if models.IsRateLimit(err) {
		until := e.now().Add(e.config.Cooldown)
		preRun.ApplyCooldown(until)
		preRun.UpdatedAt = e.now()
		if putErr := e.state.PutAccount(ctx, preRun); putErr != nil {
			e.logger.Error("Failed to persist cooldown", "handle", handle, "error", putErr)
		}
		summary.CooldownActive = true
		summary.CooldownUntil = &until
		e.logger.Warn("Account rate limited, entering cooldown",
			"handle", handle,
			"cooldown_until", until,
			"error", err)
		return summary
	}

	e.logger.Error("Account sync failed", "handle", handle, "error", err)
	e.reportAccountFailure(ctx, handle, err)
	return summary
}

// fetchIncremental pulls newer-direction posts and cuts the list at the
// latest-seen id. Returns the accepted posts and the new newest-seen id.
func (e *SyncEngine) fetchIncremental(ctx context.Context, handle, latestSeenID string) ([]*models.Post, string, error) {
	result, err := e.source.ListPostsWithMedia(ctx, ListPostsRequest{
		Handle:    handle,
		Direction: DirectionNewer,
		PageLimit: e.config.BackfillPagesPerRun,
	})
	if err != nil {
		return nil, "", err
	}

	newestSeenID := latestSeenID
	if len(result.Posts) > 0 {
		newestSeenID = result.Posts[0].ID
	}

	var accepted []*models.Post
	for _, post := range result.Posts {
		if post.ID == latestSeenID {
			break
		}
		accepted = append(accepted, post)
	}

	return accepted, newestSeenID, nil
}

// fetchBackfill pulls older-direction posts from the stored continuation,
// unless backfill has already terminated.
func (e *SyncEngine) fetchBackfill(ctx context.Context, handle string, cursor *models.AccountCursor) ([]*models.Post, string, bool, error) {
	if cursor.BackfillDone {
		return nil, "", true, nil
	}

	result, err := e.source.ListPostsWithMedia(ctx, ListPostsRequest{
		Handle:    handle,
		Direction: DirectionOlder,
		Cursor:    cursor.BackfillCursor,
		PageLimit: e.config.BackfillPagesPerRun,
	})
	if err != nil {
		return nil, "", false, err
	}

	return result.Posts, result.NextCursor, result.NextCursor == "", nil
}

// mergeCandidates unions the two fetches, deduplicates by id and sorts
// ascending by numeric id, then partitions by incremental membership.
func mergeCandidates(incremental, backfill []*models.Post, incrementalSet map[string]bool) (inc, back []*models.Post) {
	seen := make(map[string]bool)
	var merged []*models.Post
	for _, p := range append(append([]*models.Post{}, incremental...), backfill...) {
		if !seen[p.ID] {
			seen[p.ID] = true
			merged = append(merged, p)
		}
	}

	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && models.CompareIDs(merged[j-1].ID, merged[j].ID) > 0; j-- {
			merged[j-1], merged[j] = merged[j], merged[j-1]
		}
	}

	for _, p := range merged {
		if incrementalSet[p.ID] {
			inc = append(inc, p)
		} else {
			back = append(back, p)
		}
	}
	return inc, back
}

// selectWithinBudget takes incremental candidates first, then backfill, never
// exceeding the per-run media budget. A post larger than the remaining budget
// is skipped unless nothing has been selected yet, bounding the worst case to
// one oversized selection.
func (e *SyncEngine) selectWithinBudget(incCandidates, backCandidates []*models.Post, incrementalSet map[string]bool) (selected []*models.Post, incSelected, backSelected int) {
	budget := e.config.MaxMediaPerRun

	for _, post := range append(append([]*models.Post{}, incCandidates...), backCandidates...) {
		if budget <= 0 {
			break
		}
		if len(post.Media) > budget && len(selected) > 0 {
			continue
		}
		selected = append(selected, post)
		budget -= len(post.Media)
		if incrementalSet[post.ID] {
			incSelected++
		} else {
			backSelected++
		}
	}
	return selected, incSelected, backSelected
}

// processPost handles every media of one post: dedupe, download with retry,
// oversize filtering, one grouped sink send, registry inserts. Downloaded
// files are always removed before returning. The returned error is non-nil
// for failures that should count against the post; rate limits propagate so
// the account can enter cooldown.
func (e *SyncEngine) processPost(ctx context.Context, handle string, post *models.Post) (uploaded, skipped int, err error) {
	downloadDir := filepath.Join(e.config.DownloadDir, handle)

	var downloaded []*models.LocalFile
	defer func() {
		for _, file := range downloaded {
			if rmErr := os.Remove(file.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				e.logger.Warn("Failed to remove scratch file", "path", file.Path, "error", rmErr)
			}
		}
	}()

	var sendList []*models.LocalFile
	for _, media := range post.Media {
		mediaKey := models.MediaKey(post.ID, media.URL)

		exists, lookupErr := e.state.IsMediaUploaded(ctx, mediaKey)
		if lookupErr != nil {
			return uploaded, skipped, fmt.Errorf("dedupe lookup failed: %w", lookupErr)
		}
		if exists {
			skipped++
			continue
		}

		var file *models.LocalFile
		dlErr := withRetry(ctx, e.logger, "download "+mediaKey, e.downloadRetry, func() error {
			var innerErr error
			file, innerErr = e.downloader.Download(ctx, DownloadRequest{
				MediaKey:  mediaKey,
				MediaURL:  media.URL,
				MediaType: media.Type,
				Dir:       downloadDir,
			})
			return innerErr
		})
		if dlErr != nil {
			return uploaded, skipped, fmt.Errorf("download failed for %s: %w", mediaKey, dlErr)
		}
		downloaded = append(downloaded, file)

		if media.Type != models.MediaTypePhoto && file.SizeBytes > e.config.MaxUploadVideoBytes {
			record := &models.MediaRecord{
				MediaKey:       mediaKey,
				PostID:         post.ID,
				AccountHandle:  handle,
				MediaURL:       media.URL,
				MediaType:      media.Type,
				UploadedAt:     e.now(),
				SinkMessageIDs: []int{},
				Status:         models.MediaStatusSkippedOversize,
			}
			if markErr := e.state.MarkMedia(ctx, record); markErr != nil {
				return uploaded, skipped, fmt.Errorf("failed to record oversize skip: %w", markErr)
			}
			e.logger.Info("Skipping oversize video",
				"handle", handle,
				"post_id", post.ID,
				"size_bytes", file.SizeBytes,
				"limit_bytes", e.config.MaxUploadVideoBytes)
			skipped++
			continue
		}

		sendList = append(sendList, file)
	}

	if len(sendList) == 0 {
		return uploaded, skipped, nil
	}

	files := make([]models.LocalFile, len(sendList))
	for i, f := range sendList {
		files[i] = *f
	}

	var messageIDs []int
	sendErr := withRetry(ctx, e.logger, "send post "+post.ID, e.sendRetry, func() error {
		var innerErr error
		messageIDs, innerErr = e.sink.SendMediaGroup(ctx, post.URL, handle, post.PostedAt, files)
		return innerErr
	})
	if sendErr != nil {
		return uploaded, skipped, fmt.Errorf("sink upload failed for post %s: %w", post.ID, sendErr)
	}

	for _, file := range sendList {
		record := &models.MediaRecord{
			MediaKey:       file.MediaKey,
			PostID:         post.ID,
			AccountHandle:  handle,
			MediaURL:       file.MediaURL,
			MediaType:      file.MediaType,
			UploadedAt:     e.now(),
			SinkMessageIDs: messageIDs,
			Status:         models.MediaStatusUploaded,
		}
		if markErr := e.state.MarkMedia(ctx, record); markErr != nil {
			return uploaded, skipped, fmt.Errorf("failed to record upload: %w", markErr)
		}
		uploaded++
	}

	return uploaded, skipped, nil
}

// reportAccountFailure sends a per-account failure notice; best effort.
func (e *SyncEngine) reportAccountFailure(ctx context.Context, handle string, failure error) {
	text := BuildAccountFailureReport(handle, failure)
	if err := e.sink.SendText(ctx, text); err != nil {
		e.logger.Error("Failed to send failure report", "handle", handle, "error", err)
	}
}
