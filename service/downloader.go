// ABOUTME: Streams remote media to local files under deterministic content-addressed paths
// ABOUTME: No retries here; retry policy lives in the sync engine

package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"media-archiver/models"
)

// DownloadRequest names one media to fetch into dir.
type DownloadRequest struct {
	MediaKey  string
	MediaURL  string
	MediaType models.MediaType
	Dir       string
}

// MediaDownloader streams media URLs to disk.
type MediaDownloader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMediaDownloader creates a downloader with a generous timeout for large videos.
func NewMediaDownloader(logger *slog.Logger) *MediaDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaDownloader{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     logger,
	}
}

// SetHTTPClient allows injecting a custom HTTP client (useful for testing).
func (d *MediaDownloader) SetHTTPClient(client *http.Client) {
	d.httpClient = client
}

// Download fetches the media to <dir>/<media_key><ext> and reports its size.
func (d *MediaDownloader) Download(ctx context.Context, req DownloadRequest) (*models.LocalFile, error) {
	ext := ".mp4"
	if req.MediaType == models.MediaTypePhoto {
		ext = ".jpg"
	}
	path := filepath.Join(req.Dir, req.MediaKey+ext)

	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.MediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("media download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	size, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write media file: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close media file: %w", closeErr)
	}

	d.logger.Debug("Downloaded media",
		"media_key", req.MediaKey,
		"path", path,
		"size_bytes", size)

	return &models.LocalFile{
		MediaKey:  req.MediaKey,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		Path:      path,
		SizeBytes: size,
	}, nil
}
