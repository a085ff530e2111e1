// ABOUTME: Downloader tests over httptest servers
// ABOUTME: Verifies paths, extensions, sizes and error cleanup

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-archiver/models"
)

func TestDownload_WritesPhotoWithSize(t *testing.T) {
	payload := []byte("fake jpeg bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	dl := NewMediaDownloader(nil)
	dir := t.TempDir()

	file, err := dl.Download(context.Background(), DownloadRequest{
		MediaKey:  "abc123",
		MediaURL:  server.URL,
		MediaType: models.MediaTypePhoto,
		Dir:       dir,
	})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc123.jpg"), file.Path)
	assert.Equal(t, int64(len(payload)), file.SizeBytes)

	written, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestDownload_VideoGetsMP4Extension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("video"))
	}))
	defer server.Close()

	dl := NewMediaDownloader(nil)
	file, err := dl.Download(context.Background(), DownloadRequest{
		MediaKey:  "vid1",
		MediaURL:  server.URL,
		MediaType: models.MediaTypeVideo,
		Dir:       t.TempDir(),
	})

	require.NoError(t, err)
	assert.Equal(t, ".mp4", filepath.Ext(file.Path))
}

func TestDownload_FailsOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dl := NewMediaDownloader(nil)
	dir := t.TempDir()

	_, err := dl.Download(context.Background(), DownloadRequest{
		MediaKey:  "missing",
		MediaURL:  server.URL,
		MediaType: models.MediaTypePhoto,
		Dir:       dir,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file should be left behind on failure")
}
