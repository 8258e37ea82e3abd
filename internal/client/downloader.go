package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/adreel/api/internal/model"
)

// downloadChunkSize bounds memory use while streaming large videos
const downloadChunkSize = 32 * 1024

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 4 * 1024

// ArtifactDownloader fetches a remote resource to a local path
type ArtifactDownloader interface {
	Download(ctx context.Context, remoteURL, outputPath string, mediaType model.MediaType) (*model.Artifact, error)
}

// Downloader streams remote artifacts to disk
type Downloader struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDownloader creates a downloader. timeout bounds the whole transfer; zero disables it.
func NewDownloader(timeout time.Duration, logger *zap.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "downloader")),
	}
}

// Download writes the resource at remoteURL to outputPath, creating parent
// directories. Nothing is created at outputPath unless the response is 2xx, and
// a transfer that fails midway leaves no partial file behind.
func (d *Downloader) Download(ctx context.Context, remoteURL, outputPath string, mediaType model.MediaType) (*model.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, &DownloadError{URL: remoteURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: remoteURL, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &DownloadError{URL: remoteURL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, &DownloadError{URL: remoteURL, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	partPath := outputPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return nil, &DownloadError{URL: remoteURL, Err: fmt.Errorf("failed to create file: %w", err)}
	}

	buf := make([]byte, downloadChunkSize)
	written, copyErr := io.CopyBuffer(out, resp.Body, buf)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(partPath)
		return nil, &DownloadError{URL: remoteURL, Err: fmt.Errorf("failed to write file: %w", copyErr)}
	}

	if err := os.Rename(partPath, outputPath); err != nil {
		os.Remove(partPath)
		return nil, &DownloadError{URL: remoteURL, Err: fmt.Errorf("failed to finalize file: %w", err)}
	}

	d.logger.Info("artifact downloaded",
		zap.String("url", remoteURL),
		zap.String("path", outputPath),
		zap.Int64("bytes", written))

	return &model.Artifact{
		RemoteURL: remoteURL,
		LocalPath: outputPath,
		MediaType: mediaType,
		Size:      written,
	}, nil
}
