// Package fetcher downloads remote listings, registry exports, and quarterly archives.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile streams the URL to the given path. Returns bytes written.
	// The file only appears at path once the transfer has completed.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
