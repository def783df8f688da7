package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Downloader fetches raw bytes for a hash from its realm content server, and
// persists/loads bytes from the local on-disk cache under
// <user_data>/content/<hash> (spec §6 "Persistent state").
//
// Cache calls Download through its
// [github.com/openworld-client/realm-runtime/internal/resilience.CircuitBreaker]
// so a misbehaving realm content server is left idle rather than hammered
// (spec §7); HTTPDownloader itself has no breaker.
type Downloader interface {
	// Download fetches bytes for hash from url and returns them. It does not
	// touch the local disk cache.
	Download(ctx context.Context, hash Hash, url string) ([]byte, error)

	// Load reads hash's bytes from the local disk cache. It returns
	// ErrNotFound if the file is absent.
	Load(ctx context.Context, hash Hash) ([]byte, error)

	// Store writes hash's bytes to the local disk cache, overwriting any
	// existing file.
	Store(ctx context.Context, hash Hash, data []byte) error
}

// HTTPDownloader is the production Downloader: it fetches over HTTP and
// caches to a directory on disk.
type HTTPDownloader struct {
	client  httpGetter
	baseDir string
}

type httpGetter interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// DefaultHTTPGetter adapts an *http.Client to httpGetter for production use.
type DefaultHTTPGetter struct {
	Client *http.Client
}

// Get issues a GET request and returns the response body. A non-2xx status
// is treated as a network error.
func (g DefaultHTTPGetter) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}
	return resp.Body, nil
}

// NewHTTPDownloader returns a Downloader that fetches via client and caches
// files under baseDir.
func NewHTTPDownloader(client httpGetter, baseDir string) *HTTPDownloader {
	return &HTTPDownloader{client: client, baseDir: baseDir}
}

// Download fetches hash's bytes from url over HTTP.
func (d *HTTPDownloader) Download(ctx context.Context, hash Hash, url string) ([]byte, error) {
	rc, err := d.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return data, nil
}

func (d *HTTPDownloader) path(hash Hash) string {
	return filepath.Join(d.baseDir, string(hash))
}

// Load reads hash's bytes from <baseDir>/<hash>.
func (d *HTTPDownloader) Load(_ context.Context, hash Hash) ([]byte, error) {
	data, err := os.ReadFile(d.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return data, nil
}

// Store writes hash's bytes to <baseDir>/<hash>, creating baseDir if needed.
func (d *HTTPDownloader) Store(_ context.Context, hash Hash, data []byte) error {
	if err := os.MkdirAll(d.baseDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := os.WriteFile(d.path(hash), data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
