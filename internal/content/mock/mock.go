// Package mock provides an in-memory mock implementation of
// [content.Downloader] for use in unit tests.
//
// The mock records every method call and allows the test to configure
// return values via exported fields. It is safe for concurrent use.
//
// Example:
//
//	d := &mock.Downloader{
//	    DownloadResult: []byte("glb bytes"),
//	}
//	data, err := d.Download(ctx, "abc", "https://peer.example.com/content/abc")
package mock

import (
	"context"
	"sync"

	"github.com/openworld-client/realm-runtime/internal/content"
)

// Compile-time interface assertion.
var _ content.Downloader = (*Downloader)(nil)

// DownloadCall records the arguments of a single [Downloader.Download] call.
type DownloadCall struct {
	Hash content.Hash
	URL  string
}

// LoadCall records the arguments of a single [Downloader.Load] call.
type LoadCall struct {
	Hash content.Hash
}

// StoreCall records the arguments of a single [Downloader.Store] call.
type StoreCall struct {
	Hash content.Hash
	Data []byte
}

// Downloader is a mock implementation of [content.Downloader].
// All exported *Result and *Error fields control return values.
// All exported Call* fields accumulate invocation records.
type Downloader struct {
	mu sync.Mutex

	// DownloadResult is returned by every [Downloader.Download] call whose
	// hash has no matching entry in DownloadResults.
	DownloadResult []byte
	// DownloadResults overrides DownloadResult per-hash.
	DownloadResults map[content.Hash][]byte
	// DownloadError is returned by [Downloader.Download].
	DownloadError error

	// Stored holds bytes written via [Downloader.Store], and is also
	// consulted by [Downloader.Load] before falling back to LoadError.
	Stored map[content.Hash][]byte
	// LoadError is returned by [Downloader.Load] when Stored has no entry.
	LoadError error
	// StoreError is returned by [Downloader.Store].
	StoreError error

	// DownloadCalls records all Download invocations.
	DownloadCalls []DownloadCall
	// LoadCalls records all Load invocations.
	LoadCalls []LoadCall
	// StoreCalls records all Store invocations.
	StoreCalls []StoreCall
}

// NewDownloader returns a Downloader with its Stored map initialised.
func NewDownloader() *Downloader {
	return &Downloader{Stored: make(map[content.Hash][]byte)}
}

// Download records the call and returns the configured result.
func (d *Downloader) Download(ctx context.Context, hash content.Hash, url string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DownloadCalls = append(d.DownloadCalls, DownloadCall{Hash: hash, URL: url})
	if d.DownloadError != nil {
		return nil, d.DownloadError
	}
	if result, ok := d.DownloadResults[hash]; ok {
		return result, nil
	}
	return d.DownloadResult, nil
}

// Load records the call and returns bytes previously Store-d, or LoadError.
func (d *Downloader) Load(ctx context.Context, hash content.Hash) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LoadCalls = append(d.LoadCalls, LoadCall{Hash: hash})
	if data, ok := d.Stored[hash]; ok {
		return data, nil
	}
	if d.LoadError != nil {
		return nil, d.LoadError
	}
	return nil, content.ErrNotFound
}

// Store records the call, retains the bytes for future Load calls, and
// returns StoreError.
func (d *Downloader) Store(ctx context.Context, hash content.Hash, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StoreCalls = append(d.StoreCalls, StoreCall{Hash: hash, Data: data})
	if d.StoreError != nil {
		return d.StoreError
	}
	if d.Stored == nil {
		d.Stored = make(map[content.Hash][]byte)
	}
	d.Stored[hash] = data
	return nil
}
