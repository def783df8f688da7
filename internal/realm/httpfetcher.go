package realm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openworld-client/realm-runtime/internal/types"
)

// HTTPFetcher implements both EntitiesActiveFetcher and FixedEntityFetcher
// against a realm's content server, mirroring content.HTTPDownloader's
// plain *http.Client-backed style.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher constructs a fetcher against baseURL (the realm's
// entities/active and fixed-entity-by-hash endpoint root).
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type activeEntityWire struct {
	Hash    string        `json:"hash"`
	Parcels []types.Coord `json:"parcels"`
}

// FetchActive POSTs the batch of parcel pointers to {base}/entities/active.
func (f *HTTPFetcher) FetchActive(ctx context.Context, pointers []types.Coord) ([]ActiveEntity, error) {
	body, err := json.Marshal(struct {
		Pointers []string `json:"pointers"`
	}{Pointers: coordStrings(pointers)})
	if err != nil {
		return nil, fmt.Errorf("realm: encode entities/active request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/entities/active", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("realm: build entities/active request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("realm: entities/active request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("realm: entities/active returned %d", resp.StatusCode)
	}

	var wire []activeEntityWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("realm: decode entities/active response: %w", err)
	}

	out := make([]ActiveEntity, len(wire))
	for i, w := range wire {
		out[i] = ActiveEntity{Hash: types.Hash(w.Hash), Parcels: w.Parcels}
	}
	return out, nil
}

// FetchByHash GETs {base}/{hash}, used by floating-islands mode.
func (f *HTTPFetcher) FetchByHash(ctx context.Context, hash types.Hash) (ActiveEntity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+string(hash), nil)
	if err != nil {
		return ActiveEntity{}, fmt.Errorf("realm: build fixed-entity request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ActiveEntity{}, fmt.Errorf("realm: fixed-entity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ActiveEntity{}, fmt.Errorf("realm: fixed-entity %s returned %d", hash, resp.StatusCode)
	}

	var wire activeEntityWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return ActiveEntity{}, fmt.Errorf("realm: decode fixed-entity response: %w", err)
	}
	return ActiveEntity{Hash: types.Hash(wire.Hash), Parcels: wire.Parcels}, nil
}

func coordStrings(coords []types.Coord) []string {
	out := make([]string, len(coords))
	for i, c := range coords {
		out[i] = c.String()
	}
	return out
}
