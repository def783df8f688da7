package realm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openworld-client/realm-runtime/internal/realm"
	"github.com/openworld-client/realm-runtime/internal/types"
)

func TestHTTPFetcher_FetchActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/entities/active" {
			t.Errorf("path = %s, want /entities/active", r.URL.Path)
		}
		var body struct {
			Pointers []string `json:"pointers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if len(body.Pointers) != 2 {
			t.Fatalf("pointers = %v, want 2 entries", body.Pointers)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"hash": "scene-a", "parcels": []map[string]int32{{"x": 0, "y": 0}}},
		})
	}))
	defer srv.Close()

	fetcher := realm.NewHTTPFetcher(srv.URL, srv.Client())
	result, err := fetcher.FetchActive(context.Background(), []types.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}})
	if err != nil {
		t.Fatalf("FetchActive: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("result = %v, want 1 entity", result)
	}
	if result[0].Hash != "scene-a" {
		t.Errorf("Hash = %q, want %q", result[0].Hash, "scene-a")
	}
}

func TestHTTPFetcher_FetchActive_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fetcher := realm.NewHTTPFetcher(srv.URL, srv.Client())
	_, err := fetcher.FetchActive(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestHTTPFetcher_FetchByHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fixed-hash-1" {
			t.Errorf("path = %s, want /fixed-hash-1", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"hash":    "fixed-hash-1",
			"parcels": []map[string]int32{{"x": 3, "y": 4}},
		})
	}))
	defer srv.Close()

	fetcher := realm.NewHTTPFetcher(srv.URL+"/", srv.Client())
	entity, err := fetcher.FetchByHash(context.Background(), types.Hash("fixed-hash-1"))
	if err != nil {
		t.Fatalf("FetchByHash: %v", err)
	}
	if entity.Hash != "fixed-hash-1" {
		t.Errorf("Hash = %q, want %q", entity.Hash, "fixed-hash-1")
	}
	if len(entity.Parcels) != 1 || entity.Parcels[0] != (types.Coord{X: 3, Y: 4}) {
		t.Errorf("Parcels = %v, want [(3,4)]", entity.Parcels)
	}
}

func TestHTTPFetcher_FetchByHash_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := realm.NewHTTPFetcher(srv.URL, srv.Client())
	_, err := fetcher.FetchByHash(context.Background(), types.Hash("missing"))
	if err == nil {
		t.Fatal("expected error on 404 response")
	}
}
