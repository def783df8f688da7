package comms_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openworld-client/realm-runtime/internal/comms"
)

func TestGatekeeperSceneAdapterSignsRequestAndReturnsURL(t *testing.T) {
	t.Parallel()

	signer, err := comms.NewEphemeralSigner()
	if err != nil {
		t.Fatalf("NewEphemeralSigner: %v", err)
	}

	var gotSignature, gotPublicKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		gotSignature, _ = body["signature"].(string)
		gotPublicKey, _ = body["public_key"].(string)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"adapter_url": "wss://scene-adapter.example/room"})
	}))
	defer srv.Close()

	gate := comms.NewGatekeeper(srv.URL, signer, nil)
	url, err := gate.SceneAdapter(t.Context(), "bafy123", [2]int32{10, -5})
	if err != nil {
		t.Fatalf("SceneAdapter: %v", err)
	}
	if url != "wss://scene-adapter.example/room" {
		t.Errorf("url = %q, want the adapter URL from the response", url)
	}
	if gotSignature == "" {
		t.Error("request did not carry a signature")
	}
	if gotPublicKey != signer.PublicKeyHex() {
		t.Errorf("public_key = %q, want %q", gotPublicKey, signer.PublicKeyHex())
	}
}

func TestGatekeeperSceneAdapterPropagatesErrorStatus(t *testing.T) {
	t.Parallel()

	signer, err := comms.NewEphemeralSigner()
	if err != nil {
		t.Fatalf("NewEphemeralSigner: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	gate := comms.NewGatekeeper(srv.URL, signer, nil)
	if _, err := gate.SceneAdapter(t.Context(), "bafy123", [2]int32{0, 0}); err == nil {
		t.Fatal("SceneAdapter should surface a non-200 gatekeeper response as an error")
	}
}
