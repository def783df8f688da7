package comms_test

import (
	"bytes"
	"testing"

	"github.com/openworld-client/realm-runtime/internal/comms"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		pkt  comms.Packet
	}{
		{"chat", comms.Packet{Kind: comms.KindChat, Sender: "0xabc", Payload: []byte("hello")}},
		{"scene", comms.Packet{Kind: comms.KindScene, SceneID: 42, Sender: "0xabc", Payload: []byte{1, 2, 3}}},
		{"empty sender and payload", comms.Packet{Kind: comms.KindPosition}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			frame := comms.Encode(tc.pkt)
			got, err := comms.Decode(frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Kind != tc.pkt.Kind {
				t.Errorf("Kind = %v, want %v", got.Kind, tc.pkt.Kind)
			}
			if got.SceneID != tc.pkt.SceneID {
				t.Errorf("SceneID = %d, want %d", got.SceneID, tc.pkt.SceneID)
			}
			if got.Sender != tc.pkt.Sender {
				t.Errorf("Sender = %q, want %q", got.Sender, tc.pkt.Sender)
			}
			if !bytes.Equal(got.Payload, tc.pkt.Payload) {
				t.Errorf("Payload = %v, want %v", got.Payload, tc.pkt.Payload)
			}
		})
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	frame := comms.Encode(comms.Packet{Kind: comms.KindChat})
	frame[0] = 9
	if _, err := comms.Decode(frame); err == nil {
		t.Fatal("Decode should reject an unsupported protocol version")
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	t.Parallel()

	frame := comms.Encode(comms.Packet{Kind: comms.KindChat, Sender: "0xabc", Payload: []byte("hello world")})
	if _, err := comms.Decode(frame[:len(frame)-3]); err == nil {
		t.Fatal("Decode should reject a truncated payload")
	}
}
