package comms_test

import (
	"testing"

	"github.com/openworld-client/realm-runtime/internal/comms"
)

func TestDecideSubscription(t *testing.T) {
	t.Parallel()

	const addr = "0x1111111111111111111111111111111111111111"

	cases := []struct {
		name     string
		identity string
		kind     comms.TrackKind
		want     comms.SubscriptionDecision
	}{
		{
			name:     "streamer identity subscribes to any track kind",
			identity: "world-ambient-streamer",
			kind:     comms.TrackVideo,
			want:     comms.SubscriptionDecision{Subscribe: true, RouteAddress: comms.ZeroAddress},
		},
		{
			name:     "regular address subscribes to audio",
			identity: addr,
			kind:     comms.TrackAudio,
			want:     comms.SubscriptionDecision{Subscribe: true, RouteAddress: addr},
		},
		{
			name:     "regular address ignores video",
			identity: addr,
			kind:     comms.TrackVideo,
			want:     comms.SubscriptionDecision{Subscribe: false},
		},
		{
			name:     "unparseable identity is ignored",
			identity: "not-an-address",
			kind:     comms.TrackAudio,
			want:     comms.SubscriptionDecision{Subscribe: false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := comms.DecideSubscription(tc.identity, tc.kind)
			if got != tc.want {
				t.Errorf("DecideSubscription(%q, %v) = %+v, want %+v", tc.identity, tc.kind, got, tc.want)
			}
		})
	}
}
