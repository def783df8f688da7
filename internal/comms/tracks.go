package comms

import (
	"encoding/hex"
	"strings"
)

// ZeroAddress is the synthetic peer address world-streaming audio/video is
// routed to (spec §4.E: "treat them as world-streaming audio/video, routed
// to a zero-address synthetic peer").
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// TrackKind distinguishes an incoming media track.
type TrackKind int

const (
	TrackAudio TrackKind = iota
	TrackVideo
)

// SubscriptionDecision is the result of applying the track subscription
// policy to one (identity, track) pair.
type SubscriptionDecision struct {
	Subscribe    bool
	RouteAddress string // the peer address to attribute this track to
}

// is20ByteAddress reports whether identity parses as a 20-byte hex address,
// with or without a leading "0x".
func is20ByteAddress(identity string) bool {
	s := strings.TrimPrefix(identity, "0x")
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// DecideSubscription implements spec §4.E's track subscription policy for
// ParticipantConnected:
//
//   - identity ending in "-streamer": subscribe to every track, attributed
//     to ZeroAddress.
//   - identity parsing as a 20-byte address: subscribe to audio only;
//     video from regular peers is ignored.
//   - anything else: no subscription.
func DecideSubscription(identity string, kind TrackKind) SubscriptionDecision {
	if strings.HasSuffix(identity, "-streamer") {
		return SubscriptionDecision{Subscribe: true, RouteAddress: ZeroAddress}
	}
	if is20ByteAddress(identity) {
		if kind == TrackAudio {
			return SubscriptionDecision{Subscribe: true, RouteAddress: identity}
		}
		return SubscriptionDecision{Subscribe: false}
	}
	return SubscriptionDecision{Subscribe: false}
}
