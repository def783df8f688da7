package content

import "sync/atomic"

// RefCounted is embedded by every cached artifact type so the eviction loop
// can ask "does anything besides the cache still hold this?" without caring
// about the concrete artifact kind.
type RefCounted struct {
	refs atomic.Int64
}

// AddRef is called by a consumer that keeps a handle to the artifact beyond
// the fetch call that produced it (e.g. a live scene node).
func (r *RefCounted) AddRef() { r.refs.Add(1) }

// Release is called when a consumer drops its handle.
func (r *RefCounted) Release() { r.refs.Add(-1) }

// ExternalRefs reports the current external reference count.
func (r *RefCounted) ExternalRefs() int64 { return r.refs.Load() }

// SceneNode is the imported, engine-ready result of a GLTF/GLB fetch.
type SceneNode struct {
	RefCounted

	Hash string

	// AnimationNames lists every animation track imported with the scene.
	AnimationNames []string

	// Emote is non-nil when this node was fetched via fetch_emote_gltf and
	// post-processing (§4.A "Emote post-processing") has run.
	Emote *EmoteResult

	// Dependencies are the resolved, already-fetched buffer/image nodes
	// this scene depends on, keyed by their resolved URI.
	Dependencies map[string]Hash
}

// Hash is a local alias kept distinct from types.Hash so this package does
// not need to import internal/types for its own bookkeeping keys; the two
// are interchangeable content-hash strings.
type Hash = string

// EmoteResult is the triple produced by emote post-processing.
type EmoteResult struct {
	ArmatureProp     string
	DefaultAnimation string
	PropAnimation    string
}

// Texture is an imported, GPU-ready texture.
type Texture struct {
	RefCounted

	Hash          string
	Width, Height int
}

// AudioStream is a decodable handle to an imported audio asset.
type AudioStream struct {
	RefCounted

	Hash     string
	Duration float64
}

// VideoHandle is a handle to an imported video asset.
type VideoHandle struct {
	RefCounted

	Hash string
}

// WearableSet is the resolved result of a fetch_wearables call.
type WearableSet struct {
	RefCounted

	URNs []string
}

// Profile is a fetched avatar profile.
type Profile struct {
	RefCounted

	Address string
	Version int
	Raw     map[string]any
}
