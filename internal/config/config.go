// Package config provides the configuration schema, loader, and hot-reload
// watcher for the realm runtime client.
package config

// Config is the root configuration structure for the realm runtime client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Realm   RealmConfig   `yaml:"realm"`
	Content ContentConfig `yaml:"content"`
	Comms   CommsConfig   `yaml:"comms"`
	Server  ServerConfig  `yaml:"server"`
}

// RealmMode selects how the scene entity coordinator discovers candidate
// scenes (spec §4.B).
type RealmMode string

const (
	RealmModeCity            RealmMode = "city"
	RealmModeFloatingIslands RealmMode = "floating_islands"
)

// IsValid reports whether m is one of the known realm modes.
func (m RealmMode) IsValid() bool {
	switch m {
	case RealmModeCity, RealmModeFloatingIslands:
		return true
	}
	return false
}

// RealmConfig describes the realm the client connects to: where to fetch
// scene entity metadata, where to establish comms rooms, and how the
// coordinator should discover scenes around the player.
type RealmConfig struct {
	// Name is a human-readable identifier used in logs and metrics labels.
	Name string `yaml:"name"`

	// ContentBaseURL is the realm content server's base URL, used to derive
	// a scene hash's download URL (spec §4.A's mapping.ContentURL).
	ContentBaseURL string `yaml:"content_base_url"`

	// CommsBaseURL is the realm's comms base URL. Validate requires it and
	// DiffConfigs compares it; the gatekeeper request uses
	// CommsConfig.GatekeeperURL instead.
	CommsBaseURL string `yaml:"comms_base_url"`

	// Mode selects city (active-entities polling) or floating-islands
	// (fixed scene list) discovery.
	Mode RealmMode `yaml:"mode"`

	// Radius is the inner-ring radius (in parcels) around the player that
	// the coordinator keeps loaded in city mode.
	Radius int `yaml:"radius"`

	// FixedURNs lists the scene hashes to load in floating-islands mode.
	// Ignored in city mode.
	FixedURNs []string `yaml:"fixed_urns"`

	// GlobalURNs lists portable-experience scene hashes that are always
	// loadable and visible to every avatar regardless of position or mode.
	GlobalURNs []string `yaml:"global_urns"`
}

// ContentConfig configures the content-addressed cache (spec §4.A).
type ContentConfig struct {
	// CacheDir is the directory downloaded assets are persisted under.
	CacheDir string `yaml:"cache_dir"`

	// MaxCacheBytes is passed to the content cache via WithMaxCacheBytes
	// when positive. The cache stores it but does not evict by size: no
	// on-disk files are removed and no oldest-first eviction takes place.
	MaxCacheBytes int64 `yaml:"max_cache_bytes"`

	// OptimisedCatalogueURL points at the realm's optimised-asset catalogue.
	// It is loaded and compared by DiffConfigs; no fetch path reads it.
	OptimisedCatalogueURL string `yaml:"optimised_catalogue_url"`
}

// CommsConfig configures the comms fabric (spec §4.E).
type CommsConfig struct {
	// ProtocolVersion is the wire protocol version this client expects the
	// comms fabric to speak. Validated against the packet layer's
	// compiled-in version at startup; a mismatch is logged, not fatal, since
	// the realm may simply be ahead of this build.
	ProtocolVersion int `yaml:"protocol_version"`

	// GatekeeperURL is the base URL used to request a signed scene-room
	// adapter for a given scene.
	GatekeeperURL string `yaml:"gatekeeper_url"`
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the known log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// ServerConfig holds network and logging settings for the diagnostics HTTP
// server (/healthz, /readyz, /metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the diagnostics server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}
