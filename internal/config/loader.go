package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openworld-client/realm-runtime/internal/comms"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Realm
	if cfg.Realm.Name == "" {
		errs = append(errs, errors.New("realm.name is required"))
	}
	if cfg.Realm.ContentBaseURL == "" {
		errs = append(errs, errors.New("realm.content_base_url is required"))
	}
	if cfg.Realm.CommsBaseURL == "" {
		errs = append(errs, errors.New("realm.comms_base_url is required"))
	}
	if cfg.Realm.Mode != "" && !cfg.Realm.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("realm.mode %q is invalid; valid values: city, floating_islands", cfg.Realm.Mode))
	}
	if cfg.Realm.Mode == RealmModeCity && cfg.Realm.Radius <= 0 {
		errs = append(errs, errors.New("realm.radius must be positive in city mode"))
	}
	if cfg.Realm.Mode == RealmModeFloatingIslands && len(cfg.Realm.FixedURNs) == 0 {
		errs = append(errs, errors.New("realm.fixed_urns must be non-empty in floating_islands mode"))
	}

	// Content
	if cfg.Content.CacheDir == "" {
		errs = append(errs, errors.New("content.cache_dir is required"))
	}
	if cfg.Content.MaxCacheBytes < 0 {
		errs = append(errs, errors.New("content.max_cache_bytes must not be negative"))
	}

	// Comms
	if cfg.Comms.GatekeeperURL == "" {
		errs = append(errs, errors.New("comms.gatekeeper_url is required"))
	}
	if cfg.Comms.ProtocolVersion != 0 && cfg.Comms.ProtocolVersion != comms.ProtocolVersion {
		slog.Warn("comms.protocol_version does not match this build's wire protocol version",
			"configured", cfg.Comms.ProtocolVersion,
			"build", comms.ProtocolVersion,
		)
	}

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	return errors.Join(errs...)
}
