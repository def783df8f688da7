package config_test

import (
	"testing"

	"github.com/openworld-client/realm-runtime/internal/config"
)

func TestDiffConfigs_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Realm:  config.RealmConfig{Name: "genesis-city", Mode: config.RealmModeCity, Radius: 3},
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
	}
	d := config.DiffConfigs(cfg, cfg)
	if d.RealmChanged {
		t.Error("expected RealmChanged=false for identical configs")
	}
	if d.ContentChanged {
		t.Error("expected ContentChanged=false for identical configs")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
}

func TestDiffConfigs_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.DiffConfigs(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RealmChanged {
		t.Error("a log level change alone should not mark RealmChanged")
	}
}

func TestDiffConfigs_RealmRadiusChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Realm: config.RealmConfig{Name: "genesis-city", Mode: config.RealmModeCity, Radius: 3}}
	new := &config.Config{Realm: config.RealmConfig{Name: "genesis-city", Mode: config.RealmModeCity, Radius: 5}}

	d := config.DiffConfigs(old, new)
	if !d.RealmChanged {
		t.Error("expected RealmChanged=true for a radius change")
	}
}

func TestDiffConfigs_FixedURNsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Realm: config.RealmConfig{
		Name: "sky-islands", Mode: config.RealmModeFloatingIslands, FixedURNs: []string{"a"},
	}}
	new := &config.Config{Realm: config.RealmConfig{
		Name: "sky-islands", Mode: config.RealmModeFloatingIslands, FixedURNs: []string{"a", "b"},
	}}

	d := config.DiffConfigs(old, new)
	if !d.RealmChanged {
		t.Error("expected RealmChanged=true when the fixed URN list changes")
	}
}

func TestDiffConfigs_ContentCacheBoundsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Content: config.ContentConfig{CacheDir: "/tmp/a", MaxCacheBytes: 1 << 20}}
	new := &config.Config{Content: config.ContentConfig{CacheDir: "/tmp/a", MaxCacheBytes: 1 << 30}}

	d := config.DiffConfigs(old, new)
	if !d.ContentChanged {
		t.Error("expected ContentChanged=true for a max_cache_bytes change")
	}
	if d.RealmChanged {
		t.Error("a content-only change should not mark RealmChanged")
	}
}
