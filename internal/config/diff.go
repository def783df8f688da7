package config

import "slices"

// Diff describes what changed between two configs. Only fields that are
// safe to react to without a process restart are tracked.
type Diff struct {
	// RealmChanged is true if the name, content URL, comms URL, mode,
	// radius, fixed URN list or global URN list changed — anything that requires tearing down the
	// current realm and starting a new one.
	RealmChanged bool

	// ContentChanged is true if the cache directory, cache size bound, or
	// optimised catalogue URL changed.
	ContentChanged bool

	// LogLevelChanged is true if the server log level changed; it needs no
	// realm switch.
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// DiffConfigs compares old and new configs and returns what changed.
func DiffConfigs(old, new *Config) Diff {
	var d Diff

	if old.Realm.Name != new.Realm.Name ||
		old.Realm.ContentBaseURL != new.Realm.ContentBaseURL ||
		old.Realm.CommsBaseURL != new.Realm.CommsBaseURL ||
		old.Realm.Mode != new.Realm.Mode ||
		old.Realm.Radius != new.Realm.Radius ||
		!slices.Equal(old.Realm.FixedURNs, new.Realm.FixedURNs) ||
		!slices.Equal(old.Realm.GlobalURNs, new.Realm.GlobalURNs) {
		d.RealmChanged = true
	}

	if old.Content != new.Content {
		d.ContentChanged = true
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	return d
}
