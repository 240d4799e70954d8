package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; a changed
// provider or catalog directory requires a restart and is reported but not
// auto-applied.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LanguageChanged bool
	NewLanguage     string

	VoicePackChanged bool
	NewVoicePackID   string

	CatalogDirChanged bool
	RestartRequired   bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.Language != new.Server.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Server.Language
	}

	if old.VoicePack.ActiveID != new.VoicePack.ActiveID {
		d.VoicePackChanged = true
		d.NewVoicePackID = new.VoicePack.ActiveID
	}

	if old.Catalog.Dir != new.Catalog.Dir {
		d.CatalogDirChanged = true
		d.RestartRequired = true
	}

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = true
	}
	if old.Audio != new.Audio {
		d.RestartRequired = true
	}

	return d
}
