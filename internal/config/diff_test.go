package config_test

import (
	"testing"

	"github.com/agalue/jarvis-voice/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogLevelInfo, Language: "en"},
		Catalog: config.CatalogConfig{Dir: "/etc/jarvis/commands"},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.LanguageChanged {
		t.Error("expected LanguageChanged=false for identical configs")
	}
	if d.VoicePackChanged {
		t.Error("expected VoicePackChanged=false for identical configs")
	}
	if d.RestartRequired {
		t.Error("expected RestartRequired=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	newCfg := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.Diff(old, newCfg)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change should not require a restart")
	}
}

func TestDiff_LanguageChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{Language: "en"}}
	newCfg := &config.Config{Server: config.ServerConfig{Language: "de"}}

	d := config.Diff(old, newCfg)
	if !d.LanguageChanged {
		t.Error("expected LanguageChanged=true")
	}
	if d.NewLanguage != "de" {
		t.Errorf("expected NewLanguage=de, got %q", d.NewLanguage)
	}
}

func TestDiff_VoicePackChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{VoicePack: config.VoicePackConfig{ActiveID: "default"}}
	newCfg := &config.Config{VoicePack: config.VoicePackConfig{ActiveID: "alt"}}

	d := config.Diff(old, newCfg)
	if !d.VoicePackChanged {
		t.Error("expected VoicePackChanged=true")
	}
	if d.NewVoicePackID != "alt" {
		t.Errorf("expected NewVoicePackID=alt, got %q", d.NewVoicePackID)
	}
	if d.RestartRequired {
		t.Error("voice pack change should not require a restart")
	}
}

func TestDiff_CatalogDirChangedRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Catalog: config.CatalogConfig{Dir: "/a"}}
	newCfg := &config.Config{Catalog: config.CatalogConfig{Dir: "/b"}}

	d := config.Diff(old, newCfg)
	if !d.CatalogDirChanged {
		t.Error("expected CatalogDirChanged=true")
	}
	if !d.RestartRequired {
		t.Error("catalog dir change must require a restart")
	}
}

func TestDiff_ProviderChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			Wake: config.ProviderEntry{Name: "whisper-native"},
		},
	}
	newCfg := &config.Config{
		Providers: config.ProvidersConfig{
			Wake: config.ProviderEntry{Name: "whisper-http"},
		},
	}

	d := config.Diff(old, newCfg)
	if !d.RestartRequired {
		t.Error("provider backend change must require a restart")
	}
}

func TestDiff_ProviderOptionsChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			Wake: config.ProviderEntry{Name: "whisper-native", Options: map[string]any{"threads": 2}},
		},
	}
	newCfg := &config.Config{
		Providers: config.ProvidersConfig{
			Wake: config.ProviderEntry{Name: "whisper-native", Options: map[string]any{"threads": 4}},
		},
	}

	d := config.Diff(old, newCfg)
	if !d.RestartRequired {
		t.Error("expected RestartRequired=true when provider options (a map field) change")
	}
}

func TestDiff_AudioChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Audio: config.AudioConfig{MicrophoneIndex: 0}}
	newCfg := &config.Config{Audio: config.AudioConfig{MicrophoneIndex: 1}}

	d := config.Diff(old, newCfg)
	if !d.RestartRequired {
		t.Error("audio device change must require a restart")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogLevelInfo, Language: "en"},
		VoicePack: config.VoicePackConfig{ActiveID: "default"},
		Catalog:   config.CatalogConfig{Dir: "/etc/jarvis/commands"},
	}
	newCfg := &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogLevelWarn, Language: "fr"},
		VoicePack: config.VoicePackConfig{ActiveID: "alt"},
		Catalog:   config.CatalogConfig{Dir: "/etc/jarvis/commands"},
	}

	d := config.Diff(old, newCfg)
	if !d.LogLevelChanged || !d.LanguageChanged || !d.VoicePackChanged {
		t.Error("expected all of LogLevelChanged, LanguageChanged, VoicePackChanged to be true")
	}
	if d.CatalogDirChanged {
		t.Error("catalog.dir did not change, CatalogDirChanged should be false")
	}
	if d.RestartRequired {
		t.Error("none of the changed fields here should require a restart")
	}
}
