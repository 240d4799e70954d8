package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agalue/jarvis-voice/internal/config"
	"github.com/agalue/jarvis-voice/pkg/provider/embeddings"
	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	"github.com/agalue/jarvis-voice/pkg/provider/vad"
	"github.com/agalue/jarvis-voice/pkg/provider/wake"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  log_level: info
  language: en
  cache_dir: /var/cache/jarvis

audio:
  microphone_index: 0
  gain_enabled: true
  ns_backend: identity
  vad_backend: energy

providers:
  wake:
    name: whisper-native
    model_path: /models/whisper-tiny.bin
  speech:
    name: whisper-native
    model_path: /models/whisper-base.bin
  embeddings:
    name: ollama
    model_path: nomic-embed-text

catalog:
  dir: /etc/jarvis/commands

voice_pack:
  dir: /etc/jarvis/voices
  active_id: default

ipc:
  listen_addr: "127.0.0.1:9712"
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.LogLevel != config.LogLevelInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogLevelInfo)
	}
	if cfg.Providers.Wake.Name != "whisper-native" {
		t.Errorf("providers.wake.name: got %q, want %q", cfg.Providers.Wake.Name, "whisper-native")
	}
	if cfg.Audio.VADBackend != "energy" {
		t.Errorf("audio.vad_backend: got %q, want %q", cfg.Audio.VADBackend, "energy")
	}
	if cfg.Catalog.Dir != "/etc/jarvis/commands" {
		t.Errorf("catalog.dir: got %q", cfg.Catalog.Dir)
	}
	if cfg.VoicePack.ActiveID != "default" {
		t.Errorf("voice_pack.active_id: got %q, want %q", cfg.VoicePack.ActiveID, "default")
	}
}

func TestLoadFromReader_EmptyFillsDefaults(t *testing.T) {
	yaml := `
catalog:
  dir: /etc/jarvis/commands
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error for minimal config: %v", err)
	}
	if cfg.Server.Language != "en" {
		t.Errorf("default language: got %q, want \"en\"", cfg.Server.Language)
	}
	if cfg.Audio.NSBackend != "identity" {
		t.Errorf("default ns_backend: got %q, want \"identity\"", cfg.Audio.NSBackend)
	}
	if cfg.Audio.VADBackend != "always-voice" {
		t.Errorf("default vad_backend: got %q, want \"always-voice\"", cfg.Audio.VADBackend)
	}
	if cfg.IPC.ListenAddr != "127.0.0.1:9712" {
		t.Errorf("default ipc.listen_addr: got %q", cfg.IPC.ListenAddr)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
catalog:
  dir: /etc/jarvis/commands
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingCatalogDir(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected error for missing catalog.dir, got nil")
	}
	if !strings.Contains(err.Error(), "catalog.dir") {
		t.Errorf("error should mention catalog.dir, got: %v", err)
	}
}

func TestValidate_InvalidVADBackend(t *testing.T) {
	yaml := `
audio:
  vad_backend: magic
catalog:
  dir: /etc/jarvis/commands
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid vad_backend, got nil")
	}
}

func TestValidate_InvalidNSBackend(t *testing.T) {
	yaml := `
audio:
  ns_backend: magic
catalog:
  dir: /etc/jarvis/commands
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid ns_backend, got nil")
	}
}

func TestValidate_UnknownField(t *testing.T) {
	yaml := `
nonsense_field: true
catalog:
  dir: /etc/jarvis/commands
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected decode error for unknown field (KnownFields(true))")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownWake(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateWake(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownSpeech(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateSpeech(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownVAD(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateVAD(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownEmbeddings(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredWake(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubWake{}
	reg.RegisterWake("stub", func(e config.ProviderEntry) (wake.Engine, error) {
		return want, nil
	})
	got, err := reg.CreateWake(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned engine is not the expected instance")
	}
}

func TestRegistry_RegisteredSpeech(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubSpeech{}
	reg.RegisterSpeech("stub", func(e config.ProviderEntry) (stt.Engine, error) {
		return want, nil
	})
	got, err := reg.CreateSpeech(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned engine is not the expected instance")
	}
}

func TestRegistry_RegisteredEmbeddings(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubEmbeddings{}
	reg.RegisterEmbeddings("stub", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterWake("broken", func(e config.ProviderEntry) (wake.Engine, error) {
		return nil, wantErr
	})
	_, err := reg.CreateWake(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

// ── Stub implementations (satisfy interfaces for the compiler) ────────────────

type stubWake struct{}

func (s *stubWake) NewSession(_ wake.Config) (wake.SessionHandle, error) { return nil, nil }

type stubSpeech struct{}

func (s *stubSpeech) NewSession(_ stt.Config) (stt.SessionHandle, error) { return nil, nil }

type stubEmbeddings struct{}

func (s *stubEmbeddings) Embed(_ context.Context, _ string) ([]float32, error) { return nil, nil }
func (s *stubEmbeddings) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, nil
}
func (s *stubEmbeddings) Dimensions() int { return 0 }
func (s *stubEmbeddings) ModelID() string { return "stub" }

type stubVAD struct{}

func (s *stubVAD) NewSession(_ vad.Config) (vad.SessionHandle, error) { return nil, nil }
