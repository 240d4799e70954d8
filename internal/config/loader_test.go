package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agalue/jarvis-voice/internal/config"
)

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) && !strings.Contains(err.Error(), "open") {
		t.Errorf("expected an open error, got: %v", err)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.Speech.ModelPath != "/models/whisper-base.bin" {
		t.Errorf("providers.speech.model_path: got %q", cfg.Providers.Speech.ModelPath)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [this is not a map"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml, got nil")
	}
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  vad_backend: magic
  ns_backend: magic
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "vad_backend", "ns_backend", "catalog.dir"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("expected joined error to mention %q, got: %v", want, errStr)
		}
	}
}

func TestValidate_MissingSpeechAndWakeWarnsButDoesNotError(t *testing.T) {
	t.Parallel()
	yaml := `
catalog:
  dir: /etc/jarvis/commands
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unconfigured wake/speech should only warn, not fail: %v", err)
	}
	if cfg.Providers.Speech.Name != "" || cfg.Providers.Wake.Name != "" {
		t.Error("expected empty wake/speech provider names in this fixture")
	}
}
