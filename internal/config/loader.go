package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields with the assistant's defaults so
// that a minimal config file is still runnable.
func applyDefaults(cfg *Config) {
	if cfg.Server.Language == "" {
		cfg.Server.Language = "en"
	}
	if cfg.Audio.NSBackend == "" {
		cfg.Audio.NSBackend = "identity"
	}
	if cfg.Audio.VADBackend == "" {
		cfg.Audio.VADBackend = "always-voice"
	}
	if cfg.Audio.RingBufferWakeSeconds <= 0 {
		cfg.Audio.RingBufferWakeSeconds = 5.0
	}
	if cfg.Audio.RingBufferCommandSeconds <= 0 {
		cfg.Audio.RingBufferCommandSeconds = 2.0
	}
	if cfg.IPC.ListenAddr == "" {
		cfg.IPC.ListenAddr = "127.0.0.1:9712"
	}
	if len(cfg.Session.WakePhrases) == 0 {
		cfg.Session.WakePhrases = []string{"jarvis", "hey jarvis"}
	}
	if cfg.Session.FillerWords == nil {
		cfg.Session.FillerWords = map[string][]string{
			"en": {"please", "um", "uh", "the", "a"},
		}
	}
}

// validNSBackends and validVADBackends enumerate the recognised backend names
// for the audio preprocessor stages. Unknown names are rejected rather than
// silently ignored; degrade-to-fallback only applies to backends that fail
// to load, not to typos in config.
var (
	validNSBackends  = []string{"identity", "model"}
	validVADBackends = []string{"always-voice", "energy", "model"}
)

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !contains(validNSBackends, cfg.Audio.NSBackend) {
		errs = append(errs, fmt.Errorf("audio.ns_backend %q is invalid; valid values: %v", cfg.Audio.NSBackend, validNSBackends))
	}
	if !contains(validVADBackends, cfg.Audio.VADBackend) {
		errs = append(errs, fmt.Errorf("audio.vad_backend %q is invalid; valid values: %v", cfg.Audio.VADBackend, validVADBackends))
	}

	if cfg.Catalog.Dir == "" {
		errs = append(errs, errors.New("catalog.dir is required"))
	}

	if cfg.Providers.Speech.Name == "" {
		slog.Warn("providers.speech is not configured; the pipeline will refuse to start")
	}
	if cfg.Providers.Wake.Name == "" {
		slog.Warn("providers.wake is not configured; the pipeline will refuse to start")
	}

	return errors.Join(errs...)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
