// Package config provides the configuration schema, loader, polling watcher,
// and diff machinery for the Jarvis voice assistant.
package config

import "time"

// Config is the root configuration structure for the assistant. It is
// typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	VoicePack VoicePackConfig `yaml:"voice_pack"`
	Script    ScriptConfig    `yaml:"script"`
	IPC       IPCConfig       `yaml:"ipc"`
}

// ScriptConfig configures the sandboxed script host's persistent state
// backend.
type ScriptConfig struct {
	// StateStoreDSN is the Postgres connection string backing
	// jarvis.state for standard+ sandbox commands. Empty disables the
	// state store: jarvis.state calls then fail with ErrIO, but every
	// other script capability still works.
	StateStoreDSN string `yaml:"state_store_dsn"`
}

// SessionConfig tunes the C10 session controller: wake vocabulary, filler
// words stripped before intent resolution, and the timeouts that govern how
// long the controller waits at each stage before giving up and returning to
// idle.
type SessionConfig struct {
	// WakePhrases lists the phrases that arm a command listening window
	// (e.g. "jarvis", "hey jarvis").
	WakePhrases []string `yaml:"wake_phrases"`

	// FillerWords maps a language code to the words stripped from a
	// finalized utterance before intent resolution (e.g. "please", "um").
	FillerWords map[string][]string `yaml:"filler_words"`

	// IntentConfidenceThreshold is the minimum embedding-classifier
	// confidence accepted before falling back to fuzzy matching.
	IntentConfidenceThreshold float64 `yaml:"intent_confidence_threshold"`

	// WakeSilenceTimeout is how long the controller waits for speech
	// before re-arming from a brief false start.
	WakeSilenceTimeout time.Duration `yaml:"wake_silence_timeout"`

	// CommandSilenceTimeout is how long the controller waits, once a
	// wake activation has fired, for the user to start a command.
	CommandSilenceTimeout time.Duration `yaml:"command_silence_timeout"`

	// CommandTotalTimeout bounds the whole listening window following a
	// wake activation, regardless of intermittent speech.
	CommandTotalTimeout time.Duration `yaml:"command_total_timeout"`

	// SniffWindow is the grace period after a wake detection during which
	// the controller tolerates silence before downgrading out of the
	// voice-active sniffing state.
	SniffWindow time.Duration `yaml:"sniff_window"`

	// MinUtteranceLength is the shortest (post filler-strip) utterance,
	// in characters, accepted as a real command rather than discarded as
	// noise.
	MinUtteranceLength int `yaml:"min_utterance_length"`
}

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// Language is the active BCP-47-ish language code (e.g. "en") used to
	// resolve localized phrases, sounds, and filler words.
	Language string `yaml:"language"`

	// CacheDir is the platform config/cache directory where the intent
	// vector cache and commands-hash file are persisted.
	CacheDir string `yaml:"cache_dir"`

	// MetricsAddr is the address a Prometheus /metrics endpoint listens
	// on (e.g. "127.0.0.1:9713"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AudioConfig selects the microphone and the preprocessor/recognizer
// backends: microphone index, NS backend, VAD backend, gain enabled, and
// the pre-roll ring buffer durations.
type AudioConfig struct {
	// MicrophoneIndex selects the capture device by platform device index.
	// -1 selects the system default device.
	MicrophoneIndex int `yaml:"microphone_index"`

	// GainEnabled toggles the C2 automatic-gain stage.
	GainEnabled bool `yaml:"gain_enabled"`

	// NSBackend selects the noise-suppression backend: "identity" or "model".
	NSBackend string `yaml:"ns_backend"`

	// VADBackend selects the voice-activity backend: "always-voice",
	// "energy", or "model".
	VADBackend string `yaml:"vad_backend"`

	// RingBufferWakeSeconds is the pre-roll duration kept while waiting for
	// the wake word, typically around 5s.
	RingBufferWakeSeconds float64 `yaml:"ring_buffer_wake_seconds"`

	// RingBufferCommandSeconds is the pre-roll duration kept while listening
	// for a command, typically around 2s.
	RingBufferCommandSeconds float64 `yaml:"ring_buffer_command_seconds"`
}

// ProvidersConfig declares which backend to use for each pipeline stage.
type ProvidersConfig struct {
	Wake       ProviderEntry `yaml:"wake"`
	Speech     ProviderEntry `yaml:"speech"`
	Intent     ProviderEntry `yaml:"intent"`
	Slots      ProviderEntry `yaml:"slots"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper-native", "onnxruntime").
	Name string `yaml:"name"`

	// APIKey is the authentication key for providers that call a remote API
	// (e.g., a hosted embeddings endpoint).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// ModelPath is the on-disk path to the model file/directory this
	// provider loads (ASR model id, slot model, etc.).
	ModelPath string `yaml:"model_path"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// CatalogConfig locates the command manifest directory, one subdirectory
// per command.
type CatalogConfig struct {
	// Dir is the root directory containing one subdirectory per command.
	Dir string `yaml:"dir"`
}

// VoicePackConfig locates the active voice pack.
type VoicePackConfig struct {
	// Dir is the root directory containing voice pack subdirectories.
	Dir string `yaml:"dir"`

	// ActiveID selects the active voice pack by its manifest-declared id.
	ActiveID string `yaml:"active_id"`
}

// IPCConfig configures the loopback transport used to deliver pipeline
// events and accept external action commands.
type IPCConfig struct {
	// ListenAddr is the loopback TCP address the IPC server listens on.
	// Defaults to "127.0.0.1:9712".
	ListenAddr string `yaml:"listen_addr"`
}
