// Command jarvis-voice is the main entry point for the on-device voice
// assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agalue/jarvis-voice/internal/app"
	"github.com/agalue/jarvis-voice/internal/config"
	"github.com/agalue/jarvis-voice/internal/observe"
	"github.com/agalue/jarvis-voice/internal/resilience"
	"github.com/agalue/jarvis-voice/pkg/provider/embeddings"
	"github.com/agalue/jarvis-voice/pkg/provider/embeddings/ollama"
	"github.com/agalue/jarvis-voice/pkg/provider/embeddings/openai"
	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	"github.com/agalue/jarvis-voice/pkg/provider/stt/whisper"
	"github.com/agalue/jarvis-voice/pkg/provider/vad"
	"github.com/agalue/jarvis-voice/pkg/provider/vad/alwaysvoice"
	"github.com/agalue/jarvis-voice/pkg/provider/vad/energyrms"
	wakewhisper "github.com/agalue/jarvis-voice/pkg/provider/wake/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "jarvis-voice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "jarvis-voice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("jarvis-voice starting",
		"config", *configPath,
		"language", cfg.Server.Language,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	if addr := cfg.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: observe.Middleware(observe.DefaultMetrics())(mux)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics endpoint stopped", "addr", addr, "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("metrics endpoint listening", "addr", addr)
	}

	// ── Provider registry ─────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Application wiring ────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger), app.WithTerminate(stop))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		diff := config.Diff(old, updated)
		if diff.RestartRequired {
			slog.Warn("config change requires a restart to take effect", "path", *configPath)
			return
		}
		slog.Info("config changed", "log_level_changed", diff.LogLevelChanged, "language_changed", diff.LanguageChanged, "voice_pack_changed", diff.VoicePackChanged)
	})
	if err != nil {
		slog.Warn("config hot-reload watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("assistant ready — say the wake word, or press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ───────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ─────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with this assistant. Used for startup logging only.
var builtinProviders = map[string][]string{
	"wake":       {"whisper"},
	"speech":     {"whisper-native", "whisper-http"},
	"vad":        {"always-voice", "energy"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders wires the config registry's factory functions to
// the concrete provider packages. Wake is deliberately not registered here:
// pkg/provider/wake/whisper.New wraps an already-built stt.Engine rather
// than loading its own model, so buildProviders constructs it directly from
// the speech engine instance once that is built, instead of going through
// the registry and risking a second model load.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSpeech("whisper-native", func(entry config.ProviderEntry) (stt.Engine, error) {
		return whisper.NewNative(entry.ModelPath, nativeWhisperOptions(entry)...)
	})
	reg.RegisterSpeech("whisper-http", func(entry config.ProviderEntry) (stt.Engine, error) {
		if entry.BaseURL == "" {
			return nil, fmt.Errorf("speech provider whisper-http requires base_url")
		}
		return whisper.NewHTTP(entry.BaseURL, httpWhisperOptions(entry)...)
	})
	reg.RegisterVAD("always-voice", func(config.ProviderEntry) (vad.Engine, error) {
		return alwaysvoice.New(), nil
	})
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energyrms.New(), nil
	})
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		modelName, _ := entry.Options["model"].(string)
		if modelName == "" {
			modelName = openai.DefaultModel
		}
		return openai.New(entry.APIKey, modelName)
	})
	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = ollama.DefaultBaseURL
		}
		modelName, _ := entry.Options["model"].(string)
		return ollama.New(baseURL, modelName)
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func nativeWhisperOptions(entry config.ProviderEntry) []whisper.NativeOption {
	var opts []whisper.NativeOption
	if lang, ok := entry.Options["language"].(string); ok && lang != "" {
		opts = append(opts, whisper.WithNativeLanguage(lang))
	}
	return opts
}

func httpWhisperOptions(entry config.ProviderEntry) []whisper.Option {
	var opts []whisper.Option
	if model, ok := entry.Options["model"].(string); ok && model != "" {
		opts = append(opts, whisper.WithModel(model))
	}
	if lang, ok := entry.Options["language"].(string); ok && lang != "" {
		opts = append(opts, whisper.WithLanguage(lang))
	}
	return opts
}

// buildProviders instantiates every provider named in cfg and returns them
// in an [app.Providers] struct. The wake provider is built right after the
// speech provider so it can share that whisper speech engine instead of loading a
// second model when both providers.speech.name and providers.wake.name
// name a whisper backend.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Speech.Name; name != "" {
		p, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("create speech provider %q: %w", name, err)
		}
		ps.Speech = p
		slog.Info("provider created", "kind", "speech", "name", name)

		// An optional whisper-server URL turns the speech engine into a
		// circuit-breaker-guarded failover pair: if the local model stops
		// opening sessions, recognition continues over HTTP.
		if fallbackURL, ok := cfg.Providers.Speech.Options["fallback_base_url"].(string); ok && fallbackURL != "" {
			httpEngine, err := whisper.NewHTTP(fallbackURL, httpWhisperOptions(cfg.Providers.Speech)...)
			if err != nil {
				return nil, fmt.Errorf("create speech fallback for %q: %w", name, err)
			}
			group := resilience.NewSTTFallback(ps.Speech, name, resilience.FallbackConfig{})
			group.AddFallback("whisper-http-fallback", httpEngine)
			ps.Speech = group
			slog.Info("provider created", "kind", "speech", "name", "whisper-http-fallback", "role", "fallback")
		}
	}

	if name := cfg.Providers.Wake.Name; name != "" {
		if name == "whisper" && ps.Speech != nil {
			ps.Wake = wakewhisper.New(ps.Speech)
			slog.Info("provider created", "kind", "wake", "name", name, "shared_model", true)
		} else {
			return nil, fmt.Errorf("wake provider %q requires providers.speech to be a whisper backend", name)
		}
	}

	if name := cfg.Audio.VADBackend; name != "" {
		p, err := reg.CreateVAD(config.ProviderEntry{Name: name})
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "vad", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       jarvis-voice — startup summary  ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Speech", cfg.Providers.Speech.Name)
	printProvider("Wake", cfg.Providers.Wake.Name)
	printProvider("VAD", cfg.Audio.VADBackend)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name)
	printProvider("Slots", cfg.Providers.Slots.Name)
	fmt.Printf("║  Catalog dir     : %-19s ║\n", truncateField(cfg.Catalog.Dir))
	fmt.Printf("║  Voice pack dir  : %-19s ║\n", truncateField(cfg.VoicePack.Dir))
	fmt.Printf("║  IPC listen addr : %-19s ║\n", truncateField(cfg.IPC.ListenAddr))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncateField(name))
}

func truncateField(value string) string {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	return value
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
