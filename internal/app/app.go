// Package app wires every pipeline subsystem — providers, catalog, voice
// pack, intent resolution, slot extraction, action dispatch, the script
// host, the IPC transport, and the session controller — into a running
// assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run drives the capture loop until the controller stops, and
// Shutdown tears everything down in reverse-init order.
//
// For testing, inject ready-made subsystems via functional options
// (WithEventSink, WithScripter, etc.). When an option is not provided, New
// builds a real implementation from cfg.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agalue/jarvis-voice/internal/action"
	"github.com/agalue/jarvis-voice/internal/audio"
	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/config"
	"github.com/agalue/jarvis-voice/internal/intent"
	"github.com/agalue/jarvis-voice/internal/ipc"
	"github.com/agalue/jarvis-voice/internal/observe"
	"github.com/agalue/jarvis-voice/internal/script"
	"github.com/agalue/jarvis-voice/internal/session"
	"github.com/agalue/jarvis-voice/internal/slots"
	"github.com/agalue/jarvis-voice/internal/voicepack"
	"github.com/agalue/jarvis-voice/pkg/provider/embeddings"
	"github.com/agalue/jarvis-voice/pkg/provider/slots/gliner"
	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	"github.com/agalue/jarvis-voice/pkg/provider/vad"
	"github.com/agalue/jarvis-voice/pkg/provider/wake"
)

// Providers holds one interface value per registry-backed pipeline stage.
// Nil means the stage was not configured, or its provider failed to
// construct and was dropped with a warning. Populated by cmd/ via the
// config registry before calling New.
type Providers struct {
	Wake       wake.Engine
	Speech     stt.Engine
	VAD        vad.Engine
	Embeddings embeddings.Provider
}

// App owns every subsystem's lifetime and drives the capture loop.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger
	metrics   *observe.Metrics

	catalog    *catalog.Catalog
	voices     *voicepack.Manager
	player     *voicepack.Player
	classifier *intent.Classifier
	fuzzy      *intent.FuzzyMatcher
	slotEx     *slots.Extractor
	scripter   action.Scripter
	executor   *action.Executor
	sink       session.EventSink
	ipcServer  *ipc.Server
	controller *session.Controller
	capturer   *audio.Capturer

	terminate func()

	// closers are invoked in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles
// or override a subsystem New would otherwise build from cfg.
type Option func(*App)

// WithLogger overrides the logger every subsystem built by New logs
// through. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics overrides the metrics instruments the session controller and
// capturer record through. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithEventSink injects the sink the session controller emits events to,
// instead of the no-op default. When the IPC transport is enabled, New
// wraps this sink so events also reach the IPC server's clients.
func WithEventSink(sink session.EventSink) Option {
	return func(a *App) { a.sink = sink }
}

// WithScripter injects the action executor's script runner instead of a
// real script.Host, primarily for tests that do not want a goja runtime.
func WithScripter(s action.Scripter) Option {
	return func(a *App) { a.scripter = s }
}

// WithTerminate overrides the callback a "terminate" command invokes.
// Defaults to nil (terminate becomes a delayed no-op).
func WithTerminate(fn func()) Option {
	return func(a *App) { a.terminate = fn }
}

// New wires every subsystem together from cfg and providers. Providers
// missing a required stage (wake, speech) is initialization-fatal;
// everything else (intent classifier, slot extractor, voice pack, reaction
// player) degrades to a reduced feature set with a warning instead of
// failing startup, matching the pipeline's initialization-degradable
// error class.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		metrics:   observe.DefaultMetrics(),
		sink:      session.EventSinkFunc(func(session.Event) {}),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Command catalog ───────────────────────────────────────────────
	if err := a.initCatalog(); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 2. Voice pack ─────────────────────────────────────────────────────
	a.initVoicePack()

	// ── 3. Intent resolution (embedding classifier + fuzzy fallback) ─────
	if err := a.initIntent(ctx); err != nil {
		return nil, fmt.Errorf("app: init intent: %w", err)
	}

	// ── 4. Slot extraction ────────────────────────────────────────────────
	a.initSlots()

	// ── 5. Script host + action executor ─────────────────────────────────
	if err := a.initAction(ctx); err != nil {
		return nil, fmt.Errorf("app: init action: %w", err)
	}

	// ── 6. IPC transport ──────────────────────────────────────────────────
	a.initIPC()

	// ── 7. Session controller ────────────────────────────────────────────
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init session controller: %w", err)
	}

	// ── 8. Microphone capture ─────────────────────────────────────────────
	if err := a.initCapture(ctx); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCatalog() error {
	cat, err := catalog.Load(a.cfg.Catalog.Dir)
	if err != nil {
		return err
	}
	a.catalog = cat
	return nil
}

// initVoicePack loads the voice pack directory and opens the audio output
// device. Both are initialization-degradable: a missing or malformed voice
// pack, or an unavailable output device, leaves a.player nil and the
// session controller runs with silent reactions rather than refusing to
// start.
func (a *App) initVoicePack() {
	manager, err := voicepack.Load(a.cfg.VoicePack.Dir)
	if err != nil {
		a.logger.Warn("app: voice pack unavailable, reactions disabled", "err", err)
		return
	}
	if a.cfg.VoicePack.ActiveID != "" {
		if err := manager.SetActive(a.cfg.VoicePack.ActiveID); err != nil {
			a.logger.Warn("app: requested voice pack not found, using default", "id", a.cfg.VoicePack.ActiveID, "err", err)
		}
	}
	a.voices = manager

	player, err := voicepack.NewPlayer(manager, voicepack.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("app: audio output unavailable, reactions disabled", "err", err)
		return
	}
	a.player = player
	a.closers = append(a.closers, func() error { player.Stop(); return nil })
}

// initIntent builds the embedding-similarity classifier when an embeddings
// provider is configured, and always builds the fuzzy fallback (it has no
// external dependency). A failed or unconfigured classifier degrades to
// fuzzy-only matching.
func (a *App) initIntent(ctx context.Context) error {
	a.fuzzy = intent.NewFuzzyMatcher(intent.WithThreshold(defaultFuzzyThreshold(a.cfg)))

	if a.providers.Embeddings == nil {
		a.logger.Warn("app: no embeddings provider configured, using fuzzy matching only")
		return nil
	}

	classifier, err := intent.New(ctx, a.providers.Embeddings, a.catalog, a.cfg.Server.Language, a.cfg.Server.CacheDir)
	if err != nil {
		a.logger.Warn("app: intent classifier unavailable, using fuzzy matching only", "err", err)
		return nil
	}
	a.classifier = classifier
	return nil
}

// initSlots constructs the slot extractor's zero-shot provider directly
// from cfg, bypassing the config.Registry: slot providers are not
// registry-managed since, unlike wake/speech/vad/embeddings, the catalog
// declares the entity labels a provider must resolve rather than a
// provider-agnostic request shape. A missing or failed provider degrades
// to no slot extraction (commands with declared slots simply receive an
// empty slot map).
func (a *App) initSlots() {
	entry := a.cfg.Providers.Slots
	if entry.Name == "" {
		return
	}
	if entry.Name != "gliner" {
		a.logger.Warn("app: unknown slots provider, slot extraction disabled", "name", entry.Name)
		return
	}

	vocabPath, _ := entry.Options["vocab_path"].(string)
	if vocabPath == "" {
		a.logger.Warn("app: gliner slots provider requires options.vocab_path, slot extraction disabled")
		return
	}
	vocab, err := loadGlinerVocab(vocabPath)
	if err != nil {
		a.logger.Warn("app: load gliner vocab failed, slot extraction disabled", "err", err)
		return
	}

	onnxLib, _ := entry.Options["onnx_lib"].(string)
	engine, err := gliner.New(gliner.Config{
		OnnxLib:   onnxLib,
		ModelPath: entry.ModelPath,
		Vocab:     vocab,
	})
	if err != nil {
		a.logger.Warn("app: gliner engine unavailable, slot extraction disabled", "err", err)
		return
	}
	a.slotEx = slots.New(engine)
}

// initAction builds the sandboxed script host (unless a Scripter was
// injected via WithScripter) and the action executor wrapping it. The
// script host's Postgres state store is itself initialization-degradable:
// an unconfigured or unreachable DSN leaves jarvis.state unavailable to
// scripts without blocking startup.
func (a *App) initAction(ctx context.Context) error {
	if a.scripter == nil {
		scriptOpts := []script.Option{
			script.WithLogger(a.logger),
			script.WithLanguage(a.cfg.Server.Language),
		}
		if a.player != nil {
			scriptOpts = append(scriptOpts, script.WithPlayer(a.player))
		}
		if a.cfg.Script.StateStoreDSN != "" {
			store, err := script.NewPGStateStore(ctx, a.cfg.Script.StateStoreDSN)
			if err != nil {
				a.logger.Warn("app: script state store unavailable", "err", err)
			} else {
				scriptOpts = append(scriptOpts, script.WithStateStore(store))
				a.closers = append(a.closers, func() error { store.Close(); return nil })
			}
		}
		a.scripter = script.New(scriptOpts...)
	}

	execOpts := []action.Option{}
	if a.terminate != nil {
		execOpts = append(execOpts, action.WithTerminate(a.terminate))
	}
	a.executor = action.New(a.scripter, execOpts...)
	return nil
}

// multiSink fans one event out to several sinks, preserving call order: the
// controller's single emitting goroutine calls Emit once per sink in turn,
// so every sink still sees the controller's own event order.
type multiSink []session.EventSink

func (m multiSink) Emit(e session.Event) {
	for _, sink := range m {
		sink.Emit(e)
	}
}

// initIPC opens the loopback transport and folds it into a.sink so the
// controller's events reach both IPC clients and whatever sink WithEventSink
// injected (tests usually inject one to observe controller behavior
// directly; cmd/ does not, so production just gets the IPC broadcast). A
// missing listen_addr or a bind failure is initialization-degradable: the
// assistant still drives its own microphone, it just cannot be driven or
// observed remotely.
func (a *App) initIPC() {
	if a.cfg.IPC.ListenAddr == "" {
		return
	}
	srv, err := ipc.New(a.cfg.IPC.ListenAddr, ipc.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("app: ipc transport unavailable", "addr", a.cfg.IPC.ListenAddr, "err", err)
		return
	}
	a.ipcServer = srv
	a.sink = multiSink{a.sink, srv}
	a.closers = append(a.closers, srv.Close)
}

// initController builds the session.Config from cfg and constructs the
// Controller. WakeEngine and SpeechEngine are required; New returns an
// initialization-fatal error if either provider is missing, matching
// session.New's own validation.
func (a *App) initController() error {
	if a.providers.Wake == nil {
		return fmt.Errorf("providers.wake is required")
	}
	if a.providers.Speech == nil {
		return fmt.Errorf("providers.speech is required")
	}

	var preOpts []audio.Option
	preOpts = append(preOpts, audio.WithGain(a.cfg.Audio.GainEnabled))
	if a.providers.VAD != nil {
		vadSession, err := a.providers.VAD.NewSession(vad.Config{
			SampleRate:  defaultSampleRate,
			FrameSizeMs: defaultFrameSizeMs,
		})
		if err != nil {
			a.logger.Warn("app: vad session unavailable, voice activity always assumed", "err", err)
		} else {
			preOpts = append(preOpts, audio.WithVAD(vadSession))
		}
	}

	cfg := session.Config{
		WakeEngine:   a.providers.Wake,
		SpeechEngine: a.providers.Speech,
		Preprocessor: audio.NewPreprocessor(preOpts...),

		Catalog:  a.catalog,
		Executor: a.executor,
		Events:   a.sink,

		Language:    a.cfg.Server.Language,
		WakePhrases: a.cfg.Session.WakePhrases,
		FillerWords: a.cfg.Session.FillerWords[a.cfg.Server.Language],

		IntentConfidenceThreshold: a.cfg.Session.IntentConfidenceThreshold,
		WakeSilenceTimeout:        a.cfg.Session.WakeSilenceTimeout,
		CommandSilenceTimeout:     a.cfg.Session.CommandSilenceTimeout,
		CommandTotalTimeout:       a.cfg.Session.CommandTotalTimeout,
		SniffWindow:               a.cfg.Session.SniffWindow,
		MinUtteranceLength:        a.cfg.Session.MinUtteranceLength,

		RingBufferWakeSeconds:    a.cfg.Audio.RingBufferWakeSeconds,
		RingBufferCommandSeconds: a.cfg.Audio.RingBufferCommandSeconds,

		Metrics: a.metrics,
		Logger:  a.logger,
	}
	if a.classifier != nil {
		cfg.Classifier = a.classifier
	}
	cfg.Fuzzy = a.fuzzy
	cfg.Reload = a.reloadCommands
	if a.slotEx != nil {
		cfg.Slots = a.slotEx
	}
	if a.player != nil {
		cfg.Player = a.player
	}

	controller, err := session.New(cfg)
	if err != nil {
		return err
	}
	a.controller = controller
	a.closers = append(a.closers, controller.Close)
	return nil
}

// reloadCommands re-reads the catalog directory and rebuilds the intent
// classifier against it, for the controller's reload_commands handling. The
// classifier rebuild is hash-gated by its own disk cache, so an unchanged
// command set costs one cache read, not a re-embedding pass. A classifier
// rebuild failure degrades to fuzzy-only matching rather than failing the
// reload: the new catalog is still more correct than the old one.
func (a *App) reloadCommands(ctx context.Context) (*catalog.Catalog, session.Classifier, error) {
	cat, err := catalog.Load(a.cfg.Catalog.Dir)
	if err != nil {
		return nil, nil, err
	}
	a.catalog = cat

	if a.providers.Embeddings == nil {
		return cat, nil, nil
	}
	classifier, err := intent.New(ctx, a.providers.Embeddings, cat, a.cfg.Server.Language, a.cfg.Server.CacheDir)
	if err != nil {
		a.logger.Warn("app: rebuild intent classifier failed, using fuzzy matching only", "err", err)
		a.classifier = nil
		return cat, nil, nil
	}
	a.classifier = classifier
	return cat, classifier, nil
}

// initCapture opens the microphone and wires each captured frame into the
// controller. An unavailable capture device is initialization-fatal: a
// voice assistant with no microphone has nothing left to do.
func (a *App) initCapture(ctx context.Context) error {
	onFrame := func(frame audio.Frame) {
		if err := a.controller.Feed(ctx, frame); err != nil {
			a.logger.Error("app: feed frame failed", "err", err)
		}
	}
	capturer, err := audio.NewCapturer(defaultSampleRate, defaultFrameWidth, onFrame, audio.WithCaptureLogger(a.logger))
	if err != nil {
		return err
	}
	a.capturer = capturer
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the session controller driving the listening state
// machine.
func (a *App) Controller() *session.Controller { return a.controller }

// Catalog returns the loaded command catalog.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// VoicePack returns the loaded voice pack manager. May be nil if no voice
// pack was configured or loadable.
func (a *App) VoicePack() *voicepack.Manager { return a.voices }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the microphone capture loop and the controller's startup
// announcement, then blocks until ctx is cancelled or the controller
// observes a Stop call.
func (a *App) Run(ctx context.Context) error {
	a.controller.Run(ctx)

	if a.ipcServer != nil {
		go func() {
			if err := a.ipcServer.Serve(ctx, a.controller); err != nil && ctx.Err() == nil {
				a.logger.Error("app: ipc server stopped", "err", err)
			}
		}()
	}

	if err := a.capturer.Start(); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	a.logger.Info("app running")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.controller.Stopped() {
				return nil
			}
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture and tears down every subsystem in reverse-init
// order. It respects ctx's deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("app: shutting down", "closers", len(a.closers))

		if a.controller != nil {
			a.controller.Stop()
		}
		if a.capturer != nil {
			if err := a.capturer.Close(); err != nil {
				a.logger.Warn("app: capture close error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("app: closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("app: shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const (
	defaultSampleRate  = 16000
	defaultFrameWidth  = 512 // 32ms at 16kHz
	defaultFrameSizeMs = 32
)

// defaultFuzzyThreshold reads an optional override from the intent
// provider's options block, falling back to FuzzyMatcher's own default.
func defaultFuzzyThreshold(cfg *config.Config) float64 {
	if v, ok := cfg.Providers.Intent.Options["fuzzy_threshold"].(float64); ok && v > 0 {
		return v
	}
	return 75.0
}
