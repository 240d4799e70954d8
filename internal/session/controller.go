package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/agalue/jarvis-voice/internal/audio"
	"github.com/agalue/jarvis-voice/internal/catalog"
	"github.com/agalue/jarvis-voice/internal/observe"
	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	"github.com/agalue/jarvis-voice/pkg/provider/wake"
)

// Default tunables, overridden by Config fields when set.
const (
	defaultIntentConfidenceThreshold = 0.70
	defaultWakeSilenceTimeout        = 1500 * time.Millisecond
	defaultCommandSilenceTimeout     = 5 * time.Second
	defaultCommandTotalTimeout       = 15 * time.Second
	defaultSniffWindow               = 300 * time.Millisecond
	defaultMinUtteranceLength        = 5
	defaultRingBufferWakeSeconds     = 5.0
	defaultRingBufferCommandSeconds  = 2.0
	defaultSampleRate                = 16000
	defaultFrameWidth                = 512 // 32ms at 16kHz
)

// Config configures a Controller. WakeEngine, SpeechEngine, Catalog,
// Executor, and Events are required; everything else degrades gracefully
// when left zero, matching the pipeline's initialization-degradable error
// class (an unavailable intent classifier, slot extractor, or reaction
// player never stops the assistant from responding to commands it can
// still resolve by fuzzy match).
type Config struct {
	WakeEngine   wake.Engine
	SpeechEngine stt.Engine
	Preprocessor *audio.Preprocessor

	Catalog  *catalog.Catalog
	Executor CommandExecutor
	Slots    SlotExtractor
	Player   ReactionPlayer
	Events   EventSink

	// Classifier is the embedding-similarity intent classifier (C5). Nil
	// degrades to fuzzy-only matching.
	Classifier Classifier

	// Fuzzy is the character/word fallback matcher (C6), consulted when
	// Classifier is nil or its confidence is below
	// IntentConfidenceThreshold.
	Fuzzy FuzzyMatcher

	// Reload rebuilds the catalog and intent classifier from disk. It is
	// invoked at the next Feed iteration boundary after ReloadCommands is
	// called, never mid-utterance. Nil rejects reload requests with an
	// error event.
	Reload func(ctx context.Context) (*catalog.Catalog, Classifier, error)

	Language    string
	WakePhrases []string
	FillerWords []string

	IntentConfidenceThreshold float64
	WakeSilenceTimeout        time.Duration
	CommandSilenceTimeout     time.Duration
	CommandTotalTimeout       time.Duration
	SniffWindow               time.Duration
	MinUtteranceLength        int

	RingBufferWakeSeconds    float64
	RingBufferCommandSeconds float64
	SampleRate               int
	FrameWidth               int

	Metrics *observe.Metrics
	Logger  *slog.Logger

	// now is overridden by tests needing deterministic timing.
	now func() time.Time
}

func (c *Config) setDefaults() {
	if c.IntentConfidenceThreshold <= 0 {
		c.IntentConfidenceThreshold = defaultIntentConfidenceThreshold
	}
	if c.WakeSilenceTimeout <= 0 {
		c.WakeSilenceTimeout = defaultWakeSilenceTimeout
	}
	if c.CommandSilenceTimeout <= 0 {
		c.CommandSilenceTimeout = defaultCommandSilenceTimeout
	}
	if c.CommandTotalTimeout <= 0 {
		c.CommandTotalTimeout = defaultCommandTotalTimeout
	}
	if c.SniffWindow <= 0 {
		c.SniffWindow = defaultSniffWindow
	}
	if c.MinUtteranceLength <= 0 {
		c.MinUtteranceLength = defaultMinUtteranceLength
	}
	if c.RingBufferWakeSeconds <= 0 {
		c.RingBufferWakeSeconds = defaultRingBufferWakeSeconds
	}
	if c.RingBufferCommandSeconds <= 0 {
		c.RingBufferCommandSeconds = defaultRingBufferCommandSeconds
	}
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.FrameWidth <= 0 {
		c.FrameWidth = defaultFrameWidth
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
}

// textCommand is one externally submitted command queued for direct
// dispatch, bypassing the audio stages entirely.
type textCommand struct {
	ctx  context.Context
	text string
}

// Controller drives the session state machine described in the package
// doc. A Controller is not safe for concurrent calls to Feed; it is meant
// to be driven by the single pipeline goroutine, with SubmitTextCommand,
// Stop, SetMuted, ReloadCommands and the State/Stopped/Muted readers the
// only methods other goroutines may call.
type Controller struct {
	cfg Config

	wakeSession wake.SessionHandle
	cmdSession  stt.SessionHandle

	wakeRing *audio.RingBuffer
	cmdRing  *audio.RingBuffer

	state            State
	lastVoiceAt      time.Time
	commandStartedAt time.Time
	sniffUntil       time.Time

	// justEnteredListening marks the first command-recognizer finalization
	// after a wake activation: a bare wake repetition there is leftover
	// dual-feed audio and is discarded silently instead of acknowledged
	// (see onCommandFinalize).
	justEnteredListening bool

	// voiceSeenSinceWake is false until the first real voice frame after a
	// wake activation; used to tell a still-sniffing session from one that
	// has genuinely gone silent mid-command.
	voiceSeenSinceWake bool

	stopped         atomic.Bool
	muted           atomic.Bool
	reloadRequested atomic.Bool

	textCommands chan textCommand

	mu sync.Mutex // guards state for State()/Metrics gauge reads only
}

// New constructs a Controller from cfg. It creates the wake and speech
// recognition sessions immediately; a failure to do so is
// initialization-fatal and is returned to the caller rather than degraded.
func New(cfg Config) (*Controller, error) {
	if cfg.WakeEngine == nil {
		return nil, fmt.Errorf("session: WakeEngine is required")
	}
	if cfg.SpeechEngine == nil {
		return nil, fmt.Errorf("session: SpeechEngine is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("session: Catalog is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("session: Executor is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("session: Events is required")
	}
	cfg.setDefaults()

	wakeSession, err := cfg.WakeEngine.NewSession(wake.Config{
		SampleRate: cfg.SampleRate,
		Language:   cfg.Language,
		Candidates: cfg.WakePhrases,
	})
	if err != nil {
		return nil, fmt.Errorf("session: create wake session: %w", err)
	}

	cmdSession, err := cfg.SpeechEngine.NewSession(stt.Config{
		SampleRate: cfg.SampleRate,
		Language:   cfg.Language,
	})
	if err != nil {
		wakeSession.Close()
		return nil, fmt.Errorf("session: create speech session: %w", err)
	}

	if cfg.Preprocessor == nil {
		cfg.Preprocessor = audio.NewPreprocessor()
	}

	c := &Controller{
		cfg:          cfg,
		wakeSession:  wakeSession,
		cmdSession:   cmdSession,
		wakeRing:     audio.NewRingBufferForDuration(cfg.RingBufferWakeSeconds, cfg.SampleRate, cfg.FrameWidth),
		cmdRing:      audio.NewRingBufferForDuration(cfg.RingBufferCommandSeconds, cfg.SampleRate, cfg.FrameWidth),
		state:        StateWaitingForVoice,
		textCommands: make(chan textCommand, 16),
	}
	if cfg.Metrics != nil {
		cfg.Metrics.SessionState.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", StateWaitingForVoice.String())))
	}
	return c, nil
}

// State returns the controller's current state. Safe for concurrent use.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	previous := c.state
	c.state = state
	c.mu.Unlock()
	if c.cfg.Metrics != nil && previous != state {
		ctx := context.Background()
		c.cfg.Metrics.SessionState.Add(ctx, -1, metric.WithAttributes(attribute.String("state", previous.String())))
		c.cfg.Metrics.SessionState.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))
	}
}

// Close releases the wake and speech recognition sessions.
func (c *Controller) Close() error {
	var errs []error
	if err := c.wakeSession.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.cmdSession.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("session: close: %v", errs)
}

// Stop requests the controller transition to StateStopping at the next
// Feed call. Safe to call from any goroutine, any number of times.
func (c *Controller) Stop() {
	c.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (c *Controller) Stopped() bool {
	return c.stopped.Load()
}

// SetMuted mutes or unmutes the microphone path: while muted, Feed drops
// audio frames without touching the recognizers, but still drains text
// commands. Safe to call from any goroutine.
func (c *Controller) SetMuted(muted bool) {
	if c.muted.Swap(muted) != muted {
		c.cfg.Logger.Info("session: microphone mute changed", "muted", muted)
	}
}

// Muted reports whether the microphone path is currently muted.
func (c *Controller) Muted() bool {
	return c.muted.Load()
}

// ReloadCommands requests an atomic catalog + intent-cache reload at the
// next Feed iteration boundary. Safe to call from any goroutine.
func (c *Controller) ReloadCommands() {
	c.reloadRequested.Store(true)
}

// maybeReload performs a requested reload between iterations: the catalog
// and classifier are swapped together, so no command is ever resolved
// against a half-updated pair. The fuzzy matcher needs no rebuild — it
// reads phrases through the catalog on every Match call.
func (c *Controller) maybeReload(ctx context.Context) {
	if !c.reloadRequested.CompareAndSwap(true, false) {
		return
	}
	if c.cfg.Reload == nil {
		c.emit(Event{Kind: EventError, Message: "command reload not supported"})
		return
	}
	cat, classifier, err := c.cfg.Reload(ctx)
	if err != nil {
		c.cfg.Logger.Error("session: reload commands failed, keeping previous catalog", "error", err)
		c.emit(Event{Kind: EventError, Message: "reload commands: " + err.Error()})
		return
	}
	c.cfg.Catalog = cat
	c.cfg.Classifier = classifier
	c.cfg.Logger.Info("session: commands reloaded", "count", len(cat.All()))
}

// SubmitTextCommand queues text for direct dispatch, bypassing every audio
// stage. It is drained once per Feed call, so a caller with no audio
// pipeline running (tests, or a muted microphone) must still call Feed
// periodically.
func (c *Controller) SubmitTextCommand(ctx context.Context, text string) {
	select {
	case c.textCommands <- textCommand{ctx: ctx, text: text}:
	default:
		c.cfg.Logger.Warn("session: text command queue full, dropping", "text", text)
	}
}

// Run starts the controller's own startup announcement and returns. It
// does not block: frames are pushed in by the pipeline's caller via Feed.
func (c *Controller) Run(ctx context.Context) {
	c.emit(Event{Kind: EventStarted})
	c.emit(Event{Kind: EventIdle, CorrelationID: observe.CorrelationID(ctx)})
}

// Feed processes one raw audio frame through the preprocessor and then the
// state machine, and drains any pending text commands. It must be called
// from a single goroutine.
func (c *Controller) Feed(ctx context.Context, frame audio.Frame) error {
	if c.stopped.Load() {
		if c.state != StateStopping {
			c.setState(StateStopping)
			c.emit(Event{Kind: EventStopping})
		}
		return nil
	}

	c.maybeReload(ctx)
	c.drainTextCommands()

	if c.muted.Load() {
		return nil
	}

	start := time.Now()
	processed, err := c.cfg.Preprocessor.Process(frame)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.PreprocessDuration.Record(ctx, time.Since(start).Seconds())
		c.cfg.Metrics.RecordFrameProcessed(ctx)
	}
	if err != nil {
		return nil // preprocessor already degrades internally; nothing to do
	}

	switch c.state {
	case StateWaitingForVoice:
		c.handleWaitingForVoice(ctx, processed)
	case StateVoiceActive:
		c.handleVoiceActive(ctx, processed)
	case StateListeningWaitingForVoice:
		c.handleListeningWaitingForVoice(ctx, processed)
	case StateListeningVoiceActive:
		c.handleListeningVoiceActive(ctx, processed)
	}
	return nil
}

// drainTextCommands processes every queued text command to completion
// before returning. Each one runs the full intent pipeline and always
// concludes with an Idle event; it never touches the voice state machine.
func (c *Controller) drainTextCommands() {
	for {
		select {
		case tc := <-c.textCommands:
			c.handleTextCommand(tc.ctx, tc.text)
		default:
			return
		}
	}
}

func (c *Controller) emit(e Event) {
	c.cfg.Events.Emit(e)
}

func (c *Controller) now() time.Time { return c.cfg.now() }

// frameAsAudio converts a ProcessedFrame back into the raw audio.Frame
// shape the wake/speech recognizer sessions and the ring buffers expect:
// the controller only ever deals in processed samples downstream of the
// preprocessor, never the original unprocessed frame.
func frameAsAudio(p audio.ProcessedFrame) audio.Frame {
	return audio.Frame{Samples: p.Samples}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "…"
}
