// This file contains the NativeEngine implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeEngine satisfies stt.Engine.
var _ stt.Engine = (*NativeEngine)(nil)

// NativeEngine implements stt.Engine using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup
// and shared across all sessions; each inference creates its own whisper.cpp
// context, which is not safe for concurrent use by multiple goroutines but
// does not need to be, since the controller drives one session at a time.
type NativeEngine struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// NativeOption is a functional option for configuring a NativeEngine.
type NativeOption func(*NativeEngine)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(e *NativeEngine) { e.language = lang }
}

// WithNativeSampleRate sets the audio sample rate in Hz. This must match the
// actual sample rate of PCM frames delivered via AcceptWaveform. Defaults to
// 16000.
func WithNativeSampleRate(rate int) NativeOption {
	return func(e *NativeEngine) { e.sampleRate = rate }
}

// WithNativeSilenceThresholdMs sets the consecutive-silence duration (ms)
// that triggers a flush of the accumulated speech buffer to whisper.cpp.
// Defaults to 500 ms.
func WithNativeSilenceThresholdMs(ms int) NativeOption {
	return func(e *NativeEngine) { e.silenceThresholdMs = ms }
}

// WithNativeMaxBufferDurationMs sets the maximum buffered audio duration
// (ms) before a forced flush. Defaults to 10 000 ms (10 s).
func WithNativeMaxBufferDurationMs(ms int) NativeOption {
	return func(e *NativeEngine) { e.maxBufferDurationMs = ms }
}

// NewNative creates a NativeEngine that loads the whisper.cpp model from the
// given file path. The model is loaded once and shared across all sessions
// created from this engine. The caller must call Close when the engine is
// no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeEngine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &NativeEngine{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model. Must be called when the engine is no
// longer needed.
func (e *NativeEngine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// NewSession creates a new speech-recognition session that runs inference
// against the shared model, with a fresh whisper.cpp context per flushed
// utterance. It respects
// cfg.SampleRate and cfg.Language; if those are zero/empty the engine-level
// defaults apply.
func (e *NativeEngine) NewSession(cfg stt.Config) (stt.SessionHandle, error) {
	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = e.sampleRate
	}

	return &nativeSession{
		model:    e.model,
		language: lang,
		buf:      newUtteranceBuffer(sr, e.silenceThresholdMs, e.maxBufferDurationMs),
	}, nil
}

// nativeSession is a whisper.cpp transcription session using the CGO
// bindings. It implements stt.SessionHandle. AcceptWaveform is called
// synchronously by the controller; there is no internal goroutine.
type nativeSession struct {
	model    whisperlib.Model
	language string
	buf      *utteranceBuffer
}

// AcceptWaveform buffers frame and, once the utterance buffer decides the
// utterance is complete, runs whisper.cpp inference and returns the
// recognized text.
func (s *nativeSession) AcceptWaveform(frame []int16) (string, bool, error) {
	if !s.buf.accept(frame) {
		return "", false, nil
	}
	samples := s.buf.drain()
	if len(samples) == 0 {
		return "", false, nil
	}
	text, err := s.infer(samples)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Reset discards any buffered audio.
func (s *nativeSession) Reset() {
	s.buf.reset()
}

// Close is a no-op; whisper.cpp contexts created per-inference in infer are
// not retained between calls, and the shared model is released via the
// owning NativeEngine's Close.
func (s *nativeSession) Close() error { return nil }

// infer converts the buffered samples to float32, runs whisper.cpp
// inference using a fresh context, and returns the concatenated segment
// text.
func (s *nativeSession) infer(samples []int16) (string, error) {
	floats := samplesToFloat32(samples)

	// Create a new whisper context for this inference. Each context is NOT
	// thread-safe, but the model can be shared across goroutines.
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "error", err)
	}

	if err := wctx.Process(floats, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// Compile-time assertion that nativeSession satisfies stt.SessionHandle.
var _ stt.SessionHandle = (*nativeSession)(nil)
