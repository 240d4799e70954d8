// Package stt defines the Engine interface for the free-form speech
// recognizer (C4). A speech engine accepts fixed-size frames of mono 16 kHz
// PCM and, once it has enough audio to commit to a result, returns the
// best-alternative transcription text. It never emits partial results: the
// controller only cares about the moment of finalization.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle is driven by one goroutine (the controller), which
// serializes all calls; SessionHandle methods themselves need not be
// internally synchronized against concurrent callers.
package stt

import "errors"

// ErrNotSupported is returned by optional SessionHandle operations that a
// given backend does not implement.
var ErrNotSupported = errors.New("stt: operation not supported by this backend")

// Config describes the audio format and recognition hints for a new speech
// session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. The pipeline always feeds
	// 16 kHz mono PCM; this field exists so the engine can validate it.
	SampleRate int

	// Language is the BCP-47-ish language tag for recognition (e.g. "en").
	Language string
}

// SessionHandle represents a single free-form speech recognition session. It
// is an interface so that test code can supply mock implementations without
// a live engine.
//
// The controller feeds frames one at a time via AcceptWaveform in capture
// order. A session accumulates audio internally until it decides the
// utterance is complete, at which point it returns finalized=true along with
// the recognized text for the whole buffered utterance. Once finalized, the
// session's internal buffer is cleared automatically; no call to Reset is
// required between utterances unless the controller wants to discard
// in-flight audio early (e.g. on a mode transition).
type SessionHandle interface {
	// AcceptWaveform feeds one frame of 16-bit signed mono PCM samples at
	// the session's configured sample rate. When the session determines the
	// utterance is complete, it returns the recognized text and
	// finalized=true. Otherwise it returns ("", false, nil).
	AcceptWaveform(samples []int16) (text string, finalized bool, err error)

	// Reset discards any buffered audio and internal decoder state,
	// restoring the session to the same state as immediately after
	// construction.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for speech-recognition sessions. It is the
// top-level interface implemented by each speech backend.
type Engine interface {
	// NewSession creates a new session with the given configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
