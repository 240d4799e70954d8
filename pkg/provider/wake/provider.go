// Package wake defines the Engine interface for the grammar-constrained
// wake recognizer. A wake engine accepts fixed-size frames of mono 16 kHz
// PCM and decides, per frame, whether a configured wake phrase has been
// uttered. Unlike the free-form speech recognizer in pkg/provider/stt, a
// wake engine is restricted to a small per-language vocabulary of wake
// candidates, which keeps both false-accept rate and decode cost low enough
// to run continuously in the foreground of the capture pipeline.
//
// Implementations must be safe for concurrent use across different
// sessions. A single SessionHandle is driven by one goroutine (the
// controller), which serializes all calls; SessionHandle methods themselves
// need not be internally synchronized against concurrent callers.
package wake

// Config describes the audio format and vocabulary for a new wake session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. The pipeline always feeds
	// 16 kHz mono PCM; this field exists so the engine can validate it.
	SampleRate int

	// Language is the BCP-47-ish language tag selecting which candidate
	// vocabulary to constrain decoding to (e.g. "en").
	Language string

	// Candidates is the restricted vocabulary of wake phrases the engine
	// should recognize for this session's language. Each string is matched
	// case-insensitively against the finalized decode.
	Candidates []string
}

// SessionHandle represents a single wake-recognition session. It is an
// interface so that test code can supply mock implementations without a
// live engine.
//
// The controller feeds frames one at a time via AcceptWaveform in capture
// order. A session accumulates audio internally until it decides the
// utterance is complete, at which point it reports detected=true along with
// the matched candidate text and a confidence score in [0,1]. While an
// utterance is still accumulating, AcceptWaveform returns detected=false
// with a zero-value text and confidence; the wake recognizer never reports
// partial matches.
type SessionHandle interface {
	// AcceptWaveform feeds one frame of 16-bit signed mono PCM samples at
	// the session's configured sample rate. When the session finalizes an
	// utterance, it returns detected=true and, if a candidate matched, the
	// candidate text and its confidence score. A finalized utterance that
	// matches no candidate still returns detected=true with an empty text
	// and zero confidence, signaling the caller that a decode cycle
	// completed without a wake hit.
	AcceptWaveform(samples []int16) (detected bool, text string, confidence float64, err error)

	// Reset discards any buffered audio and internal decoder state,
	// restoring the session to the same state as immediately after
	// construction.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for wake-recognition sessions. It is the top-level
// interface implemented by each wake backend.
type Engine interface {
	// NewSession creates a new session with the given configuration.
	NewSession(cfg Config) (SessionHandle, error)
}
