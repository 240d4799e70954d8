// Package alwaysvoice provides the degrade-safe default VAD backend: every
// frame is reported as speech. It exists so the pipeline can run with no
// voice-activity gating at all when no other backend is configured or when a
// configured backend fails to load.
package alwaysvoice

import (
	"github.com/agalue/jarvis-voice/pkg/provider/vad"
)

// Engine implements vad.Engine by always classifying frames as speech.
type Engine struct{}

// New returns a ready-to-use Engine. It has no configuration.
func New() *Engine {
	return &Engine{}
}

// NewSession returns a session that always reports VADSpeechContinue.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return &session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct{}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 1.0}, nil
}

func (s *session) Reset() {}

func (s *session) Close() error { return nil }

var _ vad.SessionHandle = (*session)(nil)
