// Package energyrms provides a lightweight VAD backend that classifies
// speech by RMS (root-mean-square) signal energy against a fixed threshold,
// with a few frames of hangover before declaring speech ended. It requires
// no model file and is the recommended middle-ground backend when a trained
// model is unavailable but always-voice gating is too permissive.
package energyrms

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/agalue/jarvis-voice/pkg/provider/vad"
)

// defaultRMSThreshold is the energy level above which a frame is classified
// as speech. Tuned for 16-bit PCM captured from a typical laptop microphone.
const defaultRMSThreshold = 300.0

// defaultHangoverFrames is the number of consecutive low-energy frames
// required before a session transitions from speech back to silence. This
// absorbs brief dips in energy mid-utterance (stop consonants, breaths).
const defaultHangoverFrames = 8

// Engine implements vad.Engine using RMS energy thresholding.
type Engine struct {
	// Threshold overrides defaultRMSThreshold when non-zero.
	Threshold float64

	// HangoverFrames overrides defaultHangoverFrames when non-zero.
	HangoverFrames int
}

// New returns a ready-to-use Engine with default thresholds.
func New() *Engine {
	return &Engine{}
}

// NewSession returns a new RMS-threshold session. cfg.SpeechThreshold, when
// non-zero, is interpreted as a directly-supplied RMS threshold override
// (scaled to the 0-32767 PCM amplitude range) taking precedence over Engine.Threshold.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = defaultRMSThreshold
	}
	if cfg.SpeechThreshold > 0 {
		threshold = cfg.SpeechThreshold * 32767.0
	}
	hangover := e.HangoverFrames
	if hangover <= 0 {
		hangover = defaultHangoverFrames
	}
	return &session{threshold: threshold, hangoverLimit: hangover}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	threshold     float64
	hangoverLimit int

	speaking     bool
	hangoverLeft int
}

// ProcessFrame computes the RMS of frame (16-bit little-endian PCM) and
// classifies it against the session's threshold, applying hangover to avoid
// chattering during brief energy dips.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame)%2 != 0 {
		return vad.VADEvent{}, fmt.Errorf("energyrms: frame length %d is not a multiple of 2", len(frame))
	}
	rms := computeRMS(frame)
	probability := math.Min(rms/s.threshold, 1.0)
	loud := rms >= s.threshold

	switch {
	case loud && !s.speaking:
		s.speaking = true
		s.hangoverLeft = s.hangoverLimit
		return vad.VADEvent{Type: vad.VADSpeechStart, Probability: probability}, nil
	case loud && s.speaking:
		s.hangoverLeft = s.hangoverLimit
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: probability}, nil
	case !loud && s.speaking:
		s.hangoverLeft--
		if s.hangoverLeft <= 0 {
			s.speaking = false
			return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: probability}, nil
		}
		return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: probability}, nil
	default:
		return vad.VADEvent{Type: vad.VADSilence, Probability: probability}, nil
	}
}

// Reset clears the session's speaking/hangover state.
func (s *session) Reset() {
	s.speaking = false
	s.hangoverLeft = 0
}

// Close is a no-op; the session holds no external resources.
func (s *session) Close() error { return nil }

var _ vad.SessionHandle = (*session)(nil)

func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
