// Package whisper implements a grammar-constrained pkg/provider/wake.Engine
// on top of a free-form pkg/provider/stt.Engine. whisper.cpp itself exposes
// no hard grammar-constraining API through its Go bindings, so this backend
// approximates constraining: it lets the underlying speech engine finalize
// normally, then scores the finalized text against the session's candidate
// vocabulary with Jaro-Winkler similarity, only reporting a detection when
// the best-matching candidate clears a configurable similarity floor. This
// keeps the wake path on the same whisper.cpp model already loaded for
// free-form recognition, trading a constrained decode for a post-hoc fuzzy
// gate.
package whisper

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	"github.com/agalue/jarvis-voice/pkg/provider/wake"
)

// defaultMinConfidence is the minimum fuzzy-match ratio, in [0,1], a
// finalized decode must reach against some candidate phrase to count as a
// wake detection.
const defaultMinConfidence = 0.72

// Engine adapts an stt.Engine into a wake.Engine by fuzzy-matching
// finalized transcriptions against a restricted candidate vocabulary.
type Engine struct {
	speech        stt.Engine
	minConfidence float64
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithMinConfidence overrides the minimum fuzzy-match ratio required to
// report a wake detection. Defaults to 0.72.
func WithMinConfidence(min float64) Option {
	return func(e *Engine) { e.minConfidence = min }
}

// New wraps speech, a free-form speech-recognition engine, as a
// grammar-constrained wake engine. speech must not be nil.
func New(speech stt.Engine, opts ...Option) *Engine {
	e := &Engine{speech: speech, minConfidence: defaultMinConfidence}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession creates a new wake-recognition session. The underlying speech
// session is configured with cfg.SampleRate and cfg.Language; cfg.Candidates
// is retained for per-finalization fuzzy scoring.
func (e *Engine) NewSession(cfg wake.Config) (wake.SessionHandle, error) {
	speechSession, err := e.speech.NewSession(stt.Config{
		SampleRate: cfg.SampleRate,
		Language:   cfg.Language,
	})
	if err != nil {
		return nil, err
	}
	candidates := make([]string, len(cfg.Candidates))
	for i, c := range cfg.Candidates {
		candidates[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return &session{
		speech:        speechSession,
		candidates:    candidates,
		minConfidence: e.minConfidence,
	}, nil
}

// Ensure Engine implements wake.Engine at compile time.
var _ wake.Engine = (*Engine)(nil)

type session struct {
	speech        stt.SessionHandle
	candidates    []string
	minConfidence float64
}

// AcceptWaveform delegates to the underlying speech session. Once it
// finalizes, the recognized text is scored against every candidate and the
// best match is reported if it clears minConfidence.
func (s *session) AcceptWaveform(samples []int16) (bool, string, float64, error) {
	text, finalized, err := s.speech.AcceptWaveform(samples)
	if err != nil {
		return false, "", 0, err
	}
	if !finalized {
		return false, "", 0, nil
	}

	bestCandidate, bestScore := s.bestMatch(text)
	if bestScore < s.minConfidence {
		return true, "", 0, nil
	}
	return true, bestCandidate, bestScore, nil
}

// bestMatch returns the candidate with the highest Jaro-Winkler similarity
// to text, and that similarity score. Returns ("", 0) if there are no
// candidates.
func (s *session) bestMatch(text string) (string, float64) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" || len(s.candidates) == 0 {
		return "", 0
	}

	var best string
	var bestScore float64
	for _, candidate := range s.candidates {
		score := matchr.JaroWinkler(normalized, candidate, false)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best, bestScore
}

// Reset discards any buffered audio in the underlying speech session.
func (s *session) Reset() {
	s.speech.Reset()
}

// Close releases the underlying speech session.
func (s *session) Close() error {
	return s.speech.Close()
}

// Ensure session implements wake.SessionHandle at compile time.
var _ wake.SessionHandle = (*session)(nil)
