// Package mock provides test doubles for the wake package interfaces.
//
// Use Engine to verify that the caller starts sessions with the expected
// Config. Use Session to script a sequence of detect/no-detect responses
// and inspect which frames were delivered.
//
// Example:
//
//	sess := &mock.Session{
//	    Results: []mock.Result{{Detected: true, Text: "hey jarvis", Confidence: 0.92}},
//	}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/agalue/jarvis-voice/pkg/provider/wake"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg wake.Config
}

// Engine is a mock implementation of wake.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil,
	// NewSession returns a new default Session.
	Session wake.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg wake.Config) (wake.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = nil
}

// Ensure Engine implements wake.Engine at compile time.
var _ wake.Engine = (*Engine)(nil)

// Result scripts a single AcceptWaveform response.
type Result struct {
	Detected   bool
	Text       string
	Confidence float64
	Err        error
}

// AcceptWaveformCall records a single invocation of Session.AcceptWaveform.
type AcceptWaveformCall struct {
	// Samples is a copy of the PCM samples passed to AcceptWaveform.
	Samples []int16
}

// Session is a mock implementation of wake.SessionHandle. Results is
// consumed in order, one entry per AcceptWaveform call; once exhausted,
// AcceptWaveform returns (false, "", 0, nil).
type Session struct {
	mu sync.Mutex

	// Results is the scripted sequence of responses, consumed one per call.
	Results []Result

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// AcceptWaveformCalls records every call to AcceptWaveform in order.
	AcceptWaveformCalls []AcceptWaveformCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// AcceptWaveform records the call and returns the next scripted Result, or
// (false, "", 0, nil) once Results is exhausted.
func (s *Session) AcceptWaveform(samples []int16) (bool, string, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	s.AcceptWaveformCalls = append(s.AcceptWaveformCalls, AcceptWaveformCall{Samples: cp})

	if s.next >= len(s.Results) {
		return false, "", 0, nil
	}
	r := s.Results[s.next]
	s.next++
	return r.Detected, r.Text, r.Confidence, r.Err
}

// Reset records the call by incrementing ResetCallCount and rewinds the
// scripted Results sequence.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
	s.next = 0
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AcceptWaveformCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
	s.next = 0
}

// Ensure Session implements wake.SessionHandle at compile time.
var _ wake.SessionHandle = (*Session)(nil)
