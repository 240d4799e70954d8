// Package mock provides test doubles for the stt package interfaces.
//
// Use Engine to verify that the caller starts sessions with the expected
// Config. Use Session to script a sequence of finalized/non-finalized
// responses and inspect which frames were delivered.
//
// Example:
//
//	sess := &mock.Session{
//	    Results: []mock.Result{{Text: "open notes", Finalized: true}},
//	}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/agalue/jarvis-voice/pkg/provider/stt"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg stt.Config
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session stt.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg stt.Config) (stt.SessionHandle, error) {
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

// Ensure Engine implements stt.Engine at compile time.
var _ stt.Engine = (*Engine)(nil)

// Result scripts a single AcceptWaveform response.
type Result struct {
	Text      string
	Finalized bool
	Err       error
}

// AcceptWaveformCall records a single invocation of Session.AcceptWaveform.
type AcceptWaveformCall struct {
	// Samples is a copy of the PCM samples passed to AcceptWaveform.
	Samples []int16
}

// Session is a mock implementation of stt.SessionHandle. Results is consumed
// in order, one entry per AcceptWaveform call; once exhausted, AcceptWaveform
// returns ("", false, nil).
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
// ("", false, nil) once Results is exhausted.
func (s *Session) AcceptWaveform(samples []int16) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	s.AcceptWaveformCalls = append(s.AcceptWaveformCalls, AcceptWaveformCall{Samples: cp})

	if s.next >= len(s.Results) {
		return "", false, nil
	}
	r := s.Results[s.next]
	s.next++
	return r.Text, r.Finalized, r.Err
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

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
