package whisper_test

import (
	"errors"
	"testing"

	sttmock "github.com/agalue/jarvis-voice/pkg/provider/stt/mock"
	"github.com/agalue/jarvis-voice/pkg/provider/wake"
	"github.com/agalue/jarvis-voice/pkg/provider/wake/whisper"
)

func TestNewSession_ConfiguresSpeechSessionFromWakeConfig(t *testing.T) {
	speechEngine := &sttmock.Engine{}
	eng := whisper.New(speechEngine)

	_, err := eng.NewSession(wake.Config{
		SampleRate: 16000,
		Language:   "en",
		Candidates: []string{"hey jarvis"},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if len(speechEngine.NewSessionCalls) != 1 {
		t.Fatalf("expected 1 NewSession call on speech engine, got %d", len(speechEngine.NewSessionCalls))
	}
	cfg := speechEngine.NewSessionCalls[0].Cfg
	if cfg.SampleRate != 16000 || cfg.Language != "en" {
		t.Errorf("speech session cfg = %+v; want SampleRate=16000 Language=en", cfg)
	}
}

func TestNewSession_PropagatesSpeechEngineError(t *testing.T) {
	wantErr := errors.New("boom")
	speechEngine := &sttmock.Engine{NewSessionErr: wantErr}
	eng := whisper.New(speechEngine)

	_, err := eng.NewSession(wake.Config{SampleRate: 16000})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestAcceptWaveform_NotFinalizedReturnsNotDetected(t *testing.T) {
	speechSession := &sttmock.Session{
		Results: []sttmock.Result{{Finalized: false}},
	}
	eng := whisper.New(&sttmock.Engine{Session: speechSession})
	h, err := eng.NewSession(wake.Config{SampleRate: 16000, Candidates: []string{"hey jarvis"}})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	detected, text, conf, err := h.AcceptWaveform(make([]int16, 160))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if detected {
		t.Error("expected detected=false when speech session has not finalized")
	}
	if text != "" || conf != 0 {
		t.Errorf("expected zero-value text/confidence, got text=%q conf=%f", text, conf)
	}
}

func TestAcceptWaveform_ExactCandidateMatchDetected(t *testing.T) {
	speechSession := &sttmock.Session{
		Results: []sttmock.Result{{Text: "hey jarvis", Finalized: true}},
	}
	eng := whisper.New(&sttmock.Engine{Session: speechSession})
	h, err := eng.NewSession(wake.Config{
		SampleRate: 16000,
		Candidates: []string{"hey jarvis", "okay computer"},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	detected, text, conf, err := h.AcceptWaveform(make([]int16, 160))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if !detected {
		t.Fatal("expected detected=true for exact candidate match")
	}
	if text != "hey jarvis" {
		t.Errorf("text = %q; want %q", text, "hey jarvis")
	}
	if conf < 0.99 {
		t.Errorf("confidence = %f; want ~1.0 for exact match", conf)
	}
}

func TestAcceptWaveform_UnrelatedTextFinalizesWithoutDetection(t *testing.T) {
	speechSession := &sttmock.Session{
		Results: []sttmock.Result{{Text: "what's the weather today", Finalized: true}},
	}
	eng := whisper.New(&sttmock.Engine{Session: speechSession})
	h, err := eng.NewSession(wake.Config{
		SampleRate: 16000,
		Candidates: []string{"hey jarvis"},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	detected, text, conf, err := h.AcceptWaveform(make([]int16, 160))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if !detected {
		t.Fatal("expected detected=true once the speech session finalizes a decode cycle")
	}
	if text != "" {
		t.Errorf("text = %q; want empty, unrelated phrase should not match", text)
	}
	if conf != 0 {
		t.Errorf("confidence = %f; want 0", conf)
	}
}

func TestAcceptWaveform_RespectsCustomMinConfidence(t *testing.T) {
	speechSession := &sttmock.Session{
		Results: []sttmock.Result{{Text: "hey jarv", Finalized: true}},
	}
	eng := whisper.New(&sttmock.Engine{Session: speechSession}, whisper.WithMinConfidence(0.99))
	h, err := eng.NewSession(wake.Config{
		SampleRate: 16000,
		Candidates: []string{"hey jarvis"},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	detected, text, _, err := h.AcceptWaveform(make([]int16, 160))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if !detected {
		t.Fatal("expected detected=true for finalized decode cycle")
	}
	if text != "" {
		t.Errorf("text = %q; want empty given a strict min-confidence floor", text)
	}
}

func TestAcceptWaveform_SpeechSessionErrorPropagates(t *testing.T) {
	wantErr := errors.New("decode failure")
	speechSession := &sttmock.Session{
		Results: []sttmock.Result{{Err: wantErr}},
	}
	eng := whisper.New(&sttmock.Engine{Session: speechSession})
	h, err := eng.NewSession(wake.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	_, _, _, err = h.AcceptWaveform(make([]int16, 160))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestReset_DelegatesToSpeechSession(t *testing.T) {
	speechSession := &sttmock.Session{}
	eng := whisper.New(&sttmock.Engine{Session: speechSession})
	h, _ := eng.NewSession(wake.Config{SampleRate: 16000})

	h.Reset()
	if speechSession.ResetCallCount != 1 {
		t.Errorf("ResetCallCount = %d; want 1", speechSession.ResetCallCount)
	}
}

func TestClose_DelegatesToSpeechSession(t *testing.T) {
	speechSession := &sttmock.Session{}
	eng := whisper.New(&sttmock.Engine{Session: speechSession})
	h, _ := eng.NewSession(wake.Config{SampleRate: 16000})

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if speechSession.CloseCallCount != 1 {
		t.Errorf("CloseCallCount = %d; want 1", speechSession.CloseCallCount)
	}
}
