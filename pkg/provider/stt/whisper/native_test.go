package whisper_test

import (
	"os"
	"testing"

	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	"github.com/agalue/jarvis-voice/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped, since these tests link against the whisper.cpp CGO
// bindings and require a real GGML model file on disk.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("")
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNewNative_WithOptions_DoesNotError(t *testing.T) {
	modelPath := testModelPath(t)
	eng, err := whisper.NewNative(modelPath,
		whisper.WithNativeLanguage("en"),
		whisper.WithNativeSampleRate(16000),
		whisper.WithNativeSilenceThresholdMs(300),
		whisper.WithNativeMaxBufferDurationMs(5000),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer eng.Close()
	if eng == nil {
		t.Fatal("expected non-nil NativeEngine")
	}
}

func TestNativeNewSession_ReturnsNonNilHandle(t *testing.T) {
	modelPath := testModelPath(t)
	eng, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer eng.Close()

	h, err := eng.NewSession(stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer h.Close()

	if h == nil {
		t.Fatal("NewSession returned nil handle")
	}
}

func TestNativeAcceptWaveform_SilenceAloneDoesNotFinalize(t *testing.T) {
	modelPath := testModelPath(t)
	eng, err := whisper.NewNative(modelPath,
		whisper.WithNativeSilenceThresholdMs(50),
		whisper.WithNativeSampleRate(16000),
	)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer eng.Close()

	h, err := eng.NewSession(stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer h.Close()

	_, finalized, err := h.AcceptWaveform(silenceFrame(16000))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if finalized {
		t.Error("expected finalized=false for silence-only audio")
	}
}

func TestNativeAcceptWaveform_SpeechFollowedBySilenceFinalizes(t *testing.T) {
	modelPath := testModelPath(t)
	eng, err := whisper.NewNative(modelPath,
		whisper.WithNativeLanguage("en"),
		whisper.WithNativeSilenceThresholdMs(100),
		whisper.WithNativeSampleRate(16000),
	)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer eng.Close()

	h, err := eng.NewSession(stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer h.Close()

	if _, finalized, err := h.AcceptWaveform(speechFrame(1600)); err != nil || finalized {
		t.Fatalf("speech frame: finalized=%v err=%v; want false, nil", finalized, err)
	}

	// The content depends on the model, so we only verify that finalization
	// occurs after trailing silence.
	text, finalized, err := h.AcceptWaveform(silenceFrame(1600))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if !finalized {
		t.Fatal("expected finalized=true after trailing silence")
	}
	t.Logf("transcribed text: %q", text)
}

func TestNativeClose_Idempotent(t *testing.T) {
	modelPath := testModelPath(t)
	eng, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer eng.Close()

	h, err := eng.NewSession(stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}

func TestNativeReset_DiscardsBufferedAudio(t *testing.T) {
	modelPath := testModelPath(t)
	eng, err := whisper.NewNative(modelPath,
		whisper.WithNativeSilenceThresholdMs(50),
		whisper.WithNativeSampleRate(16000),
	)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer eng.Close()

	h, err := eng.NewSession(stt.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer h.Close()

	if _, _, err := h.AcceptWaveform(speechFrame(1600)); err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	h.Reset()

	_, finalized, err := h.AcceptWaveform(silenceFrame(1600))
	if err != nil {
		t.Fatalf("AcceptWaveform: %v", err)
	}
	if finalized {
		t.Error("expected finalized=false after Reset discarded buffered speech")
	}
}
