package resilience

import (
	"errors"
	"testing"

	"github.com/agalue/jarvis-voice/pkg/provider/stt"
	sttmock "github.com/agalue/jarvis-voice/pkg/provider/stt/mock"
)

func TestSTTFallback_NewSession_PrimarySuccess(t *testing.T) {
	sess := &sttmock.Session{}
	primary := &sttmock.Engine{Session: sess}
	secondary := &sttmock.Engine{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.NewSession(stt.Config{
		SampleRate: 16000,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(primary.NewSessionCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.NewSessionCalls))
	}
	if len(secondary.NewSessionCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.NewSessionCalls))
	}
	_ = handle.Close()
}

func TestSTTFallback_NewSession_Failover(t *testing.T) {
	primary := &sttmock.Engine{
		NewSessionErr: errors.New("primary down"),
	}
	secondarySess := &sttmock.Session{}
	secondary := &sttmock.Engine{Session: secondarySess}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.NewSession(stt.Config{
		SampleRate: 16000,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(secondary.NewSessionCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.NewSessionCalls))
	}
	_ = handle.Close()
}

func TestSTTFallback_NewSession_AllFail(t *testing.T) {
	primary := &sttmock.Engine{NewSessionErr: errors.New("primary down")}
	secondary := &sttmock.Engine{NewSessionErr: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.NewSession(stt.Config{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
