package resilience

import "github.com/agalue/jarvis-voice/pkg/provider/stt"

// STTFallback implements [stt.Engine] with automatic failover across multiple
// speech recognition backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Engine]
}

// Compile-time interface assertion.
var _ stt.Engine = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Engine, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech engine as a fallback.
func (f *STTFallback) AddFallback(name string, engine stt.Engine) {
	f.group.AddFallback(name, engine)
}

// NewSession opens a recognition session against the first healthy backend.
// If the primary fails to open a session, subsequent fallbacks are tried.
func (f *STTFallback) NewSession(cfg stt.Config) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(e stt.Engine) (stt.SessionHandle, error) {
		return e.NewSession(cfg)
	})
}
