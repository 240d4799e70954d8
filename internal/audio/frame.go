// Package audio implements the capture-time audio pipeline: a fixed-duration
// rolling buffer of raw frames (C1) and a per-frame gain/noise-suppression/
// voice-activity preprocessor (C2).
package audio

// Frame is a fixed-width chunk of mono 16 kHz signed 16-bit PCM audio.
type Frame struct {
	// Samples holds exactly the frame's configured width of 16-bit signed
	// PCM samples.
	Samples []int16
}

// ProcessedFrame is the output of the preprocessor: a frame with gain and
// noise suppression applied, along with the voice-activity decision for
// that frame.
type ProcessedFrame struct {
	// Samples are the post-gain, post-noise-suppression samples. May be
	// identical to the input if a stage is disabled or degraded.
	Samples []int16

	// IsVoice reports whether the VAD stage classified this frame as
	// speech.
	IsVoice bool

	// VADConfidence is the VAD stage's probability estimate in [0,1] that
	// this frame contains speech.
	VADConfidence float64
}
