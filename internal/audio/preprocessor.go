package audio

import (
	"math"

	"github.com/agalue/jarvis-voice/pkg/provider/vad"
)

const (
	// gainTargetRMS is the RMS level the gain stage tries to normalize
	// frames towards.
	gainTargetRMS = 3000.0

	// gainMin and gainMax clamp the computed per-frame gain factor.
	gainMin = 0.5
	gainMax = 3.0

	// gainSmoothingAlpha is the exponential-moving-average weight applied
	// to the newly computed gain against the previous frame's gain.
	gainSmoothingAlpha = 0.1

	// denoiseFrameSize is the fixed chunk size an external model-based
	// denoiser consumes and emits.
	denoiseFrameSize = 480
)

// Denoiser removes background noise from a fixed-size chunk of PCM samples,
// returning an identically sized chunk. Implementations must be safe for
// single-threaded, frame-by-frame reuse; Preprocessor serializes all calls.
type Denoiser interface {
	// Denoise processes exactly denoiseFrameSize samples and returns
	// denoiseFrameSize samples.
	Denoise(chunk []int16) []int16

	// Reset clears any internal state, restoring post-construction
	// equivalence.
	Reset()
}

// Preprocessor runs the three per-frame stages of the capture pipeline:
// gain normalization, noise suppression, and voice-activity detection. Any
// stage may be disabled or may fail to produce output for a given call; in
// both cases the preprocessor degrades to passing the input through
// unchanged for that stage, so the pipeline never stalls on a preprocessor
// error.
type Preprocessor struct {
	gainEnabled bool
	gain        float64

	// denoiser is nil unless a model-based backend was installed: the
	// identity case is a true pass-through with no residual chunking, so
	// frame length is preserved exactly.
	denoiser   Denoiser
	denoiseBuf []int16 // residual samples carried across calls

	vadSession vad.SessionHandle
}

// Option configures a Preprocessor at construction time.
type Option func(*Preprocessor)

// WithGain enables or disables the gain-normalization stage. Enabled by
// default.
func WithGain(enabled bool) Option {
	return func(p *Preprocessor) { p.gainEnabled = enabled }
}

// WithDenoiser installs a model-based Denoiser for the noise-suppression
// stage. If not provided, the stage is an identity pass-through.
func WithDenoiser(d Denoiser) Option {
	return func(p *Preprocessor) {
		if d != nil {
			p.denoiser = d
		}
	}
}

// WithVAD installs the voice-activity-detection session the final stage
// delegates to. If not provided, Process reports every frame as voice with
// confidence 1.0 (the always-voice degrade rule).
func WithVAD(session vad.SessionHandle) Option {
	return func(p *Preprocessor) {
		if session != nil {
			p.vadSession = session
		}
	}
}

// NewPreprocessor constructs a Preprocessor. Gain is enabled by default;
// noise suppression defaults to identity; VAD defaults to always-voice.
func NewPreprocessor(opts ...Option) *Preprocessor {
	p := &Preprocessor{
		gainEnabled: true,
		gain:        1.0,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the gain, noise-suppression, and VAD stages over frame in
// order and returns the resulting ProcessedFrame.
func (p *Preprocessor) Process(frame Frame) (ProcessedFrame, error) {
	samples := frame.Samples

	if p.gainEnabled {
		samples = p.applyGain(samples)
	}

	samples = p.applyDenoise(samples)

	isVoice, confidence, err := p.applyVAD(samples)
	if err != nil {
		// Degrade: treat as voice, per the always-voice fallback rule.
		isVoice, confidence = true, 1.0
	}

	return ProcessedFrame{
		Samples:       samples,
		IsVoice:       isVoice,
		VADConfidence: confidence,
	}, nil
}

// applyGain computes the frame's RMS, derives a clamped target gain,
// smooths it against the previous frame's gain via an EMA, and scales the
// samples, saturating to the int16 range.
func (p *Preprocessor) applyGain(samples []int16) []int16 {
	rms := computeRMS(samples)
	if rms < 1.0 {
		return samples
	}

	targetGain := gainTargetRMS / rms
	if targetGain < gainMin {
		targetGain = gainMin
	} else if targetGain > gainMax {
		targetGain = gainMax
	}

	p.gain = p.gain*(1-gainSmoothingAlpha) + targetGain*gainSmoothingAlpha

	out := make([]int16, len(samples))
	for i, s := range samples {
		amplified := float64(s) * p.gain
		out[i] = saturateInt16(amplified)
	}
	return out
}

// applyDenoise appends samples to the residual buffer and drains as many
// complete denoiseFrameSize chunks as available, passing each through the
// configured Denoiser. If no full chunk can be produced yet, the input is
// returned unchanged and the samples remain buffered for the next call.
// With no denoiser installed, the stage is an identity pass-through: no
// buffering, the output is exactly the input.
func (p *Preprocessor) applyDenoise(samples []int16) []int16 {
	if p.denoiser == nil {
		return samples
	}

	p.denoiseBuf = append(p.denoiseBuf, samples...)

	var out []int16
	for len(p.denoiseBuf) >= denoiseFrameSize {
		chunk := p.denoiseBuf[:denoiseFrameSize]
		p.denoiseBuf = p.denoiseBuf[denoiseFrameSize:]
		out = append(out, p.denoiser.Denoise(chunk)...)
	}

	if len(out) == 0 {
		return samples
	}
	return out
}

// applyVAD delegates the voice-activity decision to the configured VAD
// session, or reports always-voice if none is configured.
func (p *Preprocessor) applyVAD(samples []int16) (bool, float64, error) {
	if p.vadSession == nil {
		return true, 1.0, nil
	}

	pcm := int16ToBytes(samples)
	event, err := p.vadSession.ProcessFrame(pcm)
	if err != nil {
		return false, 0, err
	}

	switch event.Type {
	case vad.VADSpeechStart, vad.VADSpeechContinue:
		return true, event.Probability, nil
	default:
		return false, event.Probability, nil
	}
}

// Reset restores the preprocessor's internal state (gain, denoiser
// residual buffer, VAD session state) to post-construction equivalence.
func (p *Preprocessor) Reset() {
	p.gain = 1.0
	p.denoiseBuf = p.denoiseBuf[:0]
	if p.denoiser != nil {
		p.denoiser.Reset()
	}
	if p.vadSession != nil {
		p.vadSession.Reset()
	}
}

// computeRMS returns the root-mean-square energy of signed 16-bit samples.
func computeRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// saturateInt16 clamps a float64 sample value to the signed 16-bit range.
func saturateInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// int16ToBytes converts signed 16-bit PCM samples to little-endian bytes,
// the wire format pkg/provider/vad.SessionHandle.ProcessFrame expects.
func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
