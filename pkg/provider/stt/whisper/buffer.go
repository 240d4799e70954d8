package whisper

// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
// units) below which audio is considered silent. The maximum possible value
// for 16-bit audio is 32767; 300 corresponds to near-silence.
const defaultRMSThreshold = 300.0

const (
	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// utteranceBuffer accumulates PCM samples across AcceptWaveform calls and
// decides, frame by frame, whether the utterance is complete. It has no
// notion of transcription; callers flush the buffered samples to an
// inference backend once ready() reports true.
type utteranceBuffer struct {
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int

	samples   []int16
	hadSpeech bool
	silenceMs int
}

func newUtteranceBuffer(sampleRate, silenceThresholdMs, maxBufferDurationMs int) *utteranceBuffer {
	return &utteranceBuffer{
		sampleRate:          sampleRate,
		silenceThresholdMs:  silenceThresholdMs,
		maxBufferDurationMs: maxBufferDurationMs,
	}
}

// accept appends frame to the buffer and returns true when the accumulated
// utterance should be flushed to the recognizer.
func (b *utteranceBuffer) accept(frame []int16) bool {
	rms := computeRMS(frame)
	frameMs := durationMs(len(frame), b.sampleRate)

	if rms < defaultRMSThreshold {
		if !b.hadSpeech {
			// Leading silence before any speech is discarded.
			return false
		}
		b.silenceMs += frameMs
		b.samples = append(b.samples, frame...)
		return b.silenceMs >= b.silenceThresholdMs
	}

	b.hadSpeech = true
	b.silenceMs = 0
	b.samples = append(b.samples, frame...)
	if b.maxBufferDurationMs > 0 && durationMs(len(b.samples), b.sampleRate) >= b.maxBufferDurationMs {
		return true
	}
	return false
}

// drain returns the buffered samples and clears the buffer's state.
func (b *utteranceBuffer) drain() []int16 {
	out := b.samples
	b.samples = nil
	b.hadSpeech = false
	b.silenceMs = 0
	return out
}

// reset discards all buffered audio and detection state.
func (b *utteranceBuffer) reset() {
	b.samples = nil
	b.hadSpeech = false
	b.silenceMs = 0
}
