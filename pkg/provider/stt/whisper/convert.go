package whisper

import (
	"encoding/binary"
	"math"
)

// bitsPerSample is fixed at 16 for the signed PCM samples the pipeline feeds
// into every backend in this package.
const bitsPerSample = 16

// samplesToFloat32 converts signed 16-bit PCM samples to float32 normalised
// to the range [-1.0, 1.0], the format whisper.cpp's Process expects.
func samplesToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// computeRMS returns the root-mean-square energy of a slice of signed 16-bit
// PCM samples. Returns 0 for an empty slice. The result is expressed in the
// same units as the sample values (0-32767).
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

// durationMs returns the duration, in milliseconds, of n mono samples
// captured at sampleRate Hz.
func durationMs(n, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return n * 1000 / sampleRate
}

// encodeWAV wraps raw signed 16-bit mono PCM samples in a standard RIFF/WAV
// container, suitable for direct inclusion in a multipart form upload.
func encodeWAV(samples []int16, sampleRate int) []byte {
	const channels = 1
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:46+i*2], uint16(s))
	}

	return buf
}
