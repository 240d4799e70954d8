package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestSamplesToFloat32_Empty(t *testing.T) {
	out := samplesToFloat32(nil)
	if len(out) != 0 {
		t.Fatalf("expected 0 samples, got %d", len(out))
	}
}

func TestSamplesToFloat32_FullScale(t *testing.T) {
	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 32767.0 / 32768.0},
		{"max negative", -32768, -1.0},
		{"zero", 0, 0.0},
		{"mid positive", 16384, 16384.0 / 32768.0},
		{"mid negative", -16384, -16384.0 / 32768.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := samplesToFloat32([]int16{tt.value})
			if math.Abs(float64(out[0]-tt.want)) > 1e-6 {
				t.Errorf("samplesToFloat32(%d) = %f; want %f", tt.value, out[0], tt.want)
			}
		})
	}
}

func TestSamplesToFloat32_MultipleSamples(t *testing.T) {
	values := []int16{0, 100, -100, 32767, -32768}
	out := samplesToFloat32(values)
	if len(out) != len(values) {
		t.Fatalf("expected %d samples, got %d", len(values), len(out))
	}
	for i, v := range values {
		want := float32(v) / 32768.0
		if math.Abs(float64(out[i]-want)) > 1e-6 {
			t.Errorf("sample[%d] = %f; want %f", i, out[i], want)
		}
	}
}

func TestComputeRMS_Empty(t *testing.T) {
	if rms := computeRMS(nil); rms != 0 {
		t.Errorf("computeRMS(nil) = %f; want 0", rms)
	}
}

func TestComputeRMS_Silence(t *testing.T) {
	samples := make([]int16, 100)
	if rms := computeRMS(samples); rms != 0 {
		t.Errorf("computeRMS(zeros) = %f; want 0", rms)
	}
}

func TestComputeRMS_ConstantAmplitude(t *testing.T) {
	samples := make([]int16, 10)
	for i := range samples {
		samples[i] = 1000
	}
	if rms := computeRMS(samples); math.Abs(rms-1000) > 1e-6 {
		t.Errorf("computeRMS(constant 1000) = %f; want 1000", rms)
	}
}

func TestComputeRMS_MixedSign(t *testing.T) {
	samples := []int16{1000, -1000, 1000, -1000}
	if rms := computeRMS(samples); math.Abs(rms-1000) > 1e-6 {
		t.Errorf("computeRMS(alternating) = %f; want 1000", rms)
	}
}

func TestDurationMs(t *testing.T) {
	tests := []struct {
		n          int
		sampleRate int
		want       int
	}{
		{16000, 16000, 1000},
		{8000, 16000, 500},
		{0, 16000, 0},
		{16000, 0, 0},
	}
	for _, tt := range tests {
		if got := durationMs(tt.n, tt.sampleRate); got != tt.want {
			t.Errorf("durationMs(%d, %d) = %d; want %d", tt.n, tt.sampleRate, got, tt.want)
		}
	}
}

func TestEncodeWAV_HeaderFields(t *testing.T) {
	samples := []int16{1, 2, 3, 4}
	wav := encodeWAV(samples, 16000)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("wav length = %d; want %d", len(wav), 44+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" {
		t.Errorf("missing RIFF tag")
	}
	if string(wav[8:12]) != "WAVE" {
		t.Errorf("missing WAVE tag")
	}
	if string(wav[12:16]) != "fmt " {
		t.Errorf("missing fmt tag")
	}
	if string(wav[36:40]) != "data" {
		t.Errorf("missing data tag")
	}

	numChannels := binary.LittleEndian.Uint16(wav[22:24])
	if numChannels != 1 {
		t.Errorf("numChannels = %d; want 1", numChannels)
	}
	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	if sampleRate != 16000 {
		t.Errorf("sampleRate = %d; want 16000", sampleRate)
	}
	bits := binary.LittleEndian.Uint16(wav[34:36])
	if bits != 16 {
		t.Errorf("bitsPerSample = %d; want 16", bits)
	}
	dataSize := binary.LittleEndian.Uint32(wav[40:44])
	if dataSize != uint32(len(samples)*2) {
		t.Errorf("dataSize = %d; want %d", dataSize, len(samples)*2)
	}
}

func TestEncodeWAV_SampleData(t *testing.T) {
	samples := []int16{100, -100, 32767, -32768}
	wav := encodeWAV(samples, 16000)
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(wav[44+i*2 : 46+i*2]))
		if got != want {
			t.Errorf("sample[%d] = %d; want %d", i, got, want)
		}
	}
}
