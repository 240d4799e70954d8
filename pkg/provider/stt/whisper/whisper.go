// Package whisper provides local whisper.cpp-backed Engine implementations
// of the free-form speech recognizer: HTTPEngine talks to a running
// whisper-server process over HTTP, and NativeEngine links the whisper.cpp
// CGO bindings directly into the process.
//
// HTTPEngine connects to a running whisper-server binary (REST API at POST
// /inference) and segments utterances with an energy-based silence
// detector: each AcceptWaveform call appends to an internal buffer, and once
// enough trailing silence (or a maximum duration) has accumulated, the
// buffered utterance is submitted as a single batch inference request and
// the recognized text is returned as the finalized result.
//
// Usage:
//
//	eng, err := whisper.NewHTTP("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilenceThresholdMs(500),
//	)
//	sess, err := eng.NewSession(stt.Config{SampleRate: 16000, Language: "en"})
//	text, finalized, err := sess.AcceptWaveform(frame)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/agalue/jarvis-voice/pkg/provider/stt"
)

// Compile-time assertion that HTTPEngine implements stt.Engine.
var _ stt.Engine = (*HTTPEngine)(nil)

// Option is a functional option for configuring an HTTPEngine.
type Option func(*HTTPEngine)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(e *HTTPEngine) {
		e.model = model
	}
}

// WithLanguage sets the BCP-47-ish language code sent to the whisper.cpp
// server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *HTTPEngine) {
		e.language = lang
	}
}

// WithSampleRate sets the audio sample rate in Hz used to calculate buffer
// durations and silence windows. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(e *HTTPEngine) {
		e.sampleRate = rate
	}
}

// WithSilenceThresholdMs sets the consecutive-silence duration (in
// milliseconds) that triggers a flush of the accumulated utterance buffer.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(e *HTTPEngine) {
		e.silenceThresholdMs = ms
	}
}

// WithMaxBufferDurationMs sets the maximum duration of audio (in
// milliseconds) that may accumulate before a flush is forced regardless of
// silence. Defaults to 10 000 ms (10 s).
func WithMaxBufferDurationMs(ms int) Option {
	return func(e *HTTPEngine) {
		e.maxBufferDurationMs = ms
	}
}

// HTTPEngine implements stt.Engine backed by a local whisper.cpp HTTP
// server. Multiple sessions may be used concurrently; each session maintains
// its own utterance buffer.
type HTTPEngine struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// NewHTTP creates a new HTTPEngine that connects to the whisper.cpp HTTP
// server at serverURL (e.g., "http://localhost:8080"). serverURL must be
// non-empty. Functional options may be provided to override defaults.
func NewHTTP(serverURL string, opts ...Option) (*HTTPEngine, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	e := &HTTPEngine{
		serverURL:           serverURL,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// NewSession creates a new speech-recognition session. It respects
// cfg.SampleRate and cfg.Language; if those are zero/empty the engine-level
// defaults apply.
func (e *HTTPEngine) NewSession(cfg stt.Config) (stt.SessionHandle, error) {
	lang := cfg.Language
	if lang == "" {
		lang = e.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = e.sampleRate
	}
	return &httpSession{
		engine: e,
		lang:   lang,
		buf:    newUtteranceBuffer(sr, e.silenceThresholdMs, e.maxBufferDurationMs),
	}, nil
}

type httpSession struct {
	engine *HTTPEngine
	lang   string
	buf    *utteranceBuffer
}

// AcceptWaveform buffers frame and, once the utterance buffer decides the
// utterance is complete, submits it to the whisper.cpp server and returns
// the transcribed text.
func (s *httpSession) AcceptWaveform(frame []int16) (string, bool, error) {
	if !s.buf.accept(frame) {
		return "", false, nil
	}
	samples := s.buf.drain()
	if len(samples) == 0 {
		return "", false, nil
	}
	text, err := s.infer(context.Background(), samples)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Reset discards any buffered audio.
func (s *httpSession) Reset() {
	s.buf.reset()
}

// Close is a no-op; the session holds no external resources beyond the
// shared HTTP client owned by the engine.
func (s *httpSession) Close() error { return nil }

// infer encodes samples as a WAV file and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data. It returns the transcribed
// text or an error.
func (s *httpSession) infer(ctx context.Context, samples []int16) (string, error) {
	wav := encodeWAV(samples, s.buf.sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	if s.lang != "" {
		if err := mw.WriteField("language", s.lang); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.engine.model != "" {
		if err := mw.WriteField("model", s.engine.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := s.engine.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.engine.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return result.Text, nil
}

var _ stt.SessionHandle = (*httpSession)(nil)
