package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// captureRingSize is the number of pending chunks the capture callback can
// hand off to the consumer goroutine before chunks start being dropped.
const captureRingSize = 128

// maxChunkSamples bounds the per-callback chunk size accepted into the ring
// buffer, preventing an unexpectedly large callback from overflowing a slot.
const maxChunkSamples = 4096

// captureChunk is one pre-allocated slot in the capture ring buffer.
type captureChunk struct {
	samples []int16
	n       int
}

// captureRing is a lock-free single-producer/single-consumer ring buffer of
// PCM chunks. The audio callback (producer) must never block, so pushes and
// pops use only atomics.
type captureRing struct {
	chunks    [captureRingSize]captureChunk
	head      atomic.Uint64
	tail      atomic.Uint64
	dropCount atomic.Uint64
}

func newCaptureRing() *captureRing {
	r := &captureRing{}
	for i := range r.chunks {
		r.chunks[i].samples = make([]int16, maxChunkSamples)
	}
	return r
}

func (r *captureRing) push(samples []int16) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= captureRingSize {
		r.dropCount.Add(1)
		return false
	}
	slot := &r.chunks[head%captureRingSize]
	slot.n = copy(slot.samples, samples)
	r.head.Add(1)
	return true
}

func (r *captureRing) pop() []int16 {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return nil
	}
	slot := &r.chunks[tail%captureRingSize]
	samples := slot.samples[:slot.n]
	r.tail.Add(1)
	return samples
}

// Capturer streams mono 16-bit PCM from the default microphone in
// fixed-width Frame values via malgo, the cgo binding of miniaudio.
// The audio callback only pushes into a lock-free ring buffer; a dedicated
// goroutine drains it and assembles frameWidth-sized Frames, so the
// miniaudio callback thread never blocks on downstream processing.
type Capturer struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	frameWidth int
	onFrame    func(Frame)
	log        *slog.Logger

	running  atomic.Bool
	ring     *captureRing
	partial  []int16
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// CaptureOption configures a Capturer at construction time.
type CaptureOption func(*Capturer)

// WithCaptureLogger overrides the logger used for capture diagnostics
// (dropped-chunk warnings). Defaults to slog.Default().
func WithCaptureLogger(logger *slog.Logger) CaptureOption {
	return func(c *Capturer) {
		if logger != nil {
			c.log = logger
		}
	}
}

// NewCapturer opens the default capture device at sampleRate and prepares to
// emit Frame values of frameWidth samples to onFrame as they become
// available. Capture does not begin until Start is called.
func NewCapturer(sampleRate, frameWidth int, onFrame func(Frame), opts ...CaptureOption) (*Capturer, error) {
	if frameWidth <= 0 {
		return nil, fmt.Errorf("audio: frameWidth must be positive, got %d", frameWidth)
	}
	if onFrame == nil {
		return nil, fmt.Errorf("audio: onFrame callback must not be nil")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initialize capture context: %w", err)
	}

	c := &Capturer{
		ctx:        ctx,
		sampleRate: sampleRate,
		frameWidth: frameWidth,
		onFrame:    onFrame,
		log:        slog.Default(),
		ring:       newCaptureRing(),
		stopChan:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start opens the capture device and begins emitting frames.
func (c *Capturer) Start() error {
	c.stopChan = make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 32

	onRecvFrames := func(_, input []byte, frameCount uint32) {
		if !c.running.Load() {
			return
		}
		samples := bytesToInt16(input)
		if len(samples) > maxChunkSamples {
			samples = samples[:maxChunkSamples]
		}
		if len(samples) > 0 {
			c.ring.push(samples)
		}
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("audio: initialize capture device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	c.wg.Add(1)
	go c.processLoop()

	if err := device.Start(); err != nil {
		return fmt.Errorf("audio: start capture device: %w", err)
	}
	return nil
}

// processLoop drains the ring buffer, reassembles samples into
// frameWidth-sized Frames, and invokes onFrame for each completed frame.
func (c *Capturer) processLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		samples := c.ring.pop()
		if samples == nil {
			select {
			case <-c.stopChan:
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}

		c.partial = append(c.partial, samples...)
		for len(c.partial) >= c.frameWidth {
			frame := make([]int16, c.frameWidth)
			copy(frame, c.partial[:c.frameWidth])
			c.partial = c.partial[c.frameWidth:]
			c.onFrame(Frame{Samples: frame})
		}

		if dropped := c.ring.dropCount.Load(); dropped > 0 && dropped%100 == 0 {
			c.log.Warn("audio capture ring buffer overflowed", "dropped_chunks", dropped)
		}
	}
}

// Stop halts capture and releases the device, but keeps the underlying
// malgo context open so Start can be called again.
func (c *Capturer) Stop() {
	c.running.Store(false)

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}
	c.wg.Wait()

	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
}

// Close stops capture and releases all resources, including the malgo
// context. The Capturer must not be reused after Close.
func (c *Capturer) Close() error {
	c.Stop()
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			c.ctx.Free()
			c.ctx = nil
			return fmt.Errorf("audio: uninit capture context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// bytesToInt16 reinterprets a little-endian byte buffer as signed 16-bit PCM
// samples.
func bytesToInt16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return out
}
