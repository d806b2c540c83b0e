package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// MicCapture captures microphone audio through miniaudio. The device
// callback runs on miniaudio's real-time audio thread; frames cross into
// the control path only through the output channel, and a full channel
// drops the frame rather than blocking the audio thread.
type MicCapture struct {
	opts   CaptureOptions
	closed atomic.Bool

	mu     sync.Mutex // guards device/context lifecycle
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	cbMu    sync.Mutex // guards callback-side state
	frames  chan Frame
	pending []float32
}

// NewMicCapture prepares a microphone capture with the given constraints.
// The device is not opened until Start.
func NewMicCapture(opts CaptureOptions) *MicCapture {
	if opts.SampleRate == 0 {
		opts = DefaultCaptureOptions()
	}
	return &MicCapture{opts: opts}
}

func (c *MicCapture) Name() string { return "microphone" }

// Start opens the input device and begins delivering ~250 ms PCM frames.
// Returns ErrDeviceUnavailable (wrapped) if the device cannot be opened.
func (c *MicCapture) Start(ctx context.Context) (<-chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, fmt.Errorf("capture already closed")
	}
	if c.device != nil {
		return nil, fmt.Errorf("capture already started")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (%s)", ErrDeviceUnavailable, err, DeviceHint())
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(c.opts.Channels)
	cfg.SampleRate = uint32(c.opts.SampleRate)
	cfg.Alsa.NoMMap = 1

	c.cbMu.Lock()
	c.frames = make(chan Frame, 8)
	c.pending = make([]float32, 0, FrameSamples)
	out := c.frames
	c.cbMu.Unlock()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			c.onAudio(input, frameCount)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: %v (%s)", ErrDeviceUnavailable, err, DeviceHint())
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: %v (%s)", ErrDeviceUnavailable, err, DeviceHint())
	}

	c.ctx = mctx
	c.device = device

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return out, nil
}

// onAudio runs on the audio thread: convert float32 samples to 16-bit PCM
// and emit a frame each time a full FrameSamples window accumulates.
func (c *MicCapture) onAudio(input []byte, frameCount uint32) {
	if c.closed.Load() {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.frames == nil {
		return
	}

	samples := bytesToFloats(input, int(frameCount)*c.opts.Channels)
	c.pending = append(c.pending, samples...)

	for len(c.pending) >= FrameSamples {
		frame := Frame{
			Data:      FloatsToPCMBytes(c.pending[:FrameSamples]),
			Timestamp: time.Now(),
		}
		c.pending = c.pending[FrameSamples:]
		select {
		case c.frames <- frame:
		default:
			// Control path is behind; dropping keeps the audio thread
			// from ever blocking.
		}
	}
}

// Close stops the device and releases the audio context. Safe to call
// multiple times and before Start.
func (c *MicCapture) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
	c.mu.Unlock()

	c.cbMu.Lock()
	if c.frames != nil {
		close(c.frames)
		c.frames = nil
	}
	c.cbMu.Unlock()
	return nil
}

func bytesToFloats(data []byte, n int) []float32 {
	if n*4 > len(data) {
		n = len(data) / 4
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
