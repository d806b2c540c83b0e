package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned when the microphone cannot be opened.
// The message shown to the user should include a remediation hint; use
// DeviceHint for the platform-specific text.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Frame is one fixed-size chunk of captured PCM audio.
type Frame struct {
	Data      []byte // little-endian 16-bit mono PCM
	Timestamp time.Time
}

// CaptureOptions constrain how the input device is opened. Echo cancellation
// and noise suppression are requested when the backend supports them.
type CaptureOptions struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultCaptureOptions returns the pipeline's standard capture constraints.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		SampleRate:       SampleRate,
		Channels:         Channels,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// Capture produces a stream of PCM frames from an input device. Start may be
// called once; the returned channel is closed when capture ends. Close stops
// the device and must be idempotent, including when Start was never called.
type Capture interface {
	Name() string
	Start(ctx context.Context) (<-chan Frame, error)
	Close() error
}
