package audio

import (
	"encoding/binary"
	"math"
)

// Capture format shared by the whole pipeline: mono 16 kHz, 16-bit signed PCM.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2

	// FrameSamples is one capture frame (~250 ms at 16 kHz).
	FrameSamples = 4000
	FrameBytes   = FrameSamples * BytesPerSample
)

// FloatToPCM converts a float32 sample in [-1, 1] to a 16-bit signed sample.
// Out-of-range input is clamped before scaling.
func FloatToPCM(x float32) int16 {
	f := float64(x)
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(math.Round(f * 32767))
}

// FloatsToPCMBytes converts float32 samples to little-endian 16-bit PCM bytes.
func FloatsToPCMBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToPCM(s)))
	}
	return out
}

// BytesToSamples reinterprets little-endian 16-bit PCM bytes as samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes converts 16-bit samples to little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
