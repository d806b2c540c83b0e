package audio

import (
	"sync"
)

// MaxRecordingBytes caps the per-session recording at 90 seconds of
// 16 kHz 16-bit mono PCM. Frames beyond the cap are discarded so a long
// session cannot grow memory without bound.
const MaxRecordingBytes = 90 * SampleRate * BytesPerSample

// RecordingBuffer accumulates raw PCM for one session. It is appended to
// from the capture path and read from the session control path, so all
// access is mutex-guarded.
type RecordingBuffer struct {
	mu      sync.Mutex
	data    []byte
	maxSize int
	dropped int
}

// NewRecordingBuffer creates a buffer with the default byte cap.
func NewRecordingBuffer() *RecordingBuffer {
	return NewRecordingBufferWithCap(MaxRecordingBytes)
}

// NewRecordingBufferWithCap creates a buffer with an explicit byte cap.
func NewRecordingBufferWithCap(maxSize int) *RecordingBuffer {
	return &RecordingBuffer{
		data:    make([]byte, 0, min(maxSize, SampleRate*BytesPerSample*2)),
		maxSize: maxSize,
	}
}

// Append stores a PCM frame. Returns false if the frame did not fit the cap.
// A frame that would straddle the cap is truncated to fill it exactly.
func (r *RecordingBuffer) Append(frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := r.maxSize - len(r.data)
	if remaining <= 0 {
		r.dropped++
		return false
	}
	if len(frame) > remaining {
		r.data = append(r.data, frame[:remaining]...)
		r.dropped++
		return false
	}
	r.data = append(r.data, frame...)
	return true
}

// Len returns the number of buffered PCM bytes.
func (r *RecordingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// DurationMs returns the buffered audio duration in milliseconds.
func (r *RecordingBuffer) DurationMs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.data)) * 1000 / (SampleRate * BytesPerSample)
}

// Tail returns a copy of the most recent n samples for signal analysis.
// Fewer samples are returned if the buffer holds less.
func (r *RecordingBuffer) Tail(n int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	bytesWanted := n * BytesPerSample
	start := len(r.data) - bytesWanted
	if start < 0 {
		start = 0
	}
	// Keep sample alignment.
	start -= start % BytesPerSample
	return BytesToSamples(r.data[start:])
}

// Bytes returns a copy of the buffered PCM.
func (r *RecordingBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// DroppedFrames reports how many frames hit the cap.
func (r *RecordingBuffer) DroppedFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// EncodeWAV finalizes the buffered PCM as a WAV file image.
func (r *RecordingBuffer) EncodeWAV() ([]byte, error) {
	return EncodeWAV(r.Bytes(), SampleRate)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
