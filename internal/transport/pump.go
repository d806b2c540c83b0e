package transport

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/zouwei/moraya-speechd/internal/audio"
)

// SendFunc delivers one encoded frame to the remote session.
type SendFunc func(ctx context.Context, payload string) error

// Pump forwards capture frames to a session. Every frame is appended to the
// recording buffer first; forwarding happens only when the gate is free.
// Send errors are transport errors: logged and swallowed, never propagated
// (a single dropped frame is invisible to the transcript).
type Pump struct {
	gate    Gate
	rec     *audio.RecordingBuffer
	send    SendFunc
	logger  *log.Logger
	wg      sync.WaitGroup
	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewPump creates a pump writing into rec and forwarding via send.
func NewPump(rec *audio.RecordingBuffer, send SendFunc, logger *log.Logger) *Pump {
	return &Pump{rec: rec, send: send, logger: logger}
}

// Push handles one PCM frame. Never blocks the caller: the actual send runs
// on its own goroutine while the gate is held.
func (p *Pump) Push(ctx context.Context, frame []byte) {
	if len(frame) == 0 {
		return
	}

	// Recording capture is independent of transport success.
	p.rec.Append(frame)

	if !p.gate.TryAcquire() {
		p.dropped.Add(1)
		return
	}

	payload := EncodeFrame(frame)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.gate.Release()
		if err := p.send(ctx, payload); err != nil {
			if p.logger != nil {
				p.logger.Printf("transport: frame send failed: %v", err)
			}
			return
		}
		p.sent.Add(1)
	}()
}

// Wait blocks until any in-flight send completes.
func (p *Pump) Wait() {
	p.wg.Wait()
}

// Stats returns frames sent and frames dropped by backpressure.
func (p *Pump) Stats() (sent, dropped uint64) {
	return p.sent.Load(), p.dropped.Load()
}
