package transport

import "sync/atomic"

// Gate is a single-slot in-flight limiter. TryAcquire succeeds only when the
// slot is free; callers that fail to acquire are expected to drop their
// frame rather than queue it. This trades a small gap in the audio stream
// for bounded latency — the provider's own buffering absorbs brief gaps.
type Gate struct {
	busy atomic.Bool
}

// TryAcquire claims the slot. Returns false if a send is already in flight.
func (g *Gate) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the slot. Must be called exactly once per successful
// TryAcquire.
func (g *Gate) Release() {
	g.busy.Store(false)
}

// InFlight reports whether the slot is currently held.
func (g *Gate) InFlight() bool {
	return g.busy.Load()
}
