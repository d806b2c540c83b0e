package httpapi

import (
	"sync"
	"sync/atomic"
)

// StreamRegistry tracks live event-stream connections and supports graceful
// draining at shutdown: once draining starts, new streams are rejected while
// connected clients finish naturally.
//
// The mutex makes the draining check and wg.Add atomic in Add(), preventing
// a race where StartDraining+Wait could slip between the check and the add.
type StreamRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{}
}

// Add registers a new event stream. Returns false while draining, meaning
// the connection should be refused.
func (sr *StreamRegistry) Add() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Done marks a stream as closed. Must be called exactly once per successful Add.
func (sr *StreamRegistry) Done() {
	sr.count.Add(-1)
	sr.wg.Done()
}

// StartDraining makes all future Add calls return false.
func (sr *StreamRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *StreamRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of currently connected streams.
func (sr *StreamRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Wait blocks until every active stream has closed.
func (sr *StreamRegistry) Wait() {
	sr.wg.Wait()
}
