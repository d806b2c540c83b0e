package httpapi

import (
	"testing"
	"time"
)

func TestStreamRegistryAddDone(t *testing.T) {
	sr := NewStreamRegistry()

	if !sr.Add() {
		t.Fatal("Add() = false before draining")
	}
	if got := sr.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}

	sr.Done()
	if got := sr.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after Done = %d, want 0", got)
	}
}

func TestStreamRegistryDrainRejectsNew(t *testing.T) {
	sr := NewStreamRegistry()

	if !sr.Add() {
		t.Fatal("Add() = false before draining")
	}

	sr.StartDraining()
	if !sr.IsDraining() {
		t.Error("IsDraining = false after StartDraining")
	}
	if sr.Add() {
		t.Error("Add() = true while draining")
	}

	// Wait returns once the existing stream finishes.
	done := make(chan struct{})
	go func() {
		sr.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned while a stream was still active")
	case <-time.After(20 * time.Millisecond):
	}

	sr.Done()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after last stream closed")
	}
}
