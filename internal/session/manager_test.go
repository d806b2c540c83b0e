package session

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/zouwei/moraya-speechd/internal/stt"
	"github.com/zouwei/moraya-speechd/internal/transport"
)

type fakeClient struct {
	events chan stt.Event

	mu     sync.Mutex
	frames [][]byte

	closeOnce sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan stt.Event, 100)}
}

func (f *fakeClient) SendAudio(_ context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeClient) Events() <-chan stt.Event { return f.events }

func (f *fakeClient) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeClient) sentFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeClient) transcript(speakerID, text string, startMs, endMs int64, isFinal, speechFinal bool) {
	f.events <- stt.Event{Type: stt.EventTranscript, Segment: &stt.Segment{
		SpeakerID:   speakerID,
		Text:        text,
		StartMs:     startMs,
		EndMs:       endMs,
		Confidence:  0.9,
		IsFinal:     isFinal,
		SpeechFinal: speechFinal,
	}}
}

func testManager(t *testing.T, fake *fakeClient) *Manager {
	t.Helper()
	return NewManager(ManagerOptions{
		Logger: log.New(io.Discard, "", 0),
		Dial: func(ctx context.Context, cfg stt.Config) (stt.Client, error) {
			return fake, nil
		},
		MergeWindow: 50 * time.Millisecond,
	})
}

func collectEvents(s *Session) (*sync.Mutex, *[]Event) {
	var mu sync.Mutex
	var events []Event
	go func() {
		for ev := range s.Events() {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}
	}()
	return &mu, &events
}

func TestManager_StartStopFlushes(t *testing.T) {
	fake := newFakeClient()
	m := testManager(t, fake)

	s, err := m.Start(context.Background(), StartOptions{
		ConfigID: "cfg-1",
		Config:   stt.Config{Provider: "deepgram"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	evMu, events := collectEvents(s)

	fake.events <- stt.Event{Type: stt.EventConnected}
	fake.transcript("SPEAKER_0", "hello", 0, 400, true, false)
	fake.transcript("SPEAKER_0", "world", 400, 900, true, true)

	// Let the event loop consume before stopping inside the merge window.
	waitFor(t, func() bool {
		evMu.Lock()
		defer evMu.Unlock()
		return len(*events) >= 3
	})

	res, err := m.Stop(s.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res == nil {
		t.Fatal("Stop returned nil result for a live session")
	}
	if len(res.Segments) != 1 {
		t.Fatalf("len(Segments) = %d, want 1 (flush-on-stop)", len(res.Segments))
	}
	if res.Segments[0].Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Segments[0].Text, "hello world")
	}
	if !res.Segments[0].IsFinal {
		t.Error("flushed segment must be final")
	}
	if res.SessionID != s.ID {
		t.Errorf("SessionID = %q, want %q", res.SessionID, s.ID)
	}

	if _, ok := m.Get(s.ID); ok {
		t.Error("session still registered after stop")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	fake := newFakeClient()
	m := testManager(t, fake)

	s, err := m.Start(context.Background(), StartOptions{Config: stt.Config{Provider: "deepgram"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if res, err := m.Stop(s.ID); err != nil || res == nil {
		t.Fatalf("first Stop = (%v, %v), want result", res, err)
	}
	res, err := m.Stop(s.ID)
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if res != nil {
		t.Error("second Stop returned a result, want no-op")
	}
}

func TestManager_ProviderErrorTearsDown(t *testing.T) {
	fake := newFakeClient()
	m := testManager(t, fake)

	s, err := m.Start(context.Background(), StartOptions{Config: stt.Config{Provider: "deepgram"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	evMu, events := collectEvents(s)

	fake.events <- stt.Event{Type: stt.EventError, Error: "invalid api key"}

	waitFor(t, func() bool {
		_, ok := m.Get(s.ID)
		return !ok
	})
	waitFor(t, func() bool {
		evMu.Lock()
		defer evMu.Unlock()
		for _, ev := range *events {
			if ev.Type == "error" && ev.Error == "invalid api key" {
				return true
			}
		}
		return false
	})
}

func TestManager_AudioIngestion(t *testing.T) {
	fake := newFakeClient()
	m := testManager(t, fake)

	s, err := m.Start(context.Background(), StartOptions{Config: stt.Config{Provider: "deepgram"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	frame := make([]byte, 8000)
	for i := range frame {
		frame[i] = byte(i)
	}
	if err := s.PushEncoded(transport.EncodeFrame(frame)); err != nil {
		t.Fatalf("PushEncoded: %v", err)
	}

	waitFor(t, func() bool { return fake.sentFrames() == 1 })
	fake.mu.Lock()
	got := fake.frames[0]
	fake.mu.Unlock()
	if len(got) != len(frame) {
		t.Fatalf("forwarded frame length = %d, want %d", len(got), len(frame))
	}
	for i := range frame {
		if got[i] != frame[i] {
			t.Fatalf("sample bytes altered at offset %d", i)
		}
	}

	if err := s.PushEncoded("not base64!!"); err == nil {
		t.Error("PushEncoded accepted invalid base64")
	}

	if _, err := m.Stop(s.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestManager_Proposals(t *testing.T) {
	fake := newFakeClient()
	m := testManager(t, fake)

	s, err := m.Start(context.Background(), StartOptions{Config: stt.Config{Provider: "deepgram"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, _ = collectEvents(s)

	// Two speakers: one over the one-second threshold, one under.
	fake.transcript("SPEAKER_0", "a long statement", 0, 2500, true, true)
	fake.transcript("SPEAKER_1", "hm", 2500, 2900, true, true)

	waitFor(t, func() bool {
		return s.ident.Get("SPEAKER_1").SpeakingMs == 400
	})

	res, err := m.Stop(s.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(res.Proposals) != 1 {
		t.Fatalf("len(Proposals) = %d, want 1", len(res.Proposals))
	}
	p := res.Proposals[0]
	if p.SpeakerID != "SPEAKER_0" {
		t.Errorf("SpeakerID = %q, want SPEAKER_0", p.SpeakerID)
	}
	if p.SampleDurationMs != 2500 {
		t.Errorf("SampleDurationMs = %d, want 2500", p.SampleDurationMs)
	}
	if p.DedupEligible {
		t.Error("fallback-named speaker must not be dedup eligible")
	}
	if p.AutoName == "" {
		t.Error("proposal has no auto name")
	}
}

func TestManager_TestConnection(t *testing.T) {
	revoked := 0
	newManager := func(fake *fakeClient) *Manager {
		return NewManager(ManagerOptions{
			Logger: log.New(io.Discard, "", 0),
			Dial: func(ctx context.Context, cfg stt.Config) (stt.Client, error) {
				return fake, nil
			},
			Revoke: func(cfg stt.Config) { revoked++ },
		})
	}

	ok := newFakeClient()
	ok.events <- stt.Event{Type: stt.EventConnected}
	if err := newManager(ok).TestConnection(context.Background(), stt.Config{Provider: "deepgram"}); err != nil {
		t.Errorf("TestConnection: %v", err)
	}
	if revoked != 1 {
		t.Errorf("revoked = %d, want 1 (credential revoked after success)", revoked)
	}

	bad := newFakeClient()
	bad.events <- stt.Event{Type: stt.EventError, Error: "bad key"}
	if err := newManager(bad).TestConnection(context.Background(), stt.Config{Provider: "deepgram"}); err == nil {
		t.Error("TestConnection succeeded on provider error")
	}
	if revoked != 2 {
		t.Errorf("revoked = %d, want 2 (credential revoked after failure)", revoked)
	}

	closed := newFakeClient()
	_ = closed.Close()
	if err := newManager(closed).TestConnection(context.Background(), stt.Config{Provider: "deepgram"}); err == nil {
		t.Error("TestConnection succeeded on closed connection")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
