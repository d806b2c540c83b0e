package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zouwei/moraya-speechd/internal/audio"
	"github.com/zouwei/moraya-speechd/internal/metrics"
	"github.com/zouwei/moraya-speechd/internal/profile"
	"github.com/zouwei/moraya-speechd/internal/stt"
	"github.com/zouwei/moraya-speechd/internal/transport"
)

const (
	// connectivityTestID is the reserved session id used when probing a
	// provider config. It never enters the session registry.
	connectivityTestID = "speech-connectivity-test"

	connectTestTimeout = 8 * time.Second
)

// DialFunc opens a provider session. Tests inject fakes here.
type DialFunc func(ctx context.Context, cfg stt.Config) (stt.Client, error)

// CaptureFactory opens a local audio input device.
type CaptureFactory func(opts audio.CaptureOptions) (audio.Capture, error)

// ProfileMatcher resolves a provider speaker id to a stored voice profile.
type ProfileMatcher interface {
	MatchSpeaker(ctx context.Context, speakerID string) (*profile.VoiceProfile, error)
}

// Event is a session event delivered to the caller.
type Event struct {
	Type    string             `json:"type"`
	Segment *TranscriptSegment `json:"segment,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// StartOptions describes the session to open.
type StartOptions struct {
	ConfigID   string
	Config     stt.Config
	Microphone bool
	Capture    audio.CaptureOptions
}

// StopResult is the outcome of a stopped session.
type StopResult struct {
	SessionID     string               `json:"sessionId"`
	DurationMs    int64                `json:"durationMs"`
	Segments      []TranscriptSegment  `json:"segments"`
	RecordingPath string               `json:"recordingPath,omitempty"`
	Proposals     []profile.Proposal   `json:"proposals,omitempty"`
}

// ManagerOptions configures a Manager. Zero-value fields get defaults;
// Capture and Profiles may stay nil when the deployment has no local
// microphone or no profile store.
type ManagerOptions struct {
	Logger        *log.Logger
	Metrics       *metrics.Metrics
	Dial          DialFunc
	Capture       CaptureFactory
	Profiles      ProfileMatcher
	RecordingsDir string
	MergeWindow   time.Duration
	// Revoke discards any cached credential for the config. Called after
	// every connectivity test.
	Revoke func(cfg stt.Config)
}

// Manager owns the registry of live sessions. It is the only state shared
// across sessions; each session's internals belong to that session alone.
type Manager struct {
	opts ManagerOptions

	mu       sync.Mutex
	sessions map[string]*Session
	seq      atomic.Uint64
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Dial == nil {
		opts.Dial = stt.Dial
	}
	if opts.MergeWindow <= 0 {
		opts.MergeWindow = DefaultMergeWindow
	}
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Session is one live transcription run.
type Session struct {
	ID        string
	ConfigID  string
	Provider  string
	StartedAt time.Time

	mgr     *Manager
	client  stt.Client
	rec     *audio.RecordingBuffer
	pump    *transport.Pump
	accum   *Accumulator
	ident   *Identifier
	capture audio.Capture

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events   chan Event
	evMu     sync.Mutex
	evClosed bool

	histMu  sync.Mutex
	history []TranscriptSegment

	stopOnce sync.Once
	result   *StopResult
}

// Start opens a provider session and registers it. The returned session's
// Events channel carries connected/transcript/error/disconnected events
// until the session ends.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*Session, error) {
	client, err := m.opts.Dial(ctx, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("session start failed: %w", err)
	}

	id := fmt.Sprintf("speech-%d-%d", time.Now().UnixMilli(), m.seq.Add(1))
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		ConfigID:  opts.ConfigID,
		Provider:  opts.Config.Provider,
		StartedAt: time.Now(),
		mgr:       m,
		client:    client,
		rec:       audio.NewRecordingBuffer(),
		ctx:       sctx,
		cancel:    cancel,
		events:    make(chan Event, 100),
	}
	s.ident = NewIdentifier(m.matchFunc())
	s.accum = NewAccumulator(m.opts.MergeWindow, s.handleSegment)
	s.accum.OnEndpoint(s.handleEndpoint)

	// The pump payload is the page-wise base64 form used at the ingestion
	// boundary; it is decoded back to binary right before the socket write
	// so sample values are never altered.
	s.pump = transport.NewPump(s.rec, func(ctx context.Context, payload string) error {
		frame, err := transport.DecodeFrame(payload)
		if err != nil {
			return err
		}
		return s.client.SendAudio(ctx, frame)
	}, m.opts.Logger)

	// Register before consuming events: anything the provider sent in the
	// meantime is waiting in the client's buffered channel.
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if opts.Microphone {
		if err := m.startCapture(s, opts.Capture); err != nil {
			m.remove(id)
			cancel()
			_ = client.Close()
			return nil, err
		}
	}

	s.wg.Add(1)
	go s.eventLoop()

	if mx := m.opts.Metrics; mx != nil {
		mx.SessionsStarted.Inc()
		mx.SessionsActive.Inc()
	}
	m.opts.Logger.Printf("session: started %s provider=%s config=%s mic=%v",
		id, s.Provider, opts.ConfigID, opts.Microphone)
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionInfo is a registry listing entry.
type SessionInfo struct {
	ID        string    `json:"id"`
	ConfigID  string    `json:"configId"`
	Provider  string    `json:"provider"`
	StartedAt time.Time `json:"startedAt"`
}

// List returns all live sessions.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			ConfigID:  s.ConfigID,
			Provider:  s.Provider,
			StartedAt: s.StartedAt,
		})
	}
	return out
}

// Stop ends a session: capture halts, the provider channel closes, pending
// utterances flush as final segments, and the recording is finalized.
// Stopping an unknown or already-stopped id is a no-op.
func (m *Manager) Stop(id string) (*StopResult, error) {
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s == nil {
		return nil, nil
	}
	return s.stop(), nil
}

// StopAll stops every live session; used at shutdown.
func (m *Manager) StopAll() {
	for _, info := range m.List() {
		_, _ = m.Stop(info.ID)
	}
}

// TestConnection probes a provider config: dial, wait for the connected
// event, then always close the probe session and revoke any cached
// credential, whatever the outcome.
func (m *Manager) TestConnection(ctx context.Context, cfg stt.Config) error {
	m.opts.Logger.Printf("session: connectivity test (%s) provider=%s", connectivityTestID, cfg.Provider)

	client, err := m.opts.Dial(ctx, cfg)
	if err != nil {
		if m.opts.Revoke != nil {
			m.opts.Revoke(cfg)
		}
		return err
	}
	defer func() {
		_ = client.Close()
		if m.opts.Revoke != nil {
			m.opts.Revoke(cfg)
		}
	}()

	timer := time.NewTimer(connectTestTimeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				return fmt.Errorf("provider closed the connection before confirming readiness")
			}
			switch ev.Type {
			case stt.EventConnected:
				return nil
			case stt.EventError:
				return fmt.Errorf("provider error: %s", ev.Error)
			}
		case <-timer.C:
			return fmt.Errorf("timed out after %s waiting for the provider to confirm readiness", connectTestTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) matchFunc() func(speakerID string) *ProfileMatch {
	if m.opts.Profiles == nil {
		return nil
	}
	return func(speakerID string) *ProfileMatch {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		p, err := m.opts.Profiles.MatchSpeaker(ctx, speakerID)
		if err != nil {
			m.opts.Logger.Printf("session: profile match for %s failed: %v", speakerID, err)
			return nil
		}
		if p == nil {
			return nil
		}
		return &ProfileMatch{
			ProfileID: p.ID.String(),
			Nickname:  p.DisplayName(),
			Gender:    p.Gender,
		}
	}
}

func (m *Manager) startCapture(s *Session, opts audio.CaptureOptions) error {
	if m.opts.Capture == nil {
		return fmt.Errorf("no audio capture available on this host")
	}
	dev, err := m.opts.Capture(opts)
	if err != nil {
		return err
	}
	frames, err := dev.Start(s.ctx)
	if err != nil {
		_ = dev.Close()
		return err
	}
	s.capture = dev

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for f := range frames {
			s.pump.Push(s.ctx, f.Data)
		}
	}()
	return nil
}

// remove deregisters a session. Reports whether it was still registered,
// so active-session accounting happens exactly once.
func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		if mx := m.opts.Metrics; mx != nil {
			mx.SessionsActive.Dec()
		}
	}
	return ok
}

// Events returns the session's event stream. The channel closes when the
// session ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// PushPCM feeds one binary PCM frame into the transport.
func (s *Session) PushPCM(frame []byte) {
	s.pump.Push(s.ctx, frame)
}

// PushEncoded feeds one base64-encoded PCM frame, as received from the
// ingestion API.
func (s *Session) PushEncoded(payload string) error {
	frame, err := transport.DecodeFrame(payload)
	if err != nil {
		return fmt.Errorf("invalid audio payload: %w", err)
	}
	s.PushPCM(frame)
	return nil
}

// TransportStats reports frames sent and frames dropped by backpressure.
func (s *Session) TransportStats() (sent, dropped uint64) {
	return s.pump.Stats()
}

func (s *Session) stop() *StopResult {
	s.stopOnce.Do(func() {
		s.result = s.teardown()
	})
	return s.result
}

// teardown runs the stop sequence in strict order: halt capture, close the
// provider channel, flush pending commits, finalize the recording, then
// deregister. Late events cannot resurrect the session because the event
// loop has drained before the flush.
func (s *Session) teardown() *StopResult {
	logger := s.mgr.opts.Logger

	s.closeCapture()
	_ = s.client.Close()
	s.cancel()
	s.wg.Wait()
	s.pump.Wait()

	s.accum.Flush()
	s.closeEvents()

	res := &StopResult{
		SessionID:  s.ID,
		DurationMs: time.Since(s.StartedAt).Milliseconds(),
		Segments:   s.historyCopy(),
	}

	if s.rec.Len() > 0 {
		if mx := s.mgr.opts.Metrics; mx != nil {
			mx.RecordingBytes.Observe(float64(s.rec.Len()))
		}
		res.RecordingPath = s.writeRecording()
	}
	res.Proposals = s.proposals(res.RecordingPath)

	s.mgr.remove(s.ID)
	if mx := s.mgr.opts.Metrics; mx != nil {
		mx.SessionsStopped.Inc()
	}

	sent, dropped := s.pump.Stats()
	if mx := s.mgr.opts.Metrics; mx != nil {
		mx.FramesSent.Add(float64(sent))
		mx.FramesDropped.Add(float64(dropped))
	}
	logger.Printf("session: stopped %s duration=%dms segments=%d frames_sent=%d frames_dropped=%d",
		s.ID, res.DurationMs, len(res.Segments), sent, dropped)
	return res
}

// writeRecording persists the WAV file. Persistence failures are logged and
// swallowed: the transcript result matters more than the side artifact.
func (s *Session) writeRecording() string {
	dir := s.mgr.opts.RecordingsDir
	if dir == "" {
		return ""
	}

	wav, err := s.rec.EncodeWAV()
	if err != nil {
		s.mgr.opts.Logger.Printf("session: %s recording encode failed: %v", s.ID, err)
		return ""
	}

	name := fmt.Sprintf("recording-%s.wav", s.StartedAt.Format("2006-01-02T15-04-05"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		s.mgr.opts.Logger.Printf("session: %s recording write failed: %v", s.ID, err)
		return ""
	}
	return path
}

// proposals builds new-profile proposals for every speaker who spoke at
// least a second and was not already matched to a profile.
func (s *Session) proposals(samplePath string) []profile.Proposal {
	var out []profile.Proposal
	for _, sp := range s.ident.Speakers() {
		if sp.fromProfile || sp.SpeakingMs < proposalMinMs {
			continue
		}
		name := sp.DisplayName
		if name == "" {
			name = s.ident.Name(sp.ID)
		}
		dur := sp.SpeakingMs
		if dur > profile.MaxSampleDurationMs {
			dur = profile.MaxSampleDurationMs
		}
		out = append(out, profile.Proposal{
			SpeakerID:        sp.ID,
			AutoName:         name,
			Gender:           sp.Gender,
			SamplePath:       samplePath,
			SampleDurationMs: dur,
			DedupEligible:    sp.HasGenderedName,
		})
	}
	return out
}

func (s *Session) eventLoop() {
	defer s.wg.Done()

	for ev := range s.client.Events() {
		switch ev.Type {
		case stt.EventConnected:
			s.emitEvent(Event{Type: "connected"})
		case stt.EventTranscript:
			if ev.Segment == nil {
				continue
			}
			if mx := s.mgr.opts.Metrics; mx != nil {
				mx.TranscriptEvents.WithLabelValues(s.Provider).Inc()
			}
			seg := ev.Segment
			s.accum.Process(seg.SpeakerID, seg.Text, seg.StartMs, seg.EndMs,
				seg.Confidence, seg.IsFinal, seg.SpeechFinal)
		case stt.EventError:
			s.fail(ev.Error)
		case stt.EventDisconnected:
			s.emitEvent(Event{Type: "disconnected"})
		}
	}
}

// fail tears the session down after a fatal provider error. Capture halts
// first so the device is released the moment the session stops being
// viable; pending text is discarded, not flushed.
func (s *Session) fail(errText string) {
	s.mgr.opts.Logger.Printf("session: %s provider error: %s", s.ID, errText)
	if mx := s.mgr.opts.Metrics; mx != nil {
		mx.ProviderErrors.WithLabelValues(s.Provider).Inc()
	}

	s.closeCapture()
	_ = s.client.Close()
	s.cancel()
	s.mgr.remove(s.ID)

	s.emitEvent(Event{Type: "error", Error: errText})
	s.closeEvents()
}

// handleSegment decorates an accumulator segment with identity and routes
// it to the caller. Final segments also enter session history.
func (s *Session) handleSegment(seg TranscriptSegment) {
	seg.DisplayName = s.ident.Name(seg.SpeakerID)
	sp := s.ident.Get(seg.SpeakerID)
	seg.ProfileID = sp.ProfileID

	if seg.IsFinal {
		s.histMu.Lock()
		s.history = append(s.history, seg)
		s.histMu.Unlock()
		if mx := s.mgr.opts.Metrics; mx != nil {
			mx.SegmentsCommitted.Inc()
		}
	}
	s.emitEvent(Event{Type: "transcript", Segment: &seg})
}

// handleEndpoint credits speaking time and takes one pitch sample from the
// recording tap.
func (s *Session) handleEndpoint(speakerID string, spokeMs int64) {
	if spokeMs > 0 {
		s.ident.AddSpeakingTime(speakerID, spokeMs)
	}
	samples := s.rec.Tail(audio.PitchWindowSamples)
	if len(samples) == 0 {
		return
	}
	if hz, ok := audio.EstimatePitch(samples, audio.SampleRate); ok {
		s.ident.AddPitchSample(speakerID, hz)
	}
}

func (s *Session) historyCopy() []TranscriptSegment {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	out := make([]TranscriptSegment, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) closeCapture() {
	if s.capture != nil {
		_ = s.capture.Close()
	}
}

// emitEvent delivers without blocking the control path. A full channel
// means the consumer stalled; the event is dropped rather than the session.
func (s *Session) emitEvent(ev Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.evClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.mgr.opts.Logger.Printf("session: %s event dropped (slow consumer)", s.ID)
	}
}

func (s *Session) closeEvents() {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if !s.evClosed {
		s.evClosed = true
		close(s.events)
	}
}
