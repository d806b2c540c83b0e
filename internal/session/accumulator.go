// Package session reconstructs stable, speaker-attributed transcripts from
// the noisy event stream of a speech provider and owns the lifecycle of
// live transcription sessions.
package session

import (
	"sync"
	"time"
)

// TranscriptSegment is a caller-visible utterance. Segments with
// IsFinal=false are live previews and may be superseded by a later segment
// for the same speaker and start time; only final segments are history.
type TranscriptSegment struct {
	SpeakerID   string  `json:"speakerId"`
	ProfileID   string  `json:"profileId,omitempty"`
	DisplayName string  `json:"displayName"`
	Text        string  `json:"text"`
	StartMs     int64   `json:"startMs"`
	EndMs       int64   `json:"endMs"`
	Confidence  float64 `json:"confidence"`
	IsFinal     bool    `json:"isFinal"`
	SpeechFinal bool    `json:"speechFinal"`
}

// DefaultMergeWindow is how long after a voice-activity endpoint the
// accumulator waits before committing, so that speech resuming right after
// a premature endpoint folds back into the same utterance.
const DefaultMergeWindow = 1000 * time.Millisecond

// pendingCommit is a merged utterance waiting out the merge window.
type pendingCommit struct {
	text       string
	startMs    int64
	endMs      int64
	confidence float64
}

// speakerAccum holds one speaker's not-yet-final text. pendingText and
// pending never coexist: an endpoint converts the former into the latter,
// and new speech converts the latter back.
type speakerAccum struct {
	pendingText    string
	pendingStartMs int64
	pendingEndMs   int64
	pendingConf    float64

	pending  *pendingCommit
	timer    *time.Timer
	timerGen uint64
}

// Accumulator turns interim/stable/final recognition fragments into
// transcript segments, one state machine per speaker. The emit callback
// receives both live previews (IsFinal=false) and committed segments
// (IsFinal=true); it runs under the accumulator lock and must not call
// back in.
type Accumulator struct {
	mu       sync.Mutex
	window   time.Duration
	speakers map[string]*speakerAccum
	order    []string

	emit       func(TranscriptSegment)
	onEndpoint func(speakerID string, spokeMs int64)
}

func NewAccumulator(window time.Duration, emit func(TranscriptSegment)) *Accumulator {
	if window <= 0 {
		window = DefaultMergeWindow
	}
	return &Accumulator{
		window:   window,
		speakers: make(map[string]*speakerAccum),
		emit:     emit,
	}
}

// OnEndpoint registers a callback invoked on every voice-activity endpoint
// with the fragment's speaking duration. Used for speaking-time bookkeeping
// and pitch sampling.
func (a *Accumulator) OnEndpoint(fn func(speakerID string, spokeMs int64)) {
	a.mu.Lock()
	a.onEndpoint = fn
	a.mu.Unlock()
}

// Process feeds one raw fragment through the speaker's state machine.
func (a *Accumulator) Process(speakerID, text string, startMs, endMs int64, confidence float64, isFinal, speechFinal bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp := a.speakers[speakerID]
	if sp == nil {
		sp = &speakerAccum{}
		a.speakers[speakerID] = sp
		a.order = append(a.order, speakerID)
	}

	// Restore on resume: more speech arriving while a commit is pending
	// means the endpoint fired too early. Take the buffered text back and
	// treat it as accumulation again.
	if sp.pending != nil {
		a.cancelTimer(sp)
		sp.pendingText = joinText(sp.pending.text, sp.pendingText)
		sp.pendingStartMs = sp.pending.startMs
		sp.pendingEndMs = sp.pending.endMs
		sp.pending = nil
	}

	switch {
	case !isFinal:
		// Interim preview; accumulation state untouched.
		preview := joinText(sp.pendingText, text)
		start := startMs
		if sp.pendingText != "" {
			start = sp.pendingStartMs
		}
		a.emit(TranscriptSegment{
			SpeakerID:  speakerID,
			Text:       preview,
			StartMs:    start,
			EndMs:      endMs,
			Confidence: confidence,
		})

	case !speechFinal:
		if sp.pendingText == "" {
			sp.pendingStartMs = startMs
		}
		sp.pendingText = joinText(sp.pendingText, text)
		sp.pendingEndMs = endMs
		sp.pendingConf = confidence
		a.emit(TranscriptSegment{
			SpeakerID:  speakerID,
			Text:       sp.pendingText,
			StartMs:    sp.pendingStartMs,
			EndMs:      endMs,
			Confidence: confidence,
		})

	default:
		full := joinText(sp.pendingText, text)
		start := startMs
		if sp.pendingText != "" {
			start = sp.pendingStartMs
		}
		sp.pendingText = ""
		sp.pendingStartMs = 0
		sp.pendingEndMs = 0

		sp.pending = &pendingCommit{
			text:       full,
			startMs:    start,
			endMs:      endMs,
			confidence: confidence,
		}
		sp.timerGen++
		gen := sp.timerGen
		sp.timer = time.AfterFunc(a.window, func() {
			a.expire(speakerID, gen)
		})

		if a.onEndpoint != nil {
			a.onEndpoint(speakerID, endMs-startMs)
		}
		a.emit(TranscriptSegment{
			SpeakerID:  speakerID,
			Text:       full,
			StartMs:    start,
			EndMs:      endMs,
			Confidence: confidence,
		})
	}
}

// expire commits a pending utterance once the merge window elapses. The
// generation check makes cancellation race-free: a timer whose generation
// was bumped before this runs is a no-op.
func (a *Accumulator) expire(speakerID string, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sp := a.speakers[speakerID]
	if sp == nil || sp.pending == nil || sp.timerGen != gen {
		return
	}
	a.commit(speakerID, sp)
}

// Flush commits every outstanding pending utterance immediately. Stable
// accumulation that never saw an endpoint is committed too, so stop never
// loses text.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, speakerID := range a.order {
		sp := a.speakers[speakerID]
		a.cancelTimer(sp)
		if sp.pending != nil {
			a.commit(speakerID, sp)
		}
		if sp.pendingText != "" {
			a.emit(TranscriptSegment{
				SpeakerID:   speakerID,
				Text:        sp.pendingText,
				StartMs:     sp.pendingStartMs,
				EndMs:       sp.pendingEndMs,
				Confidence:  sp.pendingConf,
				IsFinal:     true,
				SpeechFinal: true,
			})
			sp.pendingText = ""
			sp.pendingStartMs = 0
			sp.pendingEndMs = 0
		}
	}
}

// commit emits sp.pending as final and clears it. Caller holds the lock.
func (a *Accumulator) commit(speakerID string, sp *speakerAccum) {
	p := sp.pending
	sp.pending = nil
	sp.timer = nil
	a.emit(TranscriptSegment{
		SpeakerID:   speakerID,
		Text:        p.text,
		StartMs:     p.startMs,
		EndMs:       p.endMs,
		Confidence:  p.confidence,
		IsFinal:     true,
		SpeechFinal: true,
	})
}

// cancelTimer stops any scheduled commit and invalidates its generation so
// an already-fired callback cannot commit. Caller holds the lock.
func (a *Accumulator) cancelTimer(sp *speakerAccum) {
	sp.timerGen++
	if sp.timer != nil {
		sp.timer.Stop()
		sp.timer = nil
	}
}

func joinText(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}
