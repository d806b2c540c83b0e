package stt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// assemblyAIProvider speaks AssemblyAI's Universal Streaming v3 protocol.
// The server confirms readiness with a "Begin" message, so the connected
// event is deferred until then: starting the microphone before the server
// is ready would lose the first words.
type assemblyAIProvider struct{}

func (assemblyAIProvider) name() string { return "assemblyai" }

func (assemblyAIProvider) request(cfg Config) (string, http.Header, error) {
	host := hostOrDefault(cfg.BaseURL, "wss://streaming.assemblyai.com")

	// v3 rejects a speech_model URL parameter and auto-detects language;
	// the model tier comes from the account plan, not the request.
	url := fmt.Sprintf("%s/v3/ws?sample_rate=16000&encoding=pcm_s16le", host)

	headers := http.Header{}
	headers.Set("Authorization", cfg.APIKey)
	return url, headers, nil
}

func (assemblyAIProvider) afterConnect(*wsClient) error { return nil }
func (assemblyAIProvider) deferConnected() bool         { return true }
func (assemblyAIProvider) closeMessage() []byte         { return []byte(`{"type":"Terminate"}`) }

type aaiWord struct {
	Start *float64 `json:"start"` // milliseconds
	End   *float64 `json:"end"`
}

type aaiMessage struct {
	Type                string    `json:"type"`
	Transcript          string    `json:"transcript"`
	Text                string    `json:"text"` // formatted fallback
	EndOfTurn           *bool     `json:"end_of_turn"`
	EndOfTurnConfidence *float64  `json:"end_of_turn_confidence"`
	Words               []aaiWord `json:"words"`

	// Error fields: the server sends these in a text frame before closing.
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (assemblyAIProvider) parse(msg []byte) []Event {
	var m aaiMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}

	// Surface server errors; otherwise they'd vanish into the close frame.
	if strings.EqualFold(m.Type, "error") || m.Error != "" {
		errText := m.Error
		if errText == "" {
			errText = m.Message
		}
		if errText == "" {
			errText = "server error"
		}
		if strings.EqualFold(m.Type, "error") && m.Message != "" && m.Message != errText {
			errText = errText + ": " + m.Message
		}
		return []Event{{Type: EventError, Error: errText}}
	}

	if m.Type == "Begin" {
		return []Event{{Type: EventConnected}}
	}

	isTurn := m.Type == "Turn"
	isPartial := m.Type == "PartialTranscript"
	if !isTurn && !isPartial {
		return nil
	}

	text := strings.TrimSpace(m.Transcript)
	if text == "" {
		text = strings.TrimSpace(m.Text)
	}
	if text == "" {
		// Turn with no text is usually silence.
		return nil
	}

	// end_of_turn defaults true for Turn messages; older v3 schemas omit it.
	isFinal := !isPartial
	if isTurn && m.EndOfTurn != nil {
		isFinal = *m.EndOfTurn
	}

	var startMs, endMs int64
	if len(m.Words) > 0 {
		if m.Words[0].Start != nil {
			startMs = int64(*m.Words[0].Start)
		}
		if last := m.Words[len(m.Words)-1].End; last != nil {
			endMs = int64(*last)
		}
	}

	confidence := 1.0
	if m.EndOfTurnConfidence != nil {
		confidence = *m.EndOfTurnConfidence
	}

	return []Event{{
		Type: EventTranscript,
		Segment: &Segment{
			// v3 basic mode has no speaker diarization.
			SpeakerID:   "SPEAKER_0",
			Text:        text,
			StartMs:     startMs,
			EndMs:       endMs,
			Confidence:  confidence,
			IsFinal:     isFinal,
			SpeechFinal: isFinal, // only whole utterances are emitted
		},
	}}
}
