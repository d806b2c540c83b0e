package stt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// gladiaProvider streams to Gladia's realtime endpoint. The session config
// is sent as a JSON frame immediately after the handshake.
type gladiaProvider struct {
	cfg Config
}

func (gladiaProvider) name() string { return "gladia" }

func (gladiaProvider) request(cfg Config) (string, http.Header, error) {
	host := hostOrDefault(cfg.BaseURL, "wss://api.gladia.io")
	url := fmt.Sprintf("%s/audio/text/audio-transcription", host)

	headers := http.Header{}
	headers.Set("X-Gladia-Key", cfg.APIKey)
	return url, headers, nil
}

func (p gladiaProvider) afterConnect(c *wsClient) error {
	behaviour := "manual"
	if p.cfg.Language == "auto" || p.cfg.Language == "multi" {
		behaviour = "automatic multiple languages"
	}

	config := map[string]any{
		"x_gladia_key":       p.cfg.APIKey,
		"frames_format":      "bytes",
		"sample_rate":        16000,
		"bit_depth":          16,
		"channels":           1,
		"encoding":           "WAV/PCM",
		"model_type":         p.cfg.Model,
		"language":           p.cfg.Language,
		"language_behaviour": behaviour,
	}
	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}
	if err := c.writeText(payload); err != nil {
		return fmt.Errorf("gladia config send failed: %w", err)
	}
	return nil
}

func (gladiaProvider) deferConnected() bool { return false }
func (gladiaProvider) closeMessage() []byte { return nil }

type gladiaMessage struct {
	Event         string          `json:"event"`
	Type          string          `json:"type"`
	Transcription string          `json:"transcription"`
	Confidence    float64         `json:"confidence"`
	TimeBegin     float64         `json:"time_begin"`
	TimeEnd       float64         `json:"time_end"`
	Speaker       json.RawMessage `json:"speaker"`
}

// parse handles Gladia transcript messages. Only final utterances are
// emitted, so every transcript event is both final and speech-final.
func (gladiaProvider) parse(msg []byte) []Event {
	var m gladiaMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}
	if m.Event != "transcript" || m.Type != "final" {
		return nil
	}

	text := strings.TrimSpace(m.Transcription)
	if text == "" {
		return nil
	}

	speakerID := "SPEAKER_0"
	var s string
	if len(m.Speaker) > 0 && json.Unmarshal(m.Speaker, &s) == nil && s != "" {
		speakerID = s
	}

	return []Event{{
		Type: EventTranscript,
		Segment: &Segment{
			SpeakerID:   speakerID,
			Text:        text,
			StartMs:     int64(m.TimeBegin * 1000),
			EndMs:       int64(m.TimeEnd * 1000),
			Confidence:  m.Confidence,
			IsFinal:     true,
			SpeechFinal: true,
		},
	}}
}
