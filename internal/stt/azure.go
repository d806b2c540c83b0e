package stt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// azureProvider uses Azure Speech's conversation endpoint in detailed
// format. Azure only reports whole recognized phrases, so segments are
// final and speech-final together, like Gladia.
type azureProvider struct{}

func (azureProvider) name() string { return "azure-speech" }

func (azureProvider) request(cfg Config) (string, http.Header, error) {
	region := cfg.Region
	if region == "" {
		region = "eastus"
	}
	host := cfg.BaseURL
	if host == "" {
		host = fmt.Sprintf("wss://%s.stt.speech.microsoft.com", region)
	} else {
		host = hostOrDefault(host, host)
	}
	url := fmt.Sprintf(
		"%s/speech/recognition/conversation/cognitiveservices/v1?language=%s&format=detailed",
		host, cfg.Language)

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", cfg.APIKey)
	return url, headers, nil
}

func (azureProvider) afterConnect(*wsClient) error { return nil }
func (azureProvider) deferConnected() bool         { return false }
func (azureProvider) closeMessage() []byte         { return nil }

type azureMessage struct {
	RecognitionStatus string  `json:"RecognitionStatus"`
	DisplayText       string  `json:"DisplayText"`
	Text              string  `json:"Text"` // hypothesis (interim) messages
	Offset            int64   `json:"Offset"`   // 100 ns ticks
	Duration          int64   `json:"Duration"` // 100 ns ticks
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		Display    string  `json:"Display"`
	} `json:"NBest"`
}

func (azureProvider) parse(msg []byte) []Event {
	var m azureMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil
	}

	startMs := m.Offset / 10_000
	endMs := (m.Offset + m.Duration) / 10_000

	// Interim hypothesis: carries Text but no RecognitionStatus.
	if m.RecognitionStatus == "" {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			return nil
		}
		return []Event{{
			Type: EventTranscript,
			Segment: &Segment{
				SpeakerID:  "SPEAKER_0",
				Text:       text,
				StartMs:    startMs,
				EndMs:      endMs,
				Confidence: 0,
			},
		}}
	}

	if m.RecognitionStatus != "Success" {
		return nil
	}

	text := strings.TrimSpace(m.DisplayText)
	confidence := 0.0
	if len(m.NBest) > 0 {
		confidence = m.NBest[0].Confidence
		if text == "" {
			text = strings.TrimSpace(m.NBest[0].Display)
		}
	}
	if text == "" {
		return nil
	}

	return []Event{{
		Type: EventTranscript,
		Segment: &Segment{
			SpeakerID:   "SPEAKER_0",
			Text:        text,
			StartMs:     startMs,
			EndMs:       endMs,
			Confidence:  confidence,
			IsFinal:     true,
			SpeechFinal: true,
		},
	}}
}
