package stt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// deepgramProvider streams linear16 PCM to Deepgram's realtime API with
// diarization and interim results enabled.
type deepgramProvider struct{}

func (deepgramProvider) name() string { return "deepgram" }

func (deepgramProvider) request(cfg Config) (string, http.Header, error) {
	host := hostOrDefault(cfg.BaseURL, "wss://api.deepgram.com")
	url := fmt.Sprintf(
		"%s/v1/listen?model=%s&language=%s&diarize=true&encoding=linear16&sample_rate=16000&interim_results=true&endpointing=500",
		host, cfg.Model, cfg.Language)

	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)
	return url, headers, nil
}

func (deepgramProvider) afterConnect(*wsClient) error { return nil }
func (deepgramProvider) deferConnected() bool         { return false }
func (deepgramProvider) closeMessage() []byte         { return []byte(`{"type":"CloseStream"}`) }

type dgWord struct {
	Speaker    *int     `json:"speaker"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Confidence *float64 `json:"confidence"`
}

type dgAlternative struct {
	Transcript string   `json:"transcript"`
	Confidence float64  `json:"confidence"`
	Words      []dgWord `json:"words"`
}

type dgResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []dgAlternative `json:"alternatives"`
	} `json:"channel"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
}

func (deepgramProvider) parse(msg []byte) []Event {
	return parseDeepgram(msg)
}

// parseDeepgram converts a Deepgram Results message into a transcript event.
// speech_final marks the VAD endpoint (speaker paused); is_final only means
// the chunk text is stable and more words may follow, so speech_final is the
// utterance-complete signal.
func parseDeepgram(msg []byte) []Event {
	var resp dgResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil
	}
	if resp.Type != "Results" {
		return nil
	}
	if len(resp.Channel.Alternatives) == 0 {
		return nil
	}

	alt := resp.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}

	startMs := int64(resp.Start * 1000)
	endMs := startMs + int64(resp.Duration*1000)

	return []Event{{
		Type: EventTranscript,
		Segment: &Segment{
			SpeakerID:   majoritySpeaker(alt.Words),
			Text:        text,
			StartMs:     startMs,
			EndMs:       endMs,
			Confidence:  alt.Confidence,
			IsFinal:     resp.IsFinal,
			SpeechFinal: resp.SpeechFinal,
		},
	}}
}

// majoritySpeaker picks the most frequent word-level speaker tag, falling
// back to SPEAKER_0 when diarization produced no tags.
func majoritySpeaker(words []dgWord) string {
	counts := make(map[int]int)
	for _, w := range words {
		if w.Speaker != nil {
			counts[*w.Speaker]++
		}
	}

	best, bestCount := -1, 0
	for speaker, count := range counts {
		if count > bestCount || (count == bestCount && best >= 0 && speaker < best) {
			best, bestCount = speaker, count
		}
	}
	if best < 0 {
		return "SPEAKER_0"
	}
	return fmt.Sprintf("SPEAKER_%d", best)
}

// customProvider connects to a self-hosted gateway that speaks the Deepgram
// response format. The base URL is required; the key, if set, is sent as a
// bearer token.
type customProvider struct{}

func (customProvider) name() string { return "custom" }

func (customProvider) request(cfg Config) (string, http.Header, error) {
	if cfg.BaseURL == "" {
		return "", nil, fmt.Errorf("custom provider requires a base URL")
	}
	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return cfg.BaseURL, headers, nil
}

func (customProvider) afterConnect(*wsClient) error { return nil }
func (customProvider) deferConnected() bool         { return false }
func (customProvider) closeMessage() []byte         { return nil }

func (customProvider) parse(msg []byte) []Event {
	return parseDeepgram(msg)
}
