package stt

import (
	"context"
	"testing"
)

func TestParseDeepgram_Transcript(t *testing.T) {
	msg := []byte(`{
		"type": "Results",
		"start": 1.5,
		"duration": 0.9,
		"is_final": true,
		"speech_final": false,
		"channel": {
			"alternatives": [{
				"transcript": "hello world",
				"confidence": 0.98,
				"words": [
					{"speaker": 1, "start": 1.5, "end": 1.9},
					{"speaker": 1, "start": 1.9, "end": 2.2},
					{"speaker": 0, "start": 2.2, "end": 2.4}
				]
			}]
		}
	}`)

	events := parseDeepgram(msg)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	seg := events[0].Segment
	if seg == nil {
		t.Fatal("Segment is nil")
	}
	if seg.SpeakerID != "SPEAKER_1" {
		t.Errorf("SpeakerID = %q, want SPEAKER_1 (majority)", seg.SpeakerID)
	}
	if seg.Text != "hello world" {
		t.Errorf("Text = %q, want %q", seg.Text, "hello world")
	}
	if seg.StartMs != 1500 {
		t.Errorf("StartMs = %d, want 1500", seg.StartMs)
	}
	if seg.EndMs != 2400 {
		t.Errorf("EndMs = %d, want 2400", seg.EndMs)
	}
	if !seg.IsFinal || seg.SpeechFinal {
		t.Errorf("IsFinal = %v SpeechFinal = %v, want true false", seg.IsFinal, seg.SpeechFinal)
	}
	if seg.Confidence != 0.98 {
		t.Errorf("Confidence = %v, want 0.98", seg.Confidence)
	}
}

func TestParseDeepgram_NoSpeakerTags(t *testing.T) {
	msg := []byte(`{
		"type": "Results",
		"channel": {"alternatives": [{"transcript": "hi", "confidence": 0.5}]}
	}`)
	events := parseDeepgram(msg)
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if got := events[0].Segment.SpeakerID; got != "SPEAKER_0" {
		t.Errorf("SpeakerID = %q, want SPEAKER_0 fallback", got)
	}
}

func TestParseDeepgram_Ignored(t *testing.T) {
	cases := []struct {
		name string
		msg  string
	}{
		{"metadata message", `{"type": "Metadata"}`},
		{"empty transcript", `{"type": "Results", "channel": {"alternatives": [{"transcript": "  "}]}}`},
		{"no alternatives", `{"type": "Results", "channel": {"alternatives": []}}`},
		{"invalid json", `{nope`},
	}
	for _, c := range cases {
		if events := parseDeepgram([]byte(c.msg)); events != nil {
			t.Errorf("%s: parseDeepgram returned %d events, want nil", c.name, len(events))
		}
	}
}

func TestParseAssemblyAI_Begin(t *testing.T) {
	p := assemblyAIProvider{}
	events := p.parse([]byte(`{"type": "Begin", "id": "abc"}`))
	if len(events) != 1 || events[0].Type != EventConnected {
		t.Fatalf("Begin should yield a connected event, got %+v", events)
	}
	if !p.deferConnected() {
		t.Error("assemblyai must defer the connected event until Begin")
	}
}

func TestParseAssemblyAI_Turn(t *testing.T) {
	p := assemblyAIProvider{}
	events := p.parse([]byte(`{
		"type": "Turn",
		"transcript": "good morning",
		"end_of_turn": true,
		"end_of_turn_confidence": 0.91,
		"words": [{"start": 100, "end": 400}, {"start": 450, "end": 800}]
	}`))
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	seg := events[0].Segment
	if seg.Text != "good morning" {
		t.Errorf("Text = %q, want %q", seg.Text, "good morning")
	}
	if seg.StartMs != 100 || seg.EndMs != 800 {
		t.Errorf("span = [%d, %d], want [100, 800]", seg.StartMs, seg.EndMs)
	}
	if !seg.IsFinal || !seg.SpeechFinal {
		t.Error("completed turn must be final and speech-final")
	}
	if seg.Confidence != 0.91 {
		t.Errorf("Confidence = %v, want 0.91", seg.Confidence)
	}
}

func TestParseAssemblyAI_PartialNeverFinal(t *testing.T) {
	p := assemblyAIProvider{}
	events := p.parse([]byte(`{"type": "PartialTranscript", "transcript": "good mor"}`))
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Segment.IsFinal || events[0].Segment.SpeechFinal {
		t.Error("partial transcript must not be final")
	}
}

func TestParseAssemblyAI_TurnDefaultsFinal(t *testing.T) {
	// Older v3 schemas omit end_of_turn; Turn defaults to final.
	p := assemblyAIProvider{}
	events := p.parse([]byte(`{"type": "Turn", "transcript": "done"}`))
	if len(events) != 1 || !events[0].Segment.IsFinal {
		t.Error("Turn without end_of_turn should default to final")
	}
}

func TestParseAssemblyAI_ServerError(t *testing.T) {
	p := assemblyAIProvider{}
	events := p.parse([]byte(`{"error": "invalid token"}`))
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected error event, got %+v", events)
	}
	if events[0].Error != "invalid token" {
		t.Errorf("Error = %q, want %q", events[0].Error, "invalid token")
	}
}

func TestParseGladia_FinalOnly(t *testing.T) {
	p := gladiaProvider{}

	events := p.parse([]byte(`{
		"event": "transcript",
		"type": "final",
		"transcription": "bonjour",
		"confidence": 0.8,
		"time_begin": 0.5,
		"time_end": 1.25,
		"speaker": "speaker_2"
	}`))
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	seg := events[0].Segment
	if seg.Text != "bonjour" || seg.SpeakerID != "speaker_2" {
		t.Errorf("got %q from %q", seg.Text, seg.SpeakerID)
	}
	if seg.StartMs != 500 || seg.EndMs != 1250 {
		t.Errorf("span = [%d, %d], want [500, 1250]", seg.StartMs, seg.EndMs)
	}
	if !seg.IsFinal || !seg.SpeechFinal {
		t.Error("gladia segments must be final and speech-final")
	}

	if events := p.parse([]byte(`{"event": "transcript", "type": "partial", "transcription": "bon"}`)); events != nil {
		t.Error("partial gladia messages should be ignored")
	}
}

func TestParseAzure_DetailedFormat(t *testing.T) {
	p := azureProvider{}
	events := p.parse([]byte(`{
		"RecognitionStatus": "Success",
		"DisplayText": "Hello there.",
		"Offset": 5000000,
		"Duration": 12000000,
		"NBest": [{"Confidence": 0.87, "Display": "Hello there."}]
	}`))
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	seg := events[0].Segment
	if seg.Text != "Hello there." {
		t.Errorf("Text = %q", seg.Text)
	}
	// 100ns ticks: 5000000 ticks = 500ms, 12000000 ticks = 1200ms.
	if seg.StartMs != 500 || seg.EndMs != 1700 {
		t.Errorf("span = [%d, %d], want [500, 1700]", seg.StartMs, seg.EndMs)
	}
	if seg.Confidence != 0.87 {
		t.Errorf("Confidence = %v, want 0.87", seg.Confidence)
	}
}

func TestDial_UnknownProviders(t *testing.T) {
	ctx := context.Background()
	if _, err := Dial(ctx, Config{Provider: "aws-transcribe"}); err == nil {
		t.Error("aws-transcribe should return not-implemented error")
	}
	if _, err := Dial(ctx, Config{Provider: "nope"}); err == nil {
		t.Error("unknown provider should fail")
	}
	if _, err := Dial(ctx, Config{Provider: "custom"}); err == nil {
		t.Error("custom provider without base URL should fail")
	}
}
