package profile

import (
	"time"

	"github.com/google/uuid"
)

// VoiceProfile is a durable cross-session speaker identity. Nickname is
// user-assigned and wins over AutoName everywhere; AutoName is the stable
// gendered name a session assigned ("Male 1", "Female 2").
type VoiceProfile struct {
	ID               uuid.UUID `json:"id"`
	Nickname         string    `json:"nickname,omitempty"`
	AutoName         string    `json:"auto_name"`
	Gender           string    `json:"gender"`
	SamplePath       string    `json:"sample_path,omitempty"`
	SampleDurationMs int64     `json:"sample_duration_ms"`
	Color            string    `json:"color"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DisplayName returns the nickname when set, otherwise the auto name.
func (p VoiceProfile) DisplayName() string {
	if p.Nickname != "" {
		return p.Nickname
	}
	return p.AutoName
}

// Proposal is produced once per session per speaker who spoke at least one
// second. DedupEligible is only set for speakers whose gendered name became
// stable during the session; bystander fallback names always create a fresh
// profile because the same fallback can refer to different people across
// sessions.
type Proposal struct {
	SpeakerID        string `json:"speaker_id"`
	AutoName         string `json:"auto_name"`
	Gender           string `json:"gender"`
	SamplePath       string `json:"sample_path,omitempty"`
	SampleDurationMs int64  `json:"sample_duration_ms"`
	DedupEligible    bool   `json:"dedup_eligible"`
}

// MaxSampleDurationMs caps the voice sample length recorded on a proposal.
const MaxSampleDurationMs = 30_000

var colorPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#008080", "#9a6324",
}

// ColorFor assigns a palette color by profile ordinal, wrapping around.
func ColorFor(n int) string {
	if n < 0 {
		n = 0
	}
	return colorPalette[n%len(colorPalette)]
}
