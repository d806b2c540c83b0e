package session

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

const (
	GenderUnknown = "unknown"
	GenderMale    = "male"
	GenderFemale  = "female"
)

const (
	// Median pitch below this is classified male, above female.
	genderSplitHz = 165.0

	// Samples needed before gender is classified at all.
	minGenderSamples = 2

	// Rolling pitch history per speaker.
	maxPitchSamples = 64

	// Speaking time required before a gendered name is assigned.
	stableNameMinMs = 5000

	// Speaking time required before a profile proposal is produced.
	proposalMinMs = 1000
)

// ProfileMatch is a cross-session identity resolved for a provider speaker
// id. Matching is by id equality only; acoustic re-identification is not
// implemented.
type ProfileMatch struct {
	ProfileID string
	Nickname  string
	Gender    string
}

// Speaker is the per-session mutable state for one provider speaker id.
type Speaker struct {
	ID              string
	ProfileID       string
	DisplayName     string
	Gender          string
	HasGenderedName bool
	SpeakingMs      int64

	fromProfile  bool
	pitchSamples []float64
}

// Identifier tracks speakers within one session: rolling pitch samples,
// gender classification, and display-name assignment under the stability
// policy. All methods are safe for concurrent use.
type Identifier struct {
	mu       sync.Mutex
	speakers map[string]*Speaker
	order    []string

	maleSeq      int
	femaleSeq    int
	fallbackNext int

	match func(speakerID string) *ProfileMatch
}

// NewIdentifier creates an identifier. match may be nil when no profile
// directory is available.
func NewIdentifier(match func(speakerID string) *ProfileMatch) *Identifier {
	return &Identifier{
		speakers: make(map[string]*Speaker),
		match:    match,
	}
}

// observe returns the speaker state, creating it on first sight. Profile
// matching runs once at creation. Caller holds the lock.
func (id *Identifier) observe(speakerID string) *Speaker {
	sp := id.speakers[speakerID]
	if sp != nil {
		return sp
	}

	sp = &Speaker{ID: speakerID, Gender: GenderUnknown}
	if id.match != nil {
		if m := id.match(speakerID); m != nil {
			sp.ProfileID = m.ProfileID
			sp.fromProfile = true
			if m.Nickname != "" {
				sp.DisplayName = m.Nickname
			}
			if m.Gender != "" {
				sp.Gender = m.Gender
			}
		}
	}
	id.speakers[speakerID] = sp
	id.order = append(id.order, speakerID)
	return sp
}

// AddSpeakingTime credits ms of speech to the speaker.
func (id *Identifier) AddSpeakingTime(speakerID string, ms int64) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.observe(speakerID).SpeakingMs += ms
}

// AddPitchSample appends one F0 estimate and reclassifies gender while the
// speaker's name is still unstable. Once a gendered name is assigned the
// classification is frozen so the name can never flip.
func (id *Identifier) AddPitchSample(speakerID string, hz float64) {
	id.mu.Lock()
	defer id.mu.Unlock()

	sp := id.observe(speakerID)
	sp.pitchSamples = append(sp.pitchSamples, hz)
	if len(sp.pitchSamples) > maxPitchSamples {
		sp.pitchSamples = sp.pitchSamples[len(sp.pitchSamples)-maxPitchSamples:]
	}

	if sp.HasGenderedName || sp.fromProfile {
		return
	}
	if len(sp.pitchSamples) < minGenderSamples {
		return
	}
	if median(sp.pitchSamples) < genderSplitHz {
		sp.Gender = GenderMale
	} else {
		sp.Gender = GenderFemale
	}
}

// Name resolves the speaker's display name, assigning one if needed.
//
// Priority: profile nickname, then an already-stable name, then a new
// gendered ordinal name once the speaker has both a known gender and
// enough speaking time, then a session-local fallback.
func (id *Identifier) Name(speakerID string) string {
	id.mu.Lock()
	defer id.mu.Unlock()

	sp := id.observe(speakerID)

	if sp.fromProfile && sp.DisplayName != "" {
		return sp.DisplayName
	}
	if sp.HasGenderedName {
		return sp.DisplayName
	}

	if sp.SpeakingMs >= stableNameMinMs && sp.Gender != GenderUnknown {
		switch sp.Gender {
		case GenderMale:
			id.maleSeq++
			sp.DisplayName = fmt.Sprintf("Male %d", id.maleSeq)
		case GenderFemale:
			id.femaleSeq++
			sp.DisplayName = fmt.Sprintf("Female %d", id.femaleSeq)
		}
		sp.HasGenderedName = true
		return sp.DisplayName
	}

	if sp.DisplayName == "" {
		// Randomize the first suffix so fallback names from different
		// sessions do not collide on "Speaker 1".
		if id.fallbackNext == 0 {
			id.fallbackNext = 100 + rand.Intn(900)
		}
		sp.DisplayName = fmt.Sprintf("Speaker %d", id.fallbackNext)
		id.fallbackNext++
	}
	return sp.DisplayName
}

// Get returns a snapshot of the speaker's state.
func (id *Identifier) Get(speakerID string) Speaker {
	id.mu.Lock()
	defer id.mu.Unlock()
	sp := id.observe(speakerID)
	out := *sp
	out.pitchSamples = nil
	return out
}

// Speakers returns snapshots of all speakers in first-seen order.
func (id *Identifier) Speakers() []Speaker {
	id.mu.Lock()
	defer id.mu.Unlock()

	out := make([]Speaker, 0, len(id.order))
	for _, speakerID := range id.order {
		sp := *id.speakers[speakerID]
		sp.pitchSamples = nil
		out = append(out, sp)
	}
	return out
}

// PitchSampleCount reports how many pitch estimates a speaker has.
func (id *Identifier) PitchSampleCount(speakerID string) int {
	id.mu.Lock()
	defer id.mu.Unlock()
	if sp := id.speakers[speakerID]; sp != nil {
		return len(sp.pitchSamples)
	}
	return 0
}

func median(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
