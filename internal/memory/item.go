package memory

import (
	"time"
)

// Kind discriminates which specialized collection owns the companion
// record of a MemoryItem.
type Kind string

const (
	KindEpisodic Kind = "episodic"
	KindSemantic Kind = "semantic"
	KindWorking  Kind = "working"
	KindMeta     Kind = "meta"
)

// Importance is the ordinal priority assigned to a memory at creation.
// It is immutable, slows decay and boosts retrieval ranking.
type Importance int

const (
	ImportanceMinimal  Importance = 1
	ImportanceLow      Importance = 2
	ImportanceMedium   Importance = 3
	ImportanceHigh     Importance = 4
	ImportanceCritical Importance = 5
)

// decayRates maps importance to an hourly decay-rate constant.
// Higher importance means a smaller constant, so the memory decays slower.
var decayRates = map[Importance]float64{
	ImportanceCritical: 0.1,
	ImportanceHigh:     0.3,
	ImportanceMedium:   0.5,
	ImportanceLow:      0.7,
	ImportanceMinimal:  0.8,
}

// DecayRate returns the hourly decay-rate constant for this importance.
func (i Importance) DecayRate() float64 {
	if r, ok := decayRates[i]; ok {
		return r
	}
	return decayRates[ImportanceMedium]
}

// Weight returns the multiplicative retrieval boost for this importance.
func (i Importance) Weight() float64 {
	return float64(i)
}

func (i Importance) String() string {
	switch i {
	case ImportanceCritical:
		return "critical"
	case ImportanceHigh:
		return "high"
	case ImportanceMedium:
		return "medium"
	case ImportanceLow:
		return "low"
	case ImportanceMinimal:
		return "minimal"
	}
	return "unknown"
}

// MemoryItem is the universal record stored for every memory regardless
// of kind. Content, kind, importance and timestamps are immutable after
// creation; access bookkeeping and decay are the only mutable fields.
type MemoryItem struct {
	ID           string           `json:"id"`
	Content      string           `json:"content"`
	Kind         Kind             `json:"kind"`
	Importance   Importance       `json:"importance"`
	Embedding    []float32        `json:"embedding,omitempty"`
	AccessCount  int              `json:"access_count"`
	LastAccessed time.Time        `json:"last_accessed"`
	CreatedAt    time.Time        `json:"created_at"`
	DecayFactor  float64          `json:"decay_factor"`
	DecayedAt    time.Time        `json:"decayed_at"`
	Associations []string         `json:"associations,omitempty"`
	Context      map[string]Value `json:"context,omitempty"`

	// CompanionID points at the specialized record (episode, concept,
	// strategy) minted together with this item, and that record points
	// back via its MemoryID. The pair is established atomically at
	// creation so cascading removal never has to match on content.
	CompanionID string `json:"companion_id,omitempty"`
}

// Touch records a retrieval hit: bumps the access count and moves the
// last-accessed timestamp forward. Access never decreases the count and
// never directly increases the decay factor; it only slows future decay.
func (m *MemoryItem) Touch(now time.Time) {
	m.AccessCount++
	m.LastAccessed = now
}
