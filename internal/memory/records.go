package memory

import "time"

// Event is a single free-form entry in an episode's timeline.
type Event struct {
	Timestamp   time.Time        `json:"timestamp"`
	Description string           `json:"description"`
	Data        map[string]Value `json:"data,omitempty"`
}

// EpisodicMemory records a discrete event: what happened, who was there,
// how it felt and what came of it. Significance gates eligibility for
// consolidation and is distinct from the companion item's importance.
type EpisodicMemory struct {
	EpisodeID        string     `json:"episode_id"`
	MemoryID         string     `json:"memory_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Events           []Event    `json:"events,omitempty"`
	Participants     []string   `json:"participants,omitempty"`
	Location         string     `json:"location,omitempty"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	EmotionalValence float64    `json:"emotional_valence"` // [-1, 1]
	Significance     float64    `json:"significance"`      // [0, 1]
	RelatedConcepts  []string   `json:"related_concepts,omitempty"`
	Outcomes         []string   `json:"outcomes,omitempty"`
}

// SemanticMemory records a durable concept, either stored directly or
// synthesized by consolidation from recurring episodic patterns.
type SemanticMemory struct {
	ConceptID      string              `json:"concept_id"`
	MemoryID       string              `json:"memory_id"`
	ConceptName    string              `json:"concept_name"`
	Definition     string              `json:"definition"`
	Properties     map[string]Value    `json:"properties,omitempty"`
	Relationships  map[string][]string `json:"relationships,omitempty"`
	Examples       []string            `json:"examples,omitempty"`
	Confidence     float64             `json:"confidence"` // [0, 1]
	SourceEpisodes []string            `json:"source_episodes,omitempty"`
	LastUpdated    time.Time           `json:"last_updated"`
}

// MetaMemory records a problem-solving strategy. Nothing in this core
// mutates or consumes it automatically; it is stored and retrieved like
// any other memory and exists for future strategy-selection logic.
type MetaMemory struct {
	StrategyID         string           `json:"strategy_id"`
	MemoryID           string           `json:"memory_id"`
	StrategyName       string           `json:"strategy_name"`
	Description        string           `json:"description"`
	Effectiveness      float64          `json:"effectiveness"` // [0, 1]
	UsageCount         int              `json:"usage_count"`
	SuccessRate        float64          `json:"success_rate"` // [0, 1]
	ApplicableContexts []string         `json:"applicable_contexts,omitempty"`
	LearnedPatterns    map[string]Value `json:"learned_patterns,omitempty"`
}
