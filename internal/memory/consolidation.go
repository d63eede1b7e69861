package memory

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// minClusterSize is the minimum number of distinct episodes a concept
// must appear in before it is consolidated into semantic memory.
const minClusterSize = 2

// maxExamples caps how many episode descriptions are carried into a
// consolidated concept's examples.
const maxExamples = 3

// Consolidator synthesizes new semantic memories from concepts that
// recur across episodic memories. It only reads the episodes it is
// given; inserting the results (and gating which episodes qualify) is
// the service's job.
type Consolidator struct {
	logger *zap.Logger
}

// NewConsolidator creates a consolidator.
func NewConsolidator(logger *zap.Logger) *Consolidator {
	return &Consolidator{logger: logger}
}

// Consolidate clusters the given episodes by shared related concepts and
// returns one new SemanticMemory per concept that appears in at least
// minClusterSize distinct episodes. Any failure aborts the whole pass
// with a ConsolidationError and no partial output.
func (c *Consolidator) Consolidate(episodes []*EpisodicMemory, now time.Time) ([]*SemanticMemory, error) {
	clusters := make(map[string][]*EpisodicMemory)
	for _, ep := range episodes {
		if ep.EpisodeID == "" {
			return nil, &ConsolidationError{Err: fmt.Errorf("episode %q has no id", ep.Title)}
		}
		seen := make(map[string]bool, len(ep.RelatedConcepts))
		for _, concept := range ep.RelatedConcepts {
			if concept == "" || seen[concept] {
				continue
			}
			seen[concept] = true
			clusters[concept] = append(clusters[concept], ep)
		}
	}

	// Deterministic output order regardless of map iteration.
	concepts := make([]string, 0, len(clusters))
	for concept, cluster := range clusters {
		if len(cluster) >= minClusterSize {
			concepts = append(concepts, concept)
		}
	}
	sort.Strings(concepts)

	out := make([]*SemanticMemory, 0, len(concepts))
	for _, concept := range concepts {
		cluster := clusters[concept]
		out = append(out, c.synthesize(concept, cluster, now))
	}

	c.logger.Debug("consolidation pass",
		zap.Int("episodes", len(episodes)),
		zap.Int("concepts_seen", len(clusters)),
		zap.Int("consolidated", len(out)))
	return out, nil
}

// synthesize builds one semantic memory from a concept cluster.
func (c *Consolidator) synthesize(concept string, cluster []*EpisodicMemory, now time.Time) *SemanticMemory {
	ids := make([]string, len(cluster))
	titles := make([]string, len(cluster))
	var sigSum float64
	for i, ep := range cluster {
		ids[i] = ep.EpisodeID
		titles[i] = ep.Title
		sigSum += ep.Significance
	}

	examples := make([]string, 0, maxExamples)
	for _, ep := range cluster[:min(len(cluster), maxExamples)] {
		examples = append(examples, ep.Description)
	}

	return &SemanticMemory{
		ConceptID:   uuid.New().String(),
		ConceptName: concept,
		Definition:  fmt.Sprintf("Concept %q consolidated from %d related episodes", concept, len(cluster)),
		Properties: map[string]Value{
			"frequency":        Number(float64(len(cluster))),
			"source_titles":    StringList(titles),
			"avg_significance": Number(sigSum / float64(len(cluster))),
		},
		Examples:       examples,
		Confidence:     math.Min(1.0, 0.6+0.1*float64(len(cluster))),
		SourceEpisodes: ids,
		LastUpdated:    now,
	}
}
