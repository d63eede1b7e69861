package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/mnemo/internal/embedding"
	"go.uber.org/zap"
)

const (
	// DefaultForgetThreshold is used by the forgetting pass when the
	// caller does not supply one.
	DefaultForgetThreshold = 0.1

	// DefaultRetrieveLimit is used when a retrieval call asks for no
	// particular k.
	DefaultRetrieveLimit = 5

	// consolidationGate is the minimum episode significance for an
	// episode to feed consolidation.
	consolidationGate = 0.7
)

// Service is the root facade of the memory subsystem. It owns every
// collection, orchestrates forgetting, consolidation and retrieval, and
// maintains running statistics.
//
// A single mutex serializes all operations: none of the scoring or
// eviction algorithms are safe under unsynchronized concurrent mutation,
// and the embedding call is the only point where an operation blocks.
type Service struct {
	mu           sync.Mutex
	store        *Store
	embedder     embedding.Provider
	forgetter    Forgetter
	consolidator *Consolidator
	retriever    *Retriever
	logger       *zap.Logger
	now          func() time.Time

	totalStored       int
	totalRetrievals   int
	totalConsolidated int
	totalForgotten    int
}

// NewService creates the memory service over the given embedding
// provider.
func NewService(embedder embedding.Provider, logger *zap.Logger) *Service {
	return &Service{
		store:        NewStore(),
		embedder:     embedder,
		consolidator: NewConsolidator(logger),
		retriever:    NewRetriever(embedder, logger),
		logger:       logger,
		now:          time.Now,
	}
}

// EpisodeInput carries the caller-supplied fields of a new episode.
type EpisodeInput struct {
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Events           []Event          `json:"events,omitempty"`
	Participants     []string         `json:"participants,omitempty"`
	Location         string           `json:"location,omitempty"`
	EmotionalValence float64          `json:"emotional_valence"`
	Significance     float64          `json:"significance"`
	RelatedConcepts  []string         `json:"related_concepts,omitempty"`
	Outcomes         []string         `json:"outcomes,omitempty"`
	Context          map[string]Value `json:"context,omitempty"`
}

// StoreEpisodic records a new event memory and its companion item with
// importance Medium. It returns the new episode id.
func (s *Service) StoreEpisodic(ctx context.Context, in EpisodeInput) (string, error) {
	if in.Title == "" {
		return "", &ContentError{Field: "title"}
	}
	if in.Description == "" {
		return "", &ContentError{Field: "description"}
	}

	content := fmt.Sprintf("%s: %s", in.Title, in.Description)
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", &EmbeddingError{Text: content, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	episode := &EpisodicMemory{
		EpisodeID:        uuid.New().String(),
		Title:            in.Title,
		Description:      in.Description,
		Events:           in.Events,
		Participants:     in.Participants,
		Location:         in.Location,
		StartTime:        now,
		EmotionalValence: clamp(in.EmotionalValence, -1, 1),
		Significance:     clamp(in.Significance, 0, 1),
		RelatedConcepts:  in.RelatedConcepts,
		Outcomes:         in.Outcomes,
	}
	item := s.mintItem(content, KindEpisodic, ImportanceMedium, vec, in.Context, episode.EpisodeID, now)
	episode.MemoryID = item.ID

	s.store.PutItem(item)
	s.store.PutEpisode(episode)
	s.totalStored++

	s.logger.Debug("episodic memory stored",
		zap.String("episode_id", episode.EpisodeID),
		zap.String("title", in.Title),
		zap.Float64("significance", episode.Significance))
	return episode.EpisodeID, nil
}

// ConceptInput carries the caller-supplied fields of a new concept.
type ConceptInput struct {
	Name          string              `json:"name"`
	Definition    string              `json:"definition"`
	Properties    map[string]Value    `json:"properties,omitempty"`
	Relationships map[string][]string `json:"relationships,omitempty"`
	Examples      []string            `json:"examples,omitempty"`
	Confidence    float64             `json:"confidence"`
	Context       map[string]Value    `json:"context,omitempty"`
}

// StoreSemantic records a new concept memory and its companion item with
// importance High. It returns the new concept id.
func (s *Service) StoreSemantic(ctx context.Context, in ConceptInput) (string, error) {
	if in.Name == "" {
		return "", &ContentError{Field: "name"}
	}
	if in.Definition == "" {
		return "", &ContentError{Field: "definition"}
	}

	content := fmt.Sprintf("%s: %s", in.Name, in.Definition)
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", &EmbeddingError{Text: content, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	concept := &SemanticMemory{
		ConceptID:     uuid.New().String(),
		ConceptName:   in.Name,
		Definition:    in.Definition,
		Properties:    in.Properties,
		Relationships: in.Relationships,
		Examples:      in.Examples,
		Confidence:    clamp(in.Confidence, 0, 1),
		LastUpdated:   now,
	}
	item := s.mintItem(content, KindSemantic, ImportanceHigh, vec, in.Context, concept.ConceptID, now)
	concept.MemoryID = item.ID

	s.store.PutItem(item)
	s.store.PutConcept(concept)
	s.totalStored++

	s.logger.Debug("semantic memory stored",
		zap.String("concept_id", concept.ConceptID),
		zap.String("name", in.Name))
	return concept.ConceptID, nil
}

// StrategyInput carries the caller-supplied fields of a new strategy.
type StrategyInput struct {
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	Effectiveness      float64          `json:"effectiveness"`
	SuccessRate        float64          `json:"success_rate"`
	ApplicableContexts []string         `json:"applicable_contexts,omitempty"`
	LearnedPatterns    map[string]Value `json:"learned_patterns,omitempty"`
	Context            map[string]Value `json:"context,omitempty"`
}

// StoreStrategy records a new meta-strategy memory and its companion
// item with importance High. Nothing in the core consumes strategies
// automatically; they are stored for retrieval and future
// strategy-selection logic.
func (s *Service) StoreStrategy(ctx context.Context, in StrategyInput) (string, error) {
	if in.Name == "" {
		return "", &ContentError{Field: "name"}
	}
	if in.Description == "" {
		return "", &ContentError{Field: "description"}
	}

	content := fmt.Sprintf("%s: %s", in.Name, in.Description)
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", &EmbeddingError{Text: content, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	strategy := &MetaMemory{
		StrategyID:         uuid.New().String(),
		StrategyName:       in.Name,
		Description:        in.Description,
		Effectiveness:      clamp(in.Effectiveness, 0, 1),
		SuccessRate:        clamp(in.SuccessRate, 0, 1),
		ApplicableContexts: in.ApplicableContexts,
		LearnedPatterns:    in.LearnedPatterns,
	}
	item := s.mintItem(content, KindMeta, ImportanceHigh, vec, in.Context, strategy.StrategyID, now)
	strategy.MemoryID = item.ID

	s.store.PutItem(item)
	s.store.PutStrategy(strategy)
	s.totalStored++

	s.logger.Debug("meta memory stored", zap.String("strategy_id", strategy.StrategyID))
	return strategy.StrategyID, nil
}

// Retrieve returns the most relevant memories for the query. An empty
// result is not an error; only an embedding failure is.
func (s *Service) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]ScoredItem, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultRetrieveLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.retriever.Retrieve(ctx, query, s.store.Items(), opts, s.now())
	if err != nil {
		return nil, err
	}
	s.totalRetrievals++
	return results, nil
}

// ConsolidationSummary reports the outcome of a consolidation pass.
type ConsolidationSummary struct {
	ConsolidatedCount  int      `json:"consolidated_count"`
	SourceEpisodeCount int      `json:"source_episode_count"`
	NewConcepts        []string `json:"new_concepts,omitempty"`
}

// Consolidate scans episodic memories whose significance clears the
// eligibility gate and synthesizes semantic memories from concepts that
// recur across them. New concepts are inserted with importance High.
// When no episode qualifies the pass is a no-op with a zero summary.
func (s *Service) Consolidate(ctx context.Context) (ConsolidationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*EpisodicMemory
	for _, ep := range s.store.Episodes() {
		if ep.Significance > consolidationGate && len(ep.RelatedConcepts) > 0 {
			eligible = append(eligible, ep)
		}
	}
	if len(eligible) == 0 {
		return ConsolidationSummary{}, nil
	}

	now := s.now()
	concepts, err := s.consolidator.Consolidate(eligible, now)
	if err != nil {
		return ConsolidationSummary{}, err
	}

	// Embed everything first so a collaborator failure aborts the pass
	// before any insertion.
	vectors := make([][]float32, len(concepts))
	for i, c := range concepts {
		vec, err := s.embedder.Embed(ctx, fmt.Sprintf("%s: %s", c.ConceptName, c.Definition))
		if err != nil {
			return ConsolidationSummary{}, &ConsolidationError{Err: &EmbeddingError{Text: c.ConceptName, Err: err}}
		}
		vectors[i] = vec
	}

	names := make([]string, 0, len(concepts))
	for i, c := range concepts {
		item := s.mintItem(
			fmt.Sprintf("%s: %s", c.ConceptName, c.Definition),
			KindSemantic, ImportanceHigh, vectors[i],
			map[string]Value{"source": String("consolidation")},
			c.ConceptID, now)
		c.MemoryID = item.ID
		s.store.PutItem(item)
		s.store.PutConcept(c)
		names = append(names, c.ConceptName)
	}
	s.totalConsolidated += len(concepts)
	s.totalStored += len(concepts)

	s.logger.Info("consolidation complete",
		zap.Int("source_episodes", len(eligible)),
		zap.Int("consolidated", len(concepts)))
	return ConsolidationSummary{
		ConsolidatedCount:  len(concepts),
		SourceEpisodeCount: len(eligible),
		NewConcepts:        names,
	}, nil
}

// ForgetSummary reports the outcome of a forgetting pass.
type ForgetSummary struct {
	ForgottenCount int `json:"forgotten_count"`
	RemainingCount int `json:"remaining_count"`
}

// Forget applies the decay model to every item and evicts those whose
// decay factor fell strictly below the threshold, cascading into the
// specialized collections. A non-positive threshold selects the default.
// An empty store is a valid no-op.
func (s *Service) Forget(threshold float64) ForgetSummary {
	if threshold <= 0 {
		threshold = DefaultForgetThreshold
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var doomed []string
	for _, item := range s.store.Items() {
		if s.forgetter.ShouldForget(item, now, threshold) {
			doomed = append(doomed, item.ID)
		}
	}
	for _, id := range doomed {
		s.store.Remove(id)
	}
	s.totalForgotten += len(doomed)

	if len(doomed) > 0 {
		s.logger.Info("forgetting sweep",
			zap.Int("forgotten", len(doomed)),
			zap.Int("remaining", s.store.Len()),
			zap.Float64("threshold", threshold))
	}
	return ForgetSummary{ForgottenCount: len(doomed), RemainingCount: s.store.Len()}
}

// DecayHealth is a three-bucket histogram of current decay factors.
type DecayHealth struct {
	Active   int `json:"active"`   // decay > 0.5
	Decaying int `json:"decaying"` // 0.1 < decay <= 0.5
	Critical int `json:"critical"` // decay <= 0.1
}

// Stats is a point-in-time view of the memory population.
type Stats struct {
	TotalItems        int            `json:"total_items"`
	ByKind            map[Kind]int   `json:"by_kind"`
	ByImportance      map[string]int `json:"by_importance"`
	MeanAccessCount   float64        `json:"mean_access_count"`
	DecayHealth       DecayHealth    `json:"decay_health"`
	Sessions          int            `json:"sessions"`
	TotalStored       int            `json:"total_stored"`
	TotalRetrievals   int            `json:"total_retrievals"`
	TotalConsolidated int            `json:"total_consolidated"`
	TotalForgotten    int            `json:"total_forgotten"`
}

// Statistics returns counts by kind and importance, the mean access
// count, the decay-health histogram and the running totals. Pure read:
// it does not advance decay or touch access bookkeeping.
func (s *Service) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalItems:        s.store.Len(),
		ByKind:            make(map[Kind]int),
		ByImportance:      make(map[string]int),
		Sessions:          s.store.SessionCount(),
		TotalStored:       s.totalStored,
		TotalRetrievals:   s.totalRetrievals,
		TotalConsolidated: s.totalConsolidated,
		TotalForgotten:    s.totalForgotten,
	}

	var accessSum int
	for _, item := range s.store.Items() {
		stats.ByKind[item.Kind]++
		stats.ByImportance[item.Importance.String()]++
		accessSum += item.AccessCount
		switch {
		case item.DecayFactor > 0.5:
			stats.DecayHealth.Active++
		case item.DecayFactor > 0.1:
			stats.DecayHealth.Decaying++
		default:
			stats.DecayHealth.Critical++
		}
	}
	if stats.TotalItems > 0 {
		stats.MeanAccessCount = float64(accessSum) / float64(stats.TotalItems)
	}
	return stats
}

// CreateSession creates a working-memory session. An empty id mints a
// fresh one; reusing an existing id resets the session to an empty
// buffer. Returns a snapshot of the session.
func (s *Service) CreateSession(sessionID string) WorkingMemory {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := NewWorkingMemory(sessionID)
	s.store.PutSession(w)
	s.logger.Debug("working memory session created", zap.String("session_id", sessionID))
	return w.clone()
}

// Attend records attention on an item reference within a session,
// lazily creating the session when absent. Returns a snapshot of the
// updated session.
func (s *Service) Attend(sessionID, itemRef string, weight float64) (WorkingMemory, error) {
	if sessionID == "" {
		return WorkingMemory{}, &ContentError{Field: "session_id"}
	}
	if itemRef == "" {
		return WorkingMemory{}, &ContentError{Field: "item_ref"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.store.Session(sessionID)
	if w == nil {
		w = NewWorkingMemory(sessionID)
		s.store.PutSession(w)
	}
	w.Attend(itemRef, weight)
	return w.clone(), nil
}

// Snapshot copies every durable collection for external persistence.
// Working-memory sessions are deliberately excluded: they are
// short-lived by design and die with the process.
func (s *Service) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{TakenAt: s.now()}
	for _, item := range s.store.Items() {
		cp := *item
		snap.Items = append(snap.Items, &cp)
	}
	for _, ep := range s.store.Episodes() {
		cp := *ep
		snap.Episodes = append(snap.Episodes, &cp)
	}
	for _, c := range s.store.Concepts() {
		cp := *c
		snap.Concepts = append(snap.Concepts, &cp)
	}
	for _, m := range s.store.Strategies() {
		cp := *m
		snap.Strategies = append(snap.Strategies, &cp)
	}
	return snap
}

// Restore replaces the durable collections with the snapshot's records.
func (s *Service) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.store = NewStore()
	for _, item := range snap.Items {
		s.store.PutItem(item)
	}
	for _, ep := range snap.Episodes {
		s.store.PutEpisode(ep)
	}
	for _, c := range snap.Concepts {
		s.store.PutConcept(c)
	}
	for _, m := range snap.Strategies {
		s.store.PutStrategy(m)
	}
	s.logger.Info("memory snapshot restored",
		zap.Int("items", len(snap.Items)),
		zap.Int("episodes", len(snap.Episodes)),
		zap.Int("concepts", len(snap.Concepts)))
}

// Snapshot is a point-in-time copy of the durable collections, suitable
// for external persistence collaborators.
type Snapshot struct {
	Items      []*MemoryItem     `json:"items"`
	Episodes   []*EpisodicMemory `json:"episodes"`
	Concepts   []*SemanticMemory `json:"concepts"`
	Strategies []*MetaMemory     `json:"strategies"`
	TakenAt    time.Time         `json:"taken_at"`
}

// mintItem builds the universal record for a new memory. Callers hold
// the service mutex.
func (s *Service) mintItem(content string, kind Kind, importance Importance, vec []float32, context map[string]Value, companionID string, now time.Time) *MemoryItem {
	return &MemoryItem{
		ID:           uuid.New().String(),
		Content:      content,
		Kind:         kind,
		Importance:   importance,
		Embedding:    vec,
		LastAccessed: now,
		CreatedAt:    now,
		DecayFactor:  1.0,
		DecayedAt:    now,
		Context:      context,
		CompanionID:  companionID,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
