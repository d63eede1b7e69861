package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestService(emb *stubEmbedder) (*Service, *time.Time) {
	svc := NewService(emb, zap.NewNop())
	now := time.Now()
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestStoreEpisodicValidation(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)
	ctx := context.Background()

	var contentErr *ContentError
	if _, err := svc.StoreEpisodic(ctx, EpisodeInput{Description: "d"}); !errors.As(err, &contentErr) {
		t.Errorf("missing title: error = %v, want *ContentError", err)
	}
	if _, err := svc.StoreEpisodic(ctx, EpisodeInput{Title: "t"}); !errors.As(err, &contentErr) {
		t.Errorf("missing description: error = %v, want *ContentError", err)
	}
	if emb.calls != 0 {
		t.Errorf("validation failure must not call the embedder, got %d calls", emb.calls)
	}
	if svc.Statistics().TotalItems != 0 {
		t.Error("validation failure must not mutate the store")
	}
}

func TestStoreEpisodicEmbeddingFailure(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("timeout")}
	svc, _ := newTestService(emb)

	_, err := svc.StoreEpisodic(context.Background(), EpisodeInput{Title: "t", Description: "d"})
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("error = %v, want *EmbeddingError", err)
	}
	if svc.Statistics().TotalItems != 0 {
		t.Error("embedding failure must not mutate the store")
	}
}

func TestStoreEpisodicMintsCompanionPair(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)

	id, err := svc.StoreEpisodic(context.Background(), EpisodeInput{
		Title:        "first experiment",
		Description:  "trained a small model",
		Significance: 0.8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ep := svc.store.Episode(id)
	if ep == nil {
		t.Fatal("episode not inserted")
	}
	item := svc.store.Item(ep.MemoryID)
	if item == nil {
		t.Fatal("companion item not inserted")
	}
	if item.CompanionID != ep.EpisodeID {
		t.Errorf("companion id = %q, want %q", item.CompanionID, ep.EpisodeID)
	}
	if item.Kind != KindEpisodic || item.Importance != ImportanceMedium {
		t.Errorf("item kind/importance = %v/%v, want episodic/medium", item.Kind, item.Importance)
	}
	if item.Content != "first experiment: trained a small model" {
		t.Errorf("item content = %q", item.Content)
	}
	if item.DecayFactor != 1.0 {
		t.Errorf("new item decay = %v, want 1.0", item.DecayFactor)
	}
}

func TestStoreSemanticAndStrategy(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)
	ctx := context.Background()

	conceptID, err := svc.StoreSemantic(ctx, ConceptInput{
		Name:       "backprop",
		Definition: "reverse-mode gradient computation",
		Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("store semantic: %v", err)
	}
	concept := svc.store.Concept(conceptID)
	if concept == nil {
		t.Fatal("concept not inserted")
	}
	if item := svc.store.Item(concept.MemoryID); item == nil || item.Importance != ImportanceHigh {
		t.Error("semantic companion should carry importance high")
	}

	strategyID, err := svc.StoreStrategy(ctx, StrategyInput{
		Name:        "divide and conquer",
		Description: "split the problem and solve parts independently",
	})
	if err != nil {
		t.Fatalf("store strategy: %v", err)
	}
	if svc.store.Strategy(strategyID) == nil {
		t.Fatal("strategy not inserted")
	}

	stats := svc.Statistics()
	if stats.ByKind[KindSemantic] != 1 || stats.ByKind[KindMeta] != 1 {
		t.Errorf("by-kind counts = %v", stats.ByKind)
	}
}

func TestRetrieveThroughService(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, now := newTestService(emb)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		if _, err := svc.StoreEpisodic(ctx, EpisodeInput{Title: title, Description: "d"}); err != nil {
			t.Fatalf("store %s: %v", title, err)
		}
	}

	*now = now.Add(time.Minute)
	results, err := svc.Retrieve(ctx, "anything", RetrieveOptions{Limit: 2})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	stats := svc.Statistics()
	if stats.TotalRetrievals != 1 {
		t.Errorf("total retrievals = %d, want 1", stats.TotalRetrievals)
	}
	if stats.MeanAccessCount <= 0 {
		t.Errorf("mean access count = %v, want > 0", stats.MeanAccessCount)
	}
}

func TestRetrieveEmptyStoreIsNotAnError(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)

	results, err := svc.Retrieve(context.Background(), "anything", RetrieveOptions{})
	if err != nil {
		t.Fatalf("retrieve on empty store: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestConsolidateEndToEnd(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)
	ctx := context.Background()

	e1, _ := svc.StoreEpisodic(ctx, EpisodeInput{Title: "E1", Description: "d1", Significance: 0.8, RelatedConcepts: []string{"CNN", "vision"}})
	e2, _ := svc.StoreEpisodic(ctx, EpisodeInput{Title: "E2", Description: "d2", Significance: 0.75, RelatedConcepts: []string{"CNN", "training"}})
	if _, err := svc.StoreEpisodic(ctx, EpisodeInput{Title: "E3", Description: "d3", Significance: 0.4, RelatedConcepts: []string{"CNN"}}); err != nil {
		t.Fatalf("store E3: %v", err)
	}

	summary, err := svc.Consolidate(ctx)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if summary.ConsolidatedCount != 1 {
		t.Fatalf("consolidated = %d, want 1", summary.ConsolidatedCount)
	}
	if summary.SourceEpisodeCount != 2 {
		t.Errorf("source episodes = %d, want 2 (E3 is below the significance gate)", summary.SourceEpisodeCount)
	}
	if len(summary.NewConcepts) != 1 || summary.NewConcepts[0] != "CNN" {
		t.Errorf("new concepts = %v, want [CNN]", summary.NewConcepts)
	}

	var cnn *SemanticMemory
	for _, c := range svc.store.Concepts() {
		if c.ConceptName == "CNN" {
			cnn = c
		}
	}
	if cnn == nil {
		t.Fatal("consolidated concept not inserted")
	}
	if len(cnn.SourceEpisodes) != 2 {
		t.Fatalf("source episodes = %v, want E1 and E2 only", cnn.SourceEpisodes)
	}
	got := map[string]bool{cnn.SourceEpisodes[0]: true, cnn.SourceEpisodes[1]: true}
	if !got[e1] || !got[e2] {
		t.Errorf("source episodes = %v, want [%s %s]", cnn.SourceEpisodes, e1, e2)
	}

	// Consolidated knowledge is stored with importance high and marked
	// with its provenance.
	item := svc.store.Item(cnn.MemoryID)
	if item == nil {
		t.Fatal("consolidated companion item missing")
	}
	if item.Importance != ImportanceHigh {
		t.Errorf("consolidated importance = %v, want high", item.Importance)
	}
	if src := item.Context["source"]; src.Kind != ValueString || src.Str != "consolidation" {
		t.Errorf("context source = %+v, want consolidation", src)
	}

	// Source episodes are never mutated or deleted by consolidation.
	if svc.store.Episode(e1) == nil || svc.store.Episode(e2) == nil {
		t.Error("consolidation must not delete source episodes")
	}
}

func TestConsolidateNoEligibleEpisodes(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)
	ctx := context.Background()

	// Significant but conceptless, and conceptful but insignificant.
	svc.StoreEpisodic(ctx, EpisodeInput{Title: "a", Description: "d", Significance: 0.9})
	svc.StoreEpisodic(ctx, EpisodeInput{Title: "b", Description: "d", Significance: 0.5, RelatedConcepts: []string{"CNN"}})

	summary, err := svc.Consolidate(ctx)
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if summary.ConsolidatedCount != 0 || summary.SourceEpisodeCount != 0 {
		t.Errorf("summary = %+v, want zero", summary)
	}
}

func TestConsolidateEmbeddingFailureAbortsPass(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)
	ctx := context.Background()

	svc.StoreEpisodic(ctx, EpisodeInput{Title: "E1", Description: "d", Significance: 0.8, RelatedConcepts: []string{"CNN"}})
	svc.StoreEpisodic(ctx, EpisodeInput{Title: "E2", Description: "d", Significance: 0.8, RelatedConcepts: []string{"CNN"}})

	emb.err = errors.New("collaborator down")
	_, err := svc.Consolidate(ctx)
	var consErr *ConsolidationError
	if !errors.As(err, &consErr) {
		t.Fatalf("error = %v, want *ConsolidationError", err)
	}
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Errorf("consolidation error should wrap the embedding failure, got %v", err)
	}
	if len(svc.store.Concepts()) != 0 {
		t.Error("failed pass must not keep partial semantic memories")
	}
}

func TestForgetEvictsAndCascades(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, now := newTestService(emb)
	ctx := context.Background()

	episodeID, _ := svc.StoreEpisodic(ctx, EpisodeInput{Title: "fleeting", Description: "d"})
	conceptID, _ := svc.StoreSemantic(ctx, ConceptInput{Name: "durable", Definition: "d"})

	// After 6 idle hours a medium-importance item decays to ~0.05 while
	// a high-importance one is still at ~0.17.
	*now = now.Add(6 * time.Hour)
	summary := svc.Forget(0.1)

	if summary.ForgottenCount != 1 {
		t.Fatalf("forgotten = %d, want 1", summary.ForgottenCount)
	}
	if summary.RemainingCount != 1 {
		t.Fatalf("remaining = %d, want 1", summary.RemainingCount)
	}
	if svc.store.Episode(episodeID) != nil {
		t.Error("forgetting must cascade into the episodic collection")
	}
	if svc.store.Concept(conceptID) == nil {
		t.Error("surviving concept removed")
	}
}

func TestForgetEmptyStore(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)

	summary := svc.Forget(0)
	if summary.ForgottenCount != 0 || summary.RemainingCount != 0 {
		t.Errorf("summary = %+v, want zeroes", summary)
	}
}

func TestStatisticsDecayHealth(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, now := newTestService(emb)
	ctx := context.Background()

	svc.StoreEpisodic(ctx, EpisodeInput{Title: "fresh", Description: "d"})
	svc.StoreEpisodic(ctx, EpisodeInput{Title: "fading", Description: "d"})

	// Statistics is a pure read: decay factors stay where the last sweep
	// left them.
	stats := svc.Statistics()
	if stats.DecayHealth.Active != 2 {
		t.Errorf("active = %d, want 2", stats.DecayHealth.Active)
	}

	*now = now.Add(2 * time.Hour)
	svc.Forget(0.001) // sweep updates decay but evicts nothing at this threshold

	stats = svc.Statistics()
	if stats.TotalItems != 2 {
		t.Fatalf("total items = %d, want 2", stats.TotalItems)
	}
	if stats.DecayHealth.Active != 0 || stats.DecayHealth.Decaying != 2 {
		t.Errorf("decay health = %+v, want 2 decaying", stats.DecayHealth)
	}
	if stats.ByImportance["medium"] != 2 {
		t.Errorf("by importance = %v", stats.ByImportance)
	}
}

func TestCreateSessionResets(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)

	svc.CreateSession("s1")
	if _, err := svc.Attend("s1", "item-1", 0.9); err != nil {
		t.Fatalf("attend: %v", err)
	}

	w := svc.CreateSession("s1")
	if len(w.ActiveItems) != 0 || w.FocusItem != "" {
		t.Errorf("recreating a session must reset it, got %+v", w)
	}
}

func TestAttendLazilyCreatesSession(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)

	w, err := svc.Attend("ghost", "item-1", 1.0)
	if err != nil {
		t.Fatalf("attend: %v", err)
	}
	if len(w.ActiveItems) != 1 || w.FocusItem != "item-1" {
		t.Errorf("session = %+v, want one focused item", w)
	}

	var contentErr *ContentError
	if _, err := svc.Attend("ghost", "", 1.0); !errors.As(err, &contentErr) {
		t.Errorf("empty item ref: error = %v, want *ContentError", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	emb := &stubEmbedder{vec: []float32{1, 0}}
	svc, _ := newTestService(emb)
	ctx := context.Background()

	svc.StoreEpisodic(ctx, EpisodeInput{Title: "e", Description: "d", Significance: 0.8})
	svc.StoreSemantic(ctx, ConceptInput{Name: "c", Definition: "d"})
	svc.StoreStrategy(ctx, StrategyInput{Name: "s", Description: "d"})
	svc.CreateSession("ephemeral")

	snap := svc.Snapshot()
	if len(snap.Items) != 3 || len(snap.Episodes) != 1 || len(snap.Concepts) != 1 || len(snap.Strategies) != 1 {
		t.Fatalf("snapshot counts = %d/%d/%d/%d", len(snap.Items), len(snap.Episodes), len(snap.Concepts), len(snap.Strategies))
	}

	other, _ := newTestService(emb)
	other.Restore(snap)
	stats := other.Statistics()
	if stats.TotalItems != 3 {
		t.Errorf("restored items = %d, want 3", stats.TotalItems)
	}
	if stats.Sessions != 0 {
		t.Error("sessions must not survive a snapshot round trip")
	}
}
