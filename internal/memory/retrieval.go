package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/nidhogg/mnemo/internal/embedding"
	"go.uber.org/zap"
)

// ScoredItem pairs a retrieved memory with its relevance score.
type ScoredItem struct {
	Item  *MemoryItem `json:"item"`
	Score float64     `json:"score"`
}

// RetrieveOptions narrows the candidate population before scoring.
type RetrieveOptions struct {
	// Limit is the maximum number of items to return (top-k).
	Limit int
	// Kind, when non-empty, restricts candidates to one memory kind.
	Kind Kind
	// TimeWindow, when positive, restricts candidates to items created
	// within the window before now.
	TimeWindow time.Duration
}

// Retriever ranks memories against a free-text query. The query is
// embedded via the collaborator (the single suspension point); all
// scoring is an in-process pass over the candidate items.
type Retriever struct {
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewRetriever creates a retriever over the given embedding provider.
func NewRetriever(embedder embedding.Provider, logger *zap.Logger) *Retriever {
	return &Retriever{embedder: embedder, logger: logger}
}

// Retrieve scores every eligible candidate by a weighted combination of
// cosine similarity, importance and access frequency, and returns the
// top-k ranked list. Exactly the returned items get their access
// bookkeeping updated; if embedding fails, no bookkeeping mutates.
//
// score = cosine * importance * (1 + ln(1 + accessCount))
//
// Items without an embedding are silently skipped. Ties break toward
// the more recently accessed item, then by id for determinism.
func (r *Retriever) Retrieve(ctx context.Context, query string, candidates []*MemoryItem, opts RetrieveOptions, now time.Time) ([]ScoredItem, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	eligible := make([]*MemoryItem, 0, len(candidates))
	cutoff := now.Add(-opts.TimeWindow)
	for _, item := range candidates {
		if opts.Kind != "" && item.Kind != opts.Kind {
			continue
		}
		if opts.TimeWindow > 0 && item.CreatedAt.Before(cutoff) {
			continue
		}
		if len(item.Embedding) == 0 {
			continue
		}
		eligible = append(eligible, item)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &EmbeddingError{Text: query, Err: err}
	}

	scored := make([]ScoredItem, 0, len(eligible))
	for _, item := range eligible {
		similarity := Cosine(queryVec, item.Embedding)
		score := similarity * item.Importance.Weight() * (1 + math.Log(1+float64(item.AccessCount)))
		scored = append(scored, ScoredItem{Item: item, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Item.LastAccessed.Equal(scored[j].Item.LastAccessed) {
			return scored[i].Item.LastAccessed.After(scored[j].Item.LastAccessed)
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})

	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	for _, s := range scored {
		s.Item.Touch(now)
	}

	r.logger.Debug("retrieval ranked",
		zap.Int("candidates", len(eligible)),
		zap.Int("returned", len(scored)))
	return scored, nil
}
