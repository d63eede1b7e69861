package memory

// Store owns the in-memory collections: the universal item map plus the
// three specialized collections and the working-memory sessions. It has
// no locking of its own; the owning Service serializes all access.
type Store struct {
	items      map[string]*MemoryItem
	episodes   map[string]*EpisodicMemory
	concepts   map[string]*SemanticMemory
	strategies map[string]*MetaMemory
	sessions   map[string]*WorkingMemory
}

// NewStore creates empty collections.
func NewStore() *Store {
	return &Store{
		items:      make(map[string]*MemoryItem),
		episodes:   make(map[string]*EpisodicMemory),
		concepts:   make(map[string]*SemanticMemory),
		strategies: make(map[string]*MetaMemory),
		sessions:   make(map[string]*WorkingMemory),
	}
}

// PutItem inserts or replaces a universal record.
func (s *Store) PutItem(item *MemoryItem) { s.items[item.ID] = item }

// Item returns the universal record with the given id, or nil.
func (s *Store) Item(id string) *MemoryItem { return s.items[id] }

// Items returns all universal records in unspecified order.
func (s *Store) Items() []*MemoryItem {
	out := make([]*MemoryItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out
}

// PutEpisode inserts or replaces an episodic record.
func (s *Store) PutEpisode(ep *EpisodicMemory) { s.episodes[ep.EpisodeID] = ep }

// Episode returns the episodic record with the given id, or nil.
func (s *Store) Episode(id string) *EpisodicMemory { return s.episodes[id] }

// Episodes returns all episodic records in unspecified order.
func (s *Store) Episodes() []*EpisodicMemory {
	out := make([]*EpisodicMemory, 0, len(s.episodes))
	for _, ep := range s.episodes {
		out = append(out, ep)
	}
	return out
}

// PutConcept inserts or replaces a semantic record.
func (s *Store) PutConcept(c *SemanticMemory) { s.concepts[c.ConceptID] = c }

// Concept returns the semantic record with the given id, or nil.
func (s *Store) Concept(id string) *SemanticMemory { return s.concepts[id] }

// Concepts returns all semantic records in unspecified order.
func (s *Store) Concepts() []*SemanticMemory {
	out := make([]*SemanticMemory, 0, len(s.concepts))
	for _, c := range s.concepts {
		out = append(out, c)
	}
	return out
}

// PutStrategy inserts or replaces a meta record.
func (s *Store) PutStrategy(m *MetaMemory) { s.strategies[m.StrategyID] = m }

// Strategy returns the meta record with the given id, or nil.
func (s *Store) Strategy(id string) *MetaMemory { return s.strategies[id] }

// Strategies returns all meta records in unspecified order.
func (s *Store) Strategies() []*MetaMemory {
	out := make([]*MetaMemory, 0, len(s.strategies))
	for _, m := range s.strategies {
		out = append(out, m)
	}
	return out
}

// Remove deletes the item and cascades into the specialized collection
// that holds its companion record.
func (s *Store) Remove(id string) {
	item, ok := s.items[id]
	if !ok {
		return
	}
	delete(s.items, id)
	if item.CompanionID == "" {
		return
	}
	switch item.Kind {
	case KindEpisodic:
		delete(s.episodes, item.CompanionID)
	case KindSemantic:
		delete(s.concepts, item.CompanionID)
	case KindMeta:
		delete(s.strategies, item.CompanionID)
	}
}

// Session returns the working-memory session with the given id, or nil.
func (s *Store) Session(id string) *WorkingMemory { return s.sessions[id] }

// PutSession inserts or replaces a working-memory session.
func (s *Store) PutSession(w *WorkingMemory) { s.sessions[w.SessionID] = w }

// SessionCount returns the number of live sessions.
func (s *Store) SessionCount() int { return len(s.sessions) }

// Len returns the number of universal records.
func (s *Store) Len() int { return len(s.items) }
