package memory

// WorkingCapacity bounds the active buffer of a working-memory session,
// after the 7+/-2 cognitive-load heuristic.
const WorkingCapacity = 7

// focusThreshold is the attention weight above which an item becomes the
// session's focus.
const focusThreshold = 0.8

// WorkingMemory is a short-lived, per-session buffer of currently
// attended-to item references. The buffer is a strict FIFO ring of size
// WorkingCapacity: attending to a new reference at capacity evicts the
// oldest one.
type WorkingMemory struct {
	SessionID        string             `json:"session_id"`
	ActiveItems      []string           `json:"active_items"`
	FocusItem        string             `json:"focus_item,omitempty"`
	ContextBuffer    map[string]Value   `json:"context_buffer,omitempty"`
	AttentionWeights map[string]float64 `json:"attention_weights"`
}

// NewWorkingMemory creates an empty session.
func NewWorkingMemory(sessionID string) *WorkingMemory {
	return &WorkingMemory{
		SessionID:        sessionID,
		ActiveItems:      make([]string, 0, WorkingCapacity),
		ContextBuffer:    make(map[string]Value),
		AttentionWeights: make(map[string]float64),
	}
}

// Attend appends itemRef to the active buffer, evicting the oldest
// reference when the buffer is at capacity, and records the attention
// weight (clamped to [0, 1]). A weight above the focus threshold
// promotes the reference to the session focus.
func (w *WorkingMemory) Attend(itemRef string, weight float64) {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}

	if len(w.ActiveItems) >= WorkingCapacity {
		evicted := w.ActiveItems[0]
		w.ActiveItems = append(w.ActiveItems[:0], w.ActiveItems[1:]...)
		delete(w.AttentionWeights, evicted)
		if w.FocusItem == evicted {
			w.FocusItem = ""
		}
	}

	w.ActiveItems = append(w.ActiveItems, itemRef)
	w.AttentionWeights[itemRef] = weight

	if weight > focusThreshold {
		w.FocusItem = itemRef
	}
}

// clone returns a deep copy safe to hand outside the owning service.
func (w *WorkingMemory) clone() WorkingMemory {
	cp := WorkingMemory{
		SessionID:        w.SessionID,
		ActiveItems:      append([]string(nil), w.ActiveItems...),
		FocusItem:        w.FocusItem,
		ContextBuffer:    make(map[string]Value, len(w.ContextBuffer)),
		AttentionWeights: make(map[string]float64, len(w.AttentionWeights)),
	}
	for k, v := range w.ContextBuffer {
		cp.ContextBuffer[k] = v
	}
	for k, v := range w.AttentionWeights {
		cp.AttentionWeights[k] = v
	}
	return cp
}
