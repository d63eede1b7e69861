package memory

import (
	"math"
	"time"
)

// decayFloor is the minimum decay factor; memories fade toward it but
// never reach zero.
const decayFloor = 0.01

// accessDamping scales how strongly the access count slows decay.
const accessDamping = 0.1

// Forgetter applies the Ebbinghaus-style forgetting curve to memory
// items. It is the only component permitted to decrease a decay factor,
// and it never deletes records itself; eviction is the caller's call,
// keyed on ShouldForget.
type Forgetter struct{}

// UpdateDecay recomputes the item's decay factor at the given instant
// and mutates it in place.
//
// The new factor is previous * exp(-rate * elapsedHours * accessFactor),
// where rate comes from the importance table and accessFactor is
// 1/(1 + accessCount*0.1), so frequently accessed memories decay slower.
// Elapsed time is measured since the later of the last access and the
// last decay update, which makes repeated calls at the same instant
// idempotent. The result is clamped to the floor.
func (Forgetter) UpdateDecay(item *MemoryItem, now time.Time) float64 {
	since := item.LastAccessed
	if item.DecayedAt.After(since) {
		since = item.DecayedAt
	}

	elapsed := now.Sub(since).Hours()
	if elapsed <= 0 {
		return item.DecayFactor
	}

	accessFactor := 1.0 / (1.0 + float64(item.AccessCount)*accessDamping)
	next := item.DecayFactor * math.Exp(-item.Importance.DecayRate()*elapsed*accessFactor)
	if next < decayFloor {
		next = decayFloor
	}

	item.DecayFactor = next
	item.DecayedAt = now
	return next
}

// ShouldForget updates the item's decay and reports whether the result
// fell strictly below the threshold.
func (f Forgetter) ShouldForget(item *MemoryItem, now time.Time, threshold float64) bool {
	return f.UpdateDecay(item, now) < threshold
}
