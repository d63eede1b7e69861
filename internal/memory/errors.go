package memory

import "fmt"

// ContentError reports empty or invalid input to a store operation.
// No mutation has occurred when it is returned.
type ContentError struct {
	Field string
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("memory: %s must not be empty", e.Field)
}

// EmbeddingError reports a failure of the embedding collaborator, the
// subsystem's only I/O failure mode. It is surfaced instead of swallowed
// so callers can tell it apart from an empty result, and it guarantees
// no partial state mutation took place.
type EmbeddingError struct {
	Text string
	Err  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("memory: embed %q: %v", truncate(e.Text, 40), e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ConsolidationError aborts a whole consolidation pass; no partial
// semantic memories are kept from a failed pass.
type ConsolidationError struct {
	Err error
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("memory: consolidation failed: %v", e.Err)
}

func (e *ConsolidationError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
