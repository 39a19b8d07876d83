package embeddings

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when a driver is asked to embed blank text.
// Embedding whitespace produces a meaningless vector, so drivers reject
// it instead of handing back a disguised "embedding of nothing".
var ErrEmptyInput = errors.New("embeddings: empty input text")

// ProviderError wraps any failure of the external embedding capability:
// unreachable endpoint, rate limit, rejected key, malformed response.
// The caller's policy decides retry vs. abort; drivers never mask a
// failure with a zero vector.
type ProviderError struct {
	Provider string
	Status   int // HTTP status when applicable, 0 otherwise
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s embeddings: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s embeddings: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }
