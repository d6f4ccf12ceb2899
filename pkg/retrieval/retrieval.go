// Package retrieval is the knowledge-retrieval boundary: given a query it
// returns ranked reference chunks. The orchestrator treats every failure
// here as recoverable and degrades to an empty chunk set.
package retrieval

import (
	"context"
	"fmt"
)

// Chunk is one retrieved reference passage with provenance.
type Chunk struct {
	Text  string  `json:"text"`
	Topic string  `json:"topic"`
	Score float64 `json:"score"`
}

// Client searches the knowledge base. Results are ordered best first and
// never exceed topK.
type Client interface {
	Search(ctx context.Context, query string, topK int) ([]Chunk, error)
}

// Error wraps any retrieval failure so callers can recognize it as
// recoverable.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Noop returns no chunks. Used when no knowledge base is configured.
type Noop struct{}

func (Noop) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	return nil, nil
}
