// Package cache maps normalized queries to previously computed answers and
// citations, durably, so a repeat query bypasses the entire retrieval and
// generation pipeline.
//
// Keys are the raw query string as received (trimmed by the caller); no case
// folding or punctuation normalization is performed. Writes are
// last-write-wins with atomic replace at the storage layer. Storage failures
// surface as hard errors: silently skipping the cache would mask a real
// operational problem.
package cache

import (
	"context"
	"time"

	"github.com/citeright/citeright/internal/compose"
)

// Entry is a cached (answer, citations) pair.
type Entry struct {
	Answer    string             `json:"answer"`
	Citations []compose.Citation `json:"citations"`
	CreatedAt time.Time          `json:"created_at"`
}

// Cache defines the answer cache operations.
type Cache interface {
	// Get returns the cached entry for query, or (nil, nil) on a miss.
	Get(ctx context.Context, query string) (*Entry, error)

	// Set stores an entry for query, overwriting any existing one.
	Set(ctx context.Context, query, answer string, citations []compose.Citation) error

	// ClearAll removes every cached entry.
	ClearAll(ctx context.Context) error
}
