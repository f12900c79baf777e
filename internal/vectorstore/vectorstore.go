// Package vectorstore provides interfaces and implementations for dense
// vector similarity search over the corpus.
package vectorstore

import (
	"context"

	"github.com/citeright/citeright/internal/corpus"
)

// VectorStore defines the interface for vector storage operations.
// Results of Search are ordered best-match first; callers that need scores
// from a second signal rerank separately.
type VectorStore interface {
	// EnsureCollection creates the backing collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// Upsert inserts or updates chunks with their embedding vectors.
	// vectors must be parallel to chunks.
	Upsert(ctx context.Context, chunks []corpus.Chunk, vectors [][]float32) error

	// Search performs similarity search and returns the topK closest chunks,
	// best-match first.
	Search(ctx context.Context, vector []float32, topK int) ([]corpus.Chunk, error)

	// All returns a snapshot of every stored chunk. Derived indexes (the
	// lexical index) are rebuilt from this snapshot so they never diverge
	// from the corpus.
	All(ctx context.Context) ([]corpus.Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (uint64, error)

	// Clear removes the entire collection and recreates it empty.
	Clear(ctx context.Context) error
}
