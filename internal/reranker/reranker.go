// Package reranker provides a second, more precise relevance scoring pass
// over a small candidate set.
//
// Reranking evaluates each (query, document) pair together rather than
// independently, which is slower than the first retrieval pass but much
// better at separating near-duplicates in the top candidates. A failing
// reranker fails the whole query: an unranked answer would break the
// citation-quality guarantees downstream, so there is no local fallback
// ranking.
package reranker

import (
	"context"

	"github.com/citeright/citeright/internal/corpus"
)

// ScoredChunk is a chunk paired with its rerank relevance score.
type ScoredChunk struct {
	corpus.Chunk
	Score float64
}

// Reranker defines the interface for re-ranking retrieval candidates.
type Reranker interface {
	// Rerank scores each (query, chunk) pair and returns the top topK by
	// descending score, ties broken by input order. Empty input returns
	// empty output and no error. Backend failures are returned as errors.
	Rerank(ctx context.Context, query string, chunks []corpus.Chunk, topK int) ([]ScoredChunk, error)
}
