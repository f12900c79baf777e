// Package retriever fuses dense vector similarity and sparse lexical scoring
// into one deduplicated candidate list.
//
// The two retrieval methods are not numerically comparable (cosine similarity
// vs. BM25), so the merge is an ordered union rather than a score-weighted
// fusion: each method's list is already ordered by its own notion of
// relevance, dense results take priority, and duplicates are dropped at
// their first occurrence.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/citeright/citeright/internal/corpus"
	"github.com/citeright/citeright/internal/embedder"
	"github.com/citeright/citeright/internal/lexical"
	"github.com/citeright/citeright/internal/vectorstore"
)

// MaxFanout bounds the per-method candidate count for a single query.
const MaxFanout = 100

// ErrEmptyQuery is returned when the query is empty after trimming.
var ErrEmptyQuery = errors.New("query is empty")

// HybridMerger issues dense and sparse lookups concurrently and merges the
// results into one ranked candidate list.
type HybridMerger struct {
	embedder embedder.Embedder
	dense    vectorstore.VectorStore
	sparse   *lexical.Index
}

// NewHybridMerger creates a merger over the given dense store and lexical index.
func NewHybridMerger(emb embedder.Embedder, dense vectorstore.VectorStore, sparse *lexical.Index) *HybridMerger {
	return &HybridMerger{
		embedder: emb,
		dense:    dense,
		sparse:   sparse,
	}
}

// Search runs both retrieval methods bounded to k results each and returns
// their ordered union, deduplicated by chunk identity and truncated to k.
func (m *HybridMerger) Search(ctx context.Context, query string, k int) ([]corpus.Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("fan-out must be positive, got %d", k)
	}
	if k > MaxFanout {
		k = MaxFanout
	}

	var denseResults, sparseResults []corpus.Chunk

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vector, err := m.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
		denseResults, err = m.dense.Search(gctx, vector, k)
		if err != nil {
			return fmt.Errorf("dense search failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		sparseResults, err = m.sparse.Search(gctx, query, k)
		if err != nil {
			return fmt.Errorf("sparse search failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeOrdered(denseResults, sparseResults, k), nil
}

// mergeOrdered concatenates dense before sparse (dense priority on ties),
// keeps the first occurrence of each dedup key, and truncates to k.
func mergeOrdered(dense, sparse []corpus.Chunk, k int) []corpus.Chunk {
	merged := make([]corpus.Chunk, 0, k)
	seen := make(map[string]struct{}, len(dense)+len(sparse))

	for _, c := range append(append([]corpus.Chunk{}, dense...), sparse...) {
		key := c.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, c)
		if len(merged) == k {
			break
		}
	}

	return merged
}
