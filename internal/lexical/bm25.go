// Package lexical provides a sparse BM25 index derived from the vector
// store's stored documents.
//
// The index is a value computed from a corpus snapshot. It records the
// corpus version observed at build time and is rebuilt lazily on the first
// search after the corpus has changed, so it never silently diverges from
// the searchable corpus. Construction is guarded by a single-writer lock;
// concurrent queries never observe a half-built index.
package lexical

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/citeright/citeright/internal/corpus"
	"github.com/citeright/citeright/internal/vectorstore"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Index scores the corpus with BM25 over lowercase whitespace tokens.
type Index struct {
	store   vectorstore.VectorStore
	version *corpus.Version

	mu       sync.RWMutex
	built    uint64 // corpus version at last build
	hasBuilt bool
	docs     []corpus.Chunk
	docFreq  map[string]int
	termFreq []map[string]int
	docLen   []int
	avgLen   float64
}

// NewIndex creates a lexical index derived from the given vector store.
// The index rebuilds whenever the corpus version moves past the version
// observed at the last build.
func NewIndex(store vectorstore.VectorStore, version *corpus.Version) *Index {
	return &Index{
		store:   store,
		version: version,
		docFreq: make(map[string]int),
	}
}

// Search returns up to k chunks ranked by BM25 score, best first. Chunks
// scoring zero are excluded. The index is (re)built lazily when stale.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]corpus.Chunk, error) {
	if err := idx.ensureBuilt(ctx); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docs) == 0 {
		return nil, nil
	}

	terms := Tokenize(query)
	scores := make([]float64, len(idx.docs))
	n := float64(len(idx.docs))

	for _, term := range terms {
		df, ok := idx.docFreq[term]
		if !ok {
			continue
		}
		// BM25 inverse document frequency with the +1 smoothing variant
		// so common terms never go negative.
		imf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i := range idx.docs {
			tf := float64(idx.termFreq[i][term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLen[i])/idx.avgLen
			scores[i] += imf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	order := make([]int, len(idx.docs))
	for i := range order {
		order[i] = i
	}
	// Stable so equally scored documents keep insertion order.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	results := make([]corpus.Chunk, 0, k)
	for _, i := range order {
		if scores[i] <= 0 || len(results) >= k {
			break
		}
		results = append(results, idx.docs[i])
	}

	return results, nil
}

// Invalidate forces a rebuild on the next search regardless of the version
// counter. Corpus mutations normally invalidate through the counter; this
// exists for callers that hold no reference to it.
func (idx *Index) Invalidate() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.hasBuilt = false
}

// ensureBuilt rebuilds the index when it has never been built or the corpus
// version has moved since the last build.
func (idx *Index) ensureBuilt(ctx context.Context) error {
	current := idx.version.Current()

	idx.mu.RLock()
	fresh := idx.hasBuilt && idx.built == current
	idx.mu.RUnlock()
	if fresh {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Another goroutine may have rebuilt while we waited for the lock.
	if idx.hasBuilt && idx.built == current {
		return nil
	}

	docs, err := idx.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load corpus snapshot: %w", err)
	}

	idx.docs = docs
	idx.docFreq = make(map[string]int)
	idx.termFreq = make([]map[string]int, len(docs))
	idx.docLen = make([]int, len(docs))

	totalLen := 0
	for i, doc := range docs {
		terms := Tokenize(doc.Content)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term := range tf {
			idx.docFreq[term]++
		}
		idx.termFreq[i] = tf
		idx.docLen[i] = len(terms)
		totalLen += len(terms)
	}

	idx.avgLen = 1
	if totalLen > 0 {
		idx.avgLen = float64(totalLen) / float64(len(docs))
	}

	idx.built = current
	idx.hasBuilt = true
	return nil
}

// Tokenize lowercases and splits text on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
