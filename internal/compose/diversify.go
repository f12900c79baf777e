// Package compose turns ranked candidates into the artifacts the generator
// and the caller see: a provenance-carrying context string, a per-origin
// diversified short-list, and user-facing citation records.
package compose

import "github.com/citeright/citeright/internal/reranker"

// DiversifyByOrigin walks results in rank order and keeps a result only while
// its origin's running count is below maxPerOrigin. Dropped slots are never
// backfilled by later candidates, so rank order is preserved exactly.
func DiversifyByOrigin(results []reranker.ScoredChunk, maxPerOrigin int) []reranker.ScoredChunk {
	if maxPerOrigin <= 0 {
		return results
	}

	counts := make(map[string]int)
	kept := make([]reranker.ScoredChunk, 0, len(results))

	for _, r := range results {
		origin := r.Metadata.Origin
		if origin == "" {
			origin = r.Metadata.Source
		}
		if counts[origin] >= maxPerOrigin {
			continue
		}
		counts[origin]++
		kept = append(kept, r)
	}

	return kept
}
