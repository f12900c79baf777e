// Package reask decides whether a generated answer is confident enough to
// accept, or whether the caller should regenerate once with a stricter
// prompt and a narrower context.
package reask

import (
	"math"
	"strings"
)

// StrictSuffix is appended to the query on a re-ask attempt.
const StrictSuffix = " (be strictly extractive; cite)"

// Params holds the thresholds the decision is evaluated against.
type Params struct {
	// MinRerankScore is the minimum acceptable mean rerank score.
	MinRerankScore float64

	// ContextTopK is the configured context chunk target.
	ContextTopK int

	// MinCitationCoverage is the fraction of ContextTopK that must have
	// actually been used as context.
	MinCitationCoverage float64
}

// ShouldReask is a pure function over the first attempt's rerank scores,
// the number of context chunks actually used, and the answer text. It
// returns true (re-ask) unless all of the following hold:
//
//  1. scores is non-empty
//  2. mean(scores) >= MinRerankScore
//  3. the answer contains at least one opening and one closing bracket —
//     a coarse structural proxy for a citation marker, not a citation parser
//  4. usedChunks >= max(1, ceil(ContextTopK * MinCitationCoverage))
//
// Re-ask fires at most once per query; the policy is not consulted on the
// second answer.
func ShouldReask(scores []float64, usedChunks int, answer string, p Params) bool {
	if len(scores) == 0 {
		return true
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))

	hasCitationMarker := strings.Contains(answer, "[") && strings.Contains(answer, "]")
	coverageOK := usedChunks >= CoverageThreshold(p)

	return avg < p.MinRerankScore || !hasCitationMarker || !coverageOK
}

// CoverageThreshold returns the minimum number of used context chunks an
// accepted answer requires: ceil(ContextTopK * MinCitationCoverage), at
// least 1.
func CoverageThreshold(p Params) int {
	threshold := int(math.Ceil(float64(p.ContextTopK) * p.MinCitationCoverage))
	if threshold < 1 {
		threshold = 1
	}
	return threshold
}

// NarrowedChunks returns the context size for the re-ask attempt: one fewer
// chunk than the first attempt, never below 1.
func NarrowedChunks(contextTopK int) int {
	if contextTopK <= 1 {
		return 1
	}
	return contextTopK - 1
}
