package compose

import (
	"strings"

	"github.com/citeright/citeright/internal/reranker"
)

// chunkSeparator joins rendered chunks in the assembled context.
const chunkSeparator = "\n\n---\n\n"

// AssembleContext renders the first maxChunks results as structured context
// for the generator, each chunk prefixed with a provenance header:
//
//	(origin — "source", license) [url]
//	<content>
//
// Missing metadata fields degrade to "unknown"/"Unknown". The output never
// exceeds maxTokens: chunk content is truncated word-wise to the remaining
// budget, and chunks that no longer fit at all are dropped. Returns the
// assembled context and the number of chunks actually used.
func AssembleContext(results []reranker.ScoredChunk, maxChunks, maxTokens int) (string, int) {
	if maxChunks <= 0 || maxTokens <= 0 {
		return "", 0
	}
	if len(results) > maxChunks {
		results = results[:maxChunks]
	}

	var sb strings.Builder
	used := 0
	remaining := maxTokens

	for _, r := range results {
		header := chunkHeader(r)
		cost := estimateTokens(header)
		if used > 0 {
			cost++ // separator
		}
		if cost >= remaining {
			break
		}

		words := strings.Fields(r.Content)
		budget := remaining - cost
		if len(words) > budget {
			words = words[:budget]
		}
		if len(words) == 0 {
			break
		}

		if used > 0 {
			sb.WriteString(chunkSeparator)
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(words, " "))

		remaining -= cost + len(words)
		used++
	}

	return sb.String(), used
}

// chunkHeader renders the provenance line for one chunk.
func chunkHeader(r reranker.ScoredChunk) string {
	source := r.Metadata.Source
	if source == "" {
		source = "unknown"
	}
	origin := r.Metadata.Origin
	if origin == "" {
		origin = "Unknown"
	}
	license := r.Metadata.License
	if license == "" {
		license = "Unknown"
	}

	header := "(" + origin + " — \"" + source + "\", " + license + ")"
	if r.Metadata.URL != "" {
		header += " [" + r.Metadata.URL + "]"
	}
	return header
}

// estimateTokens approximates token count by whitespace-separated words.
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

// EstimateTokens reports the approximate token count used for budget checks.
func EstimateTokens(text string) int {
	return estimateTokens(text)
}
