package compose

import "github.com/citeright/citeright/internal/reranker"

// SnippetLen is the maximum citation snippet length in characters.
const SnippetLen = 200

// Citation is a read-only projection of a ranked result's provenance plus a
// truncated content snippet.
type Citation struct {
	Source          string `json:"source"`
	Origin          string `json:"origin"`
	License         string `json:"license"`
	URL             string `json:"url"`
	Snippet         string `json:"snippet"`
	FormattedSource string `json:"formatted_source"`
}

// FormatCitations produces one citation record per result, order preserved.
func FormatCitations(results []reranker.ScoredChunk) []Citation {
	citations := make([]Citation, 0, len(results))

	for _, r := range results {
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

		citations = append(citations, Citation{
			Source:          source,
			Origin:          origin,
			License:         license,
			URL:             r.Metadata.URL,
			Snippet:         snippet(r.Content),
			FormattedSource: origin + " — \"" + source + "\" (" + license + ")",
		})
	}

	return citations
}

// snippet returns the first SnippetLen characters of content, with an
// ellipsis marker when truncated.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= SnippetLen {
		return content
	}
	return string(runes[:SnippetLen]) + "…"
}
