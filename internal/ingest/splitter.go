// Package ingest turns source records into embedded, searchable corpus
// chunks. Per-origin fetchers (Wikipedia, StackExchange, arXiv, Wikidata)
// are external collaborators that produce corpus.SourceRecord values; this
// package only consumes that shape.
package ingest

import "strings"

// Default splitting parameters, in characters.
const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 180
)

// separators are tried in order; coarser boundaries first so chunks break at
// paragraphs before sentences before words.
var separators = []string{"\n\n", "\n", ". ", ".", " "}

// Splitter splits text recursively on a separator hierarchy and merges the
// pieces into overlapping chunks of bounded size.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive arguments fall back to the
// defaults; overlap is capped below chunk size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split breaks text into chunks of at most chunkSize characters, adjacent
// chunks sharing up to overlap characters of context.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.merge(s.split(text, separators))
}

// split recursively divides text on the separator hierarchy until every
// piece fits the chunk size, hard-cutting as a last resort.
func (s *Splitter) split(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	if len(seps) == 0 {
		var out []string
		for len(text) > s.chunkSize {
			out = append(out, text[:s.chunkSize])
			text = text[s.chunkSize:]
		}
		if text != "" {
			out = append(out, text)
		}
		return out
	}

	// Keep separators attached so merging reconstructs the original text.
	parts := strings.SplitAfter(text, seps[0])
	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) > s.chunkSize {
			out = append(out, s.split(part, seps[1:])...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// merge greedily packs pieces into chunks up to chunkSize, seeding each new
// chunk with the tail of the previous one for overlap.
func (s *Splitter) merge(pieces []string) []string {
	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() string {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		return chunk
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > s.chunkSize {
			emitted := flush()
			if s.overlap > 0 && len(emitted) > s.overlap {
				current.WriteString(emitted[len(emitted)-s.overlap:])
			}
		}
		current.WriteString(piece)
	}
	flush()

	return chunks
}
