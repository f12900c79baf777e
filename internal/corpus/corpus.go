// Package corpus defines the document chunk data model shared across the
// retrieval pipeline: structured metadata, chunk identity for deduplication,
// the ingestion record shape, and the corpus version counter that derived
// indexes key their rebuilds on.
package corpus

import "sync"

// DedupPrefixLen is the number of leading content characters that, together
// with the chunk's origin, form its deduplication identity.
const DedupPrefixLen = 80

// Metadata holds the known provenance fields of a chunk plus a residual map
// for source-specific extras.
type Metadata struct {
	Source  string `json:"source"`
	Origin  string `json:"origin"`
	License string `json:"license"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`

	// Extra carries source-specific fields that have no named slot.
	Extra map[string]string `json:"extra,omitempty"`
}

// Chunk is the immutable unit of retrievable text. Chunks are created at
// ingestion time and are only ever copied into ranked lists, never mutated.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// DedupKey returns the chunk's deduplication identity: its origin (falling
// back to source when origin is empty) paired with the first DedupPrefixLen
// characters of content.
func (c Chunk) DedupKey() string {
	origin := c.Metadata.Origin
	if origin == "" {
		origin = c.Metadata.Source
	}
	content := c.Content
	if len(content) > DedupPrefixLen {
		content = content[:DedupPrefixLen]
	}
	return origin + "\x00" + content
}

// SourceRecord is the shape produced by per-origin ingestion collaborators
// (Wikipedia, StackExchange, arXiv, Wikidata, local documents). The pipeline
// only requires this shape, not how it was produced.
type SourceRecord struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Summary  string            `json:"summary"`
	URL      string            `json:"url"`
	Source   string            `json:"source"`
	Origin   string            `json:"origin"`
	License  string            `json:"license"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Version is a mutation counter for the searchable corpus. Every ingestion
// and corpus-clear increments it; derived indexes record the value observed
// at build time and rebuild when it has moved.
type Version struct {
	mu sync.RWMutex
	n  uint64
}

// Current returns the current corpus version.
func (v *Version) Current() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.n
}

// Bump marks a corpus mutation and returns the new version.
func (v *Version) Bump() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.n++
	return v.n
}
