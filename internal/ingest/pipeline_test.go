package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/citeright/citeright/internal/corpus"
)

type fakeEmbedder struct {
	batches [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 1 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeStore struct {
	chunks  []corpus.Chunk
	vectors [][]float32
}

func (f *fakeStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeStore) Upsert(_ context.Context, chunks []corpus.Chunk, vectors [][]float32) error {
	f.chunks = append(f.chunks, chunks...)
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *fakeStore) Search(context.Context, []float32, int) ([]corpus.Chunk, error) {
	return nil, nil
}
func (f *fakeStore) All(context.Context) ([]corpus.Chunk, error) { return f.chunks, nil }
func (f *fakeStore) Count(context.Context) (uint64, error)       { return uint64(len(f.chunks)), nil }
func (f *fakeStore) Clear(context.Context) error                 { f.chunks = nil; return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipelineIngest(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	p := NewPipeline(NewSplitter(50, 10), emb, store, discard())

	records := []corpus.SourceRecord{
		{
			Title:   "Go",
			Content: "Go is a statically typed language. It compiles fast. It has goroutines for concurrency.",
			Source:  "Go",
			Origin:  "Wikipedia",
			License: "CC BY-SA",
			URL:     "https://en.wikipedia.org/wiki/Go",
		},
		{Source: "empty", Origin: "Wikipedia"},
	}

	res, err := p.Ingest(context.Background(), records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunksAdded == 0 {
		t.Fatal("no chunks added")
	}
	if res.ChunksAdded != len(store.chunks) {
		t.Errorf("ChunksAdded = %d, stored %d", res.ChunksAdded, len(store.chunks))
	}
	if len(store.vectors) != len(store.chunks) {
		t.Errorf("vectors %d not parallel to chunks %d", len(store.vectors), len(store.chunks))
	}
	if got := res.SourceStats["Wikipedia"]; got != res.ChunksAdded {
		t.Errorf("SourceStats[Wikipedia] = %d, want %d", got, res.ChunksAdded)
	}

	for i, c := range store.chunks {
		if c.ID == "" {
			t.Errorf("chunk %d has empty ID", i)
		}
		if c.Metadata.Origin != "Wikipedia" {
			t.Errorf("chunk %d origin = %q", i, c.Metadata.Origin)
		}
		if c.Metadata.Extra["chunk_index"] == "" || c.Metadata.Extra["total_chunks"] == "" {
			t.Errorf("chunk %d missing position metadata: %v", i, c.Metadata.Extra)
		}
	}
}

func TestPipelineIngestEmpty(t *testing.T) {
	store := &fakeStore{}
	p := NewPipeline(NewSplitter(0, -1), &fakeEmbedder{}, store, discard())

	res, err := p.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunksAdded != 0 || len(store.chunks) != 0 {
		t.Errorf("expected no-op, got %+v", res)
	}
}

func TestPipelineIngestPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("Local notes about retrieval systems."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644); err != nil {
		t.Fatal(err)
	}

	store := &fakeStore{}
	p := NewPipeline(NewSplitter(0, -1), &fakeEmbedder{}, store, discard())

	res, err := p.IngestPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("IngestPaths: %v", err)
	}
	if res.ChunksAdded != 1 {
		t.Fatalf("ChunksAdded = %d, want 1 (png skipped)", res.ChunksAdded)
	}
	got := store.chunks[0]
	if got.Metadata.Origin != LocalOrigin {
		t.Errorf("origin = %q, want %q", got.Metadata.Origin, LocalOrigin)
	}
	if got.Metadata.Source != "notes.md" {
		t.Errorf("source = %q, want notes.md", got.Metadata.Source)
	}
	if got.Metadata.License != "Unknown" {
		t.Errorf("license = %q, want Unknown", got.Metadata.License)
	}
}

func TestPipelineIngestPathsMissing(t *testing.T) {
	p := NewPipeline(NewSplitter(0, -1), &fakeEmbedder{}, &fakeStore{}, discard())

	if _, err := p.IngestPaths(context.Background(), []string{"/nonexistent/path"}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
