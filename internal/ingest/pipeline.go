package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/citeright/citeright/internal/corpus"
	"github.com/citeright/citeright/internal/embedder"
	"github.com/citeright/citeright/internal/vectorstore"
)

// LocalOrigin is the origin assigned to documents read from the filesystem.
const LocalOrigin = "Local Document"

// Result summarizes a completed ingestion run.
type Result struct {
	ChunksAdded int            `json:"chunks_added"`
	SourceStats map[string]int `json:"source_stats"`
}

// Pipeline splits source records into chunks, embeds them, and upserts them
// into the vector store. Callers are responsible for serializing corpus
// mutations and bumping the corpus version afterwards.
type Pipeline struct {
	splitter *Splitter
	embedder embedder.Embedder
	store    vectorstore.VectorStore
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(splitter *Splitter, emb embedder.Embedder, store vectorstore.VectorStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: emb,
		store:    store,
		logger:   logger,
	}
}

// Ingest chunks, embeds, and stores the given records. Records with empty
// content are skipped. Returns per-origin chunk counts.
func (p *Pipeline) Ingest(ctx context.Context, records []corpus.SourceRecord) (Result, error) {
	res := Result{SourceStats: make(map[string]int)}

	var chunks []corpus.Chunk
	for _, rec := range records {
		pieces := p.splitter.Split(rec.Content)
		if len(pieces) == 0 {
			p.logger.Warn("skipping record with empty content",
				slog.String("source", rec.Source),
				slog.String("origin", rec.Origin))
			continue
		}
		for i, piece := range pieces {
			meta := corpus.Metadata{
				Source:  rec.Source,
				Origin:  rec.Origin,
				License: rec.License,
				URL:     rec.URL,
				Title:   rec.Title,
				Summary: rec.Summary,
				Extra: map[string]string{
					"chunk_index":  strconv.Itoa(i),
					"total_chunks": strconv.Itoa(len(pieces)),
				},
			}
			for k, v := range rec.Metadata {
				meta.Extra[k] = v
			}
			chunks = append(chunks, corpus.Chunk{
				ID:       uuid.New().String(),
				Content:  piece,
				Metadata: meta,
			})
		}
		origin := rec.Origin
		if origin == "" {
			origin = rec.Source
		}
		res.SourceStats[origin] += len(pieces)
	}

	if len(chunks) == 0 {
		return res, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	if err := p.store.EnsureCollection(ctx); err != nil {
		return Result{}, fmt.Errorf("ensuring collection: %w", err)
	}
	if err := p.store.Upsert(ctx, chunks, vectors); err != nil {
		return Result{}, fmt.Errorf("upserting %d chunks: %w", len(chunks), err)
	}

	res.ChunksAdded = len(chunks)
	p.logger.Info("ingestion complete",
		slog.Int("chunks", res.ChunksAdded),
		slog.Int("records", len(records)))
	return res, nil
}

// IngestPaths reads plain-text documents (.txt, .md) from the given files or
// directories and ingests them as local documents. Directories are walked
// recursively.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string) (Result, error) {
	var records []corpus.SourceRecord
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return Result{}, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			err = filepath.WalkDir(path, func(name string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !isTextFile(name) {
					return nil
				}
				rec, err := readLocalDocument(name)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return Result{}, fmt.Errorf("walking %s: %w", path, err)
			}
			continue
		}
		if !isTextFile(path) {
			p.logger.Warn("skipping unsupported file", slog.String("path", path))
			continue
		}
		rec, err := readLocalDocument(path)
		if err != nil {
			return Result{}, err
		}
		records = append(records, rec)
	}

	return p.Ingest(ctx, records)
}

func isTextFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func readLocalDocument(path string) (corpus.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return corpus.SourceRecord{}, fmt.Errorf("reading %s: %w", path, err)
	}
	name := filepath.Base(path)
	return corpus.SourceRecord{
		Title:   name,
		Content: string(data),
		Source:  name,
		Origin:  LocalOrigin,
		License: "Unknown",
	}, nil
}
