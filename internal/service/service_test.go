package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/citeright/citeright/internal/cache"
	"github.com/citeright/citeright/internal/compose"
	"github.com/citeright/citeright/internal/config"
	"github.com/citeright/citeright/internal/corpus"
	"github.com/citeright/citeright/internal/ingest"
	"github.com/citeright/citeright/internal/lexical"
	"github.com/citeright/citeright/internal/llm"
	"github.com/citeright/citeright/internal/reranker"
	"github.com/citeright/citeright/internal/retriever"
)

type fakeStore struct {
	chunks []corpus.Chunk
}

func (f *fakeStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeStore) Upsert(_ context.Context, chunks []corpus.Chunk, _ [][]float32) error {
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ []float32, topK int) ([]corpus.Chunk, error) {
	if topK > len(f.chunks) {
		topK = len(f.chunks)
	}
	return append([]corpus.Chunk(nil), f.chunks[:topK]...), nil
}

func (f *fakeStore) All(context.Context) ([]corpus.Chunk, error) {
	return append([]corpus.Chunk(nil), f.chunks...), nil
}

func (f *fakeStore) Count(context.Context) (uint64, error) { return uint64(len(f.chunks)), nil }
func (f *fakeStore) Clear(context.Context) error           { f.chunks = nil; return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int    { return 1 }
func (fakeEmbedder) ModelName() string { return "fake" }

// fakeReranker scores every chunk with a fixed value, preserving input order.
type fakeReranker struct {
	score float64
	calls int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, chunks []corpus.Chunk, topK int) ([]reranker.ScoredChunk, error) {
	f.calls++
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	out := make([]reranker.ScoredChunk, len(chunks))
	for i, c := range chunks {
		out[i] = reranker.ScoredChunk{Chunk: c, Score: f.score}
	}
	return out, nil
}

// fakeLLM returns a fixed answer and records every prompt.
type fakeLLM struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type memCache struct {
	entries map[string]*cache.Entry
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]*cache.Entry)} }

func (m *memCache) Get(_ context.Context, query string) (*cache.Entry, error) {
	return m.entries[query], nil
}

func (m *memCache) Set(_ context.Context, query, answer string, citations []compose.Citation) error {
	m.entries[query] = &cache.Entry{Answer: answer, Citations: citations, CreatedAt: time.Now()}
	return nil
}

func (m *memCache) ClearAll(context.Context) error {
	m.entries = make(map[string]*cache.Entry)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		OllamaLLMModel:      "test-model",
		RetrieveK:           10,
		RerankTopK:          5,
		ContextTopK:         2,
		MaxPerSource:        5,
		MinRerankScore:      0.4,
		MinCitationCoverage: 0.5,
		MaxContextTokens:    3200,
		RerankTimeout:       time.Second,
		GenerateTimeout:     time.Second,
		EvaluateTimeout:     time.Second,
	}
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	llm      *fakeLLM
	reranker *fakeReranker
	cache    *memCache
}

func newFixture(cfg *config.Config, seed []corpus.Chunk) *fixture {
	store := &fakeStore{chunks: seed}
	version := &corpus.Version{}
	emb := fakeEmbedder{}
	merger := retriever.NewHybridMerger(emb, store, lexical.NewIndex(store, version))
	rr := &fakeReranker{score: 0.9}
	client := &fakeLLM{answer: "Grounded answer [1].\n\nSources Consulted:\n• Wikipedia — Go (CC BY-SA 4.0)"}
	answerCache := newMemCache()
	pipeline := ingest.NewPipeline(ingest.NewSplitter(0, -1), emb, store, quiet())

	svc := New(cfg, merger, rr, client, answerCache, store, version, pipeline,
		WithLogger(quiet()))
	return &fixture{svc: svc, store: store, llm: client, reranker: rr, cache: answerCache}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedChunks(origin string, n int) []corpus.Chunk {
	chunks := make([]corpus.Chunk, n)
	for i := range chunks {
		chunks[i] = corpus.Chunk{
			ID:      string(rune('a' + i)),
			Content: strings.Repeat("weather fact ", i+1) + "about Mars",
			Metadata: corpus.Metadata{
				Source:  "Mars",
				Origin:  origin,
				License: "CC BY-SA",
				URL:     "https://example.org",
			},
		}
	}
	return chunks
}

func TestQueryEmptyQuery(t *testing.T) {
	f := newFixture(testConfig(), nil)

	_, err := f.svc.Query(context.Background(), Request{Query: "   "})
	if !errors.Is(err, retriever.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestQueryEmptyCorpusReasksOnce(t *testing.T) {
	f := newFixture(testConfig(), nil)

	resp, err := f.svc.Query(context.Background(), Request{Query: "what is on Mars?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !resp.UsedReask {
		t.Error("UsedReask = false, want true on empty corpus")
	}
	if len(resp.Citations) != 0 {
		t.Errorf("citations = %v, want none", resp.Citations)
	}
	if got := len(f.llm.prompts); got != 2 {
		t.Fatalf("LLM called %d times, want 2 (first attempt plus one re-ask)", got)
	}
	if !strings.Contains(f.llm.prompts[1], "(be strictly extractive; cite)") {
		t.Error("re-ask prompt missing strict suffix")
	}
	if strings.Contains(f.llm.prompts[0], "(be strictly extractive; cite)") {
		t.Error("first prompt should not carry the strict suffix")
	}
}

func TestQueryDiversifierBoundsOrigin(t *testing.T) {
	f := newFixture(testConfig(), seedChunks("Wikipedia", 3))

	resp, err := f.svc.Query(context.Background(), Request{
		Query:        "mars weather",
		MaxPerSource: 2,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Citations) > 2 {
		t.Errorf("got %d citations from one origin, want <= 2", len(resp.Citations))
	}
	if resp.UsedReask {
		t.Error("high scores with coverage met should not re-ask")
	}
}

func TestQueryRepeatHitsCache(t *testing.T) {
	f := newFixture(testConfig(), seedChunks("Wikipedia", 3))

	first, err := f.svc.Query(context.Background(), Request{Query: "mars weather"})
	if err != nil {
		t.Fatalf("first Query: %v", err)
	}
	llmCalls := len(f.llm.prompts)
	rerankCalls := f.reranker.calls

	second, err := f.svc.Query(context.Background(), Request{Query: "mars weather"})
	if err != nil {
		t.Fatalf("second Query: %v", err)
	}
	if second.Answer != first.Answer {
		t.Errorf("cached answer %q differs from original %q", second.Answer, first.Answer)
	}
	if len(f.llm.prompts) != llmCalls {
		t.Error("cache hit still invoked the LLM")
	}
	if f.reranker.calls != rerankCalls {
		t.Error("cache hit still invoked the reranker")
	}
	if _, ok := second.TimingsMS["cache"]; !ok {
		t.Error("cache timing missing from response")
	}
	if _, ok := second.TimingsMS["rerank"]; ok {
		t.Error("cache hit should not report a rerank timing")
	}
}

func TestQueryOriginFilter(t *testing.T) {
	seed := append(seedChunks("Wikipedia", 2), corpus.Chunk{
		ID:      "x",
		Content: "arxiv abstract about mars weather",
		Metadata: corpus.Metadata{
			Source: "2304.01234", Origin: "arXiv", License: "CC BY 4.0",
		},
	})
	f := newFixture(testConfig(), seed)

	resp, err := f.svc.Query(context.Background(), Request{
		Query:   "mars weather",
		Sources: []string{"arxiv"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, c := range resp.Citations {
		if c.Origin != "arXiv" {
			t.Errorf("citation origin = %q, want arXiv only", c.Origin)
		}
	}
}

func TestQueryGenerateFailure(t *testing.T) {
	f := newFixture(testConfig(), seedChunks("Wikipedia", 1))
	f.llm.err = errors.New("ollama unreachable")

	if _, err := f.svc.Query(context.Background(), Request{Query: "mars"}); err == nil {
		t.Fatal("expected error when generation fails")
	}
}

func TestClearCorpusDropsCache(t *testing.T) {
	f := newFixture(testConfig(), seedChunks("Wikipedia", 2))
	ctx := context.Background()

	if _, err := f.svc.Query(ctx, Request{Query: "mars weather"}); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(f.cache.entries) == 0 {
		t.Fatal("expected cached entry after query")
	}

	if err := f.svc.ClearCorpus(ctx); err != nil {
		t.Fatalf("ClearCorpus: %v", err)
	}
	if len(f.cache.entries) != 0 {
		t.Error("cache not emptied by ClearCorpus")
	}
	if n, _ := f.store.Count(ctx); n != 0 {
		t.Errorf("store count = %d after clear, want 0", n)
	}
}

func TestIngestBumpsVersion(t *testing.T) {
	f := newFixture(testConfig(), nil)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, []corpus.SourceRecord{{
		Title:   "Mars",
		Content: "Mars is the fourth planet from the Sun.",
		Source:  "Mars",
		Origin:  "Wikipedia",
		License: "CC BY-SA",
	}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunksAdded == 0 {
		t.Fatal("no chunks added")
	}

	// A query after ingestion sees the new corpus through the rebuilt
	// lexical index.
	resp, err := f.svc.Query(ctx, Request{Query: "fourth planet"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Citations) == 0 {
		t.Error("expected citations from freshly ingested corpus")
	}
}
