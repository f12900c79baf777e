// Package service orchestrates the full question-answering pipeline: cache
// lookup, hybrid retrieval, reranking, source diversification, context
// assembly, generation with a single re-ask pass, optional evaluation,
// citation formatting, and cache write-back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/citeright/citeright/internal/cache"
	"github.com/citeright/citeright/internal/compose"
	"github.com/citeright/citeright/internal/config"
	"github.com/citeright/citeright/internal/corpus"
	"github.com/citeright/citeright/internal/evaluator"
	"github.com/citeright/citeright/internal/ingest"
	"github.com/citeright/citeright/internal/llm"
	"github.com/citeright/citeright/internal/reask"
	"github.com/citeright/citeright/internal/reranker"
	"github.com/citeright/citeright/internal/retriever"
	"github.com/citeright/citeright/internal/vectorstore"
)

// generateTemperature keeps answers near-deterministic.
const generateTemperature = 0.2

// ErrBackend marks a failed call to a model backend, as opposed to local
// storage or invalid input.
var ErrBackend = errors.New("model backend failure")

// Request is a query as received from the transport layer. Zero-valued
// optional fields fall back to configured defaults.
type Request struct {
	Query            string   `json:"query"`
	TopK             int      `json:"top_k,omitempty"`
	Sources          []string `json:"sources,omitempty"`
	MaxPerSource     int      `json:"max_per_source,omitempty"`
	EnableEvaluation bool     `json:"enable_evaluation,omitempty"`
}

// Response is the answer with provenance and pipeline telemetry.
type Response struct {
	Answer     string             `json:"answer"`
	Citations  []compose.Citation `json:"citations"`
	UsedReask  bool               `json:"used_reask"`
	Evaluation *evaluator.Result  `json:"evaluation,omitempty"`
	TimingsMS  map[string]int64   `json:"timings_ms"`
}

// Service wires the pipeline stages together.
type Service struct {
	cfg       *config.Config
	merger    *retriever.HybridMerger
	reranker  reranker.Reranker
	llmClient llm.LLM
	cache     cache.Cache
	store     vectorstore.VectorStore
	version   *corpus.Version
	pipeline  *ingest.Pipeline
	evaluator *evaluator.Evaluator
	logger    *slog.Logger

	// mu serializes corpus mutations (ingestion and clear) so no query can
	// observe a cache entry for a deleted corpus.
	mu sync.Mutex
}

// Option is a functional option for configuring Service.
type Option func(*Service)

// WithEvaluator enables the post-generation evaluation pass.
func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates the query service.
func New(
	cfg *config.Config,
	merger *retriever.HybridMerger,
	rr reranker.Reranker,
	llmClient llm.LLM,
	answerCache cache.Cache,
	store vectorstore.VectorStore,
	version *corpus.Version,
	pipeline *ingest.Pipeline,
	opts ...Option,
) *Service {
	s := &Service{
		cfg:       cfg,
		merger:    merger,
		reranker:  rr,
		llmClient: llmClient,
		cache:     answerCache,
		store:     store,
		version:   version,
		pipeline:  pipeline,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query answers a question over the current corpus.
func (s *Service) Query(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	timings := make(map[string]int64)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, retriever.ErrEmptyQuery
	}

	// Step 1: cached answer short-circuits the whole pipeline.
	cacheStart := time.Now()
	entry, err := s.cache.Get(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	timings["cache"] = time.Since(cacheStart).Milliseconds()
	if entry != nil {
		timings["total"] = time.Since(start).Milliseconds()
		s.logger.Info("cache hit", slog.String("query", query))
		return &Response{
			Answer:    entry.Answer,
			Citations: entry.Citations,
			TimingsMS: timings,
		}, nil
	}

	// Step 2: hybrid retrieval. An empty corpus yields empty candidates and
	// flows through; the re-ask policy fires and citations come back empty.
	retrieveK := req.TopK
	if retrieveK <= 0 {
		retrieveK = s.cfg.RetrieveK
	}
	stage := time.Now()
	candidates, err := s.merger.Search(ctx, query, retrieveK)
	if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}
	candidates = filterByOrigin(candidates, req.Sources)
	timings["retrieve"] = s.logStage("retrieve", stage, len(candidates))

	// Step 3: rerank. A reranker failure fails the query.
	stage = time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
	ranked, err := s.reranker.Rerank(rctx, query, candidates, s.cfg.RerankTopK)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("reranking: %w", errors.Join(ErrBackend, err))
	}
	timings["rerank"] = s.logStage("rerank", stage, len(ranked))

	// Step 4: bound any single origin's share of the final context.
	maxPerSource := req.MaxPerSource
	if maxPerSource <= 0 {
		maxPerSource = s.cfg.MaxPerSource
	}
	ranked = compose.DiversifyByOrigin(ranked, maxPerSource)

	scores := make([]float64, len(ranked))
	for i, r := range ranked {
		scores[i] = r.Score
	}

	// Step 5: generate, then regenerate at most once if the answer looks
	// under-supported.
	stage = time.Now()
	answer, contextText, used, err := s.attempt(ctx, query, ranked, s.cfg.ContextTopK, "")
	if err != nil {
		return nil, err
	}

	params := reask.Params{
		MinRerankScore:      s.cfg.MinRerankScore,
		ContextTopK:         s.cfg.ContextTopK,
		MinCitationCoverage: s.cfg.MinCitationCoverage,
	}
	usedReask := reask.ShouldReask(scores, used, answer, params)
	if usedReask {
		s.logger.Info("re-asking with narrowed context",
			slog.Int("chunks", reask.NarrowedChunks(s.cfg.ContextTopK)))
		answer, contextText, _, err = s.attempt(ctx, query, ranked,
			reask.NarrowedChunks(s.cfg.ContextTopK), reask.StrictSuffix)
		if err != nil {
			return nil, err
		}
	}
	timings["generate"] = s.logStage("generate", stage, used)

	resp := &Response{
		Answer:    answer,
		UsedReask: usedReask,
		TimingsMS: timings,
	}

	// Step 6: optional evaluation pass. Evaluation failures degrade, never
	// fail the query.
	if req.EnableEvaluation && s.evaluator != nil {
		stage = time.Now()
		ectx, cancel := context.WithTimeout(ctx, s.cfg.EvaluateTimeout)
		result := s.evaluator.Evaluate(ectx, query, contextText, answer)
		cancel()
		resp.Evaluation = &result
		if !result.Failed && result.FinalAnswer != "" {
			resp.Answer = result.FinalAnswer
		}
		timings["evaluate"] = s.logStage("evaluate", stage, 0)
	}

	resp.Citations = compose.FormatCitations(ranked)

	// Step 7: persist for repeat queries. A failed write is a hard error.
	if err := s.cache.Set(ctx, query, resp.Answer, resp.Citations); err != nil {
		return nil, fmt.Errorf("caching answer: %w", err)
	}

	timings["total"] = time.Since(start).Milliseconds()
	s.logger.Info("query answered",
		slog.Bool("used_reask", usedReask),
		slog.Int("citations", len(resp.Citations)),
		slog.Int64("total_ms", timings["total"]))
	return resp, nil
}

// attempt assembles a context of at most maxChunks chunks and generates one
// answer. suffix is appended to the query in the prompt.
func (s *Service) attempt(ctx context.Context, query string, ranked []reranker.ScoredChunk, maxChunks int, suffix string) (answer, contextText string, used int, err error) {
	contextText, used = compose.AssembleContext(ranked, maxChunks, s.cfg.MaxContextTokens)
	prompt := buildPrompt(contextText, query+suffix)

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()
	answer, err = s.llmClient.Generate(gctx, prompt, llm.GenerateOptions{
		Model:       s.cfg.OllamaLLMModel,
		Temperature: generateTemperature,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("generating answer: %w", errors.Join(ErrBackend, err))
	}
	return answer, contextText, used, nil
}

// Ingest adds source records to the corpus.
func (s *Service) Ingest(ctx context.Context, records []corpus.SourceRecord) (ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.pipeline.Ingest(ctx, records)
	if err != nil {
		return ingest.Result{}, err
	}
	if res.ChunksAdded > 0 {
		s.version.Bump()
	}
	return res, nil
}

// IngestPaths ingests local text documents from the given files or
// directories.
func (s *Service) IngestPaths(ctx context.Context, paths []string) (ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.pipeline.IngestPaths(ctx, paths)
	if err != nil {
		return ingest.Result{}, err
	}
	if res.ChunksAdded > 0 {
		s.version.Bump()
	}
	return res, nil
}

// ClearCorpus deletes every stored chunk, invalidates derived indexes, and
// drops the answer cache.
func (s *Service) ClearCorpus(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing vector store: %w", err)
	}
	s.version.Bump()
	if err := s.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("clearing answer cache: %w", err)
	}
	s.logger.Info("corpus cleared")
	return nil
}

// Ready reports whether the vector store backend is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if _, err := s.store.Count(ctx); err != nil {
		return fmt.Errorf("vector store not reachable: %w", err)
	}
	return nil
}

func (s *Service) logStage(stage string, start time.Time, n int) int64 {
	ms := time.Since(start).Milliseconds()
	s.logger.Debug("stage complete",
		slog.String("stage", stage),
		slog.Int("items", n),
		slog.Int64("ms", ms))
	return ms
}

// filterByOrigin keeps only candidates whose origin matches one of the
// requested sources. An empty filter keeps everything.
func filterByOrigin(candidates []corpus.Chunk, sources []string) []corpus.Chunk {
	if len(sources) == 0 {
		return candidates
	}
	filtered := make([]corpus.Chunk, 0, len(candidates))
	for _, c := range candidates {
		for _, src := range sources {
			if strings.EqualFold(c.Metadata.Origin, src) {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered
}
