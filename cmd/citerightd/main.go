package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/citeright/citeright/internal/cache"
	"github.com/citeright/citeright/internal/config"
	"github.com/citeright/citeright/internal/corpus"
	"github.com/citeright/citeright/internal/embedder"
	"github.com/citeright/citeright/internal/evaluator"
	"github.com/citeright/citeright/internal/ingest"
	"github.com/citeright/citeright/internal/lexical"
	"github.com/citeright/citeright/internal/llm"
	"github.com/citeright/citeright/internal/reranker"
	"github.com/citeright/citeright/internal/retriever"
	"github.com/citeright/citeright/internal/server"
	"github.com/citeright/citeright/internal/service"
	"github.com/citeright/citeright/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting CiteRight service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"cache_backend", cfg.CacheBackend,
	)

	// Initialize the answer cache backend
	answerCache, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize answer cache: %w", err)
	}
	defer closeCache()
	slog.Info("connected answer cache", "backend", cfg.CacheBackend)

	// Initialize Ollama embedder
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.CollectionName, embed.Dimension())
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	slog.Info("connected to Qdrant", "collection", cfg.CollectionName)

	// Initialize Ollama LLM clients
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)

	rerankClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaRerankerModel),
	)
	rerank := reranker.NewLLMReranker(rerankClient,
		reranker.WithModel(cfg.OllamaRerankerModel),
	)
	slog.Info("initialized reranker", "model", cfg.OllamaRerankerModel)

	// Wire the retrieval pipeline
	version := &corpus.Version{}
	sparse := lexical.NewIndex(vectorStore, version)
	merger := retriever.NewHybridMerger(embed, vectorStore, sparse)

	pipeline := ingest.NewPipeline(
		ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embed, vectorStore, slog.Default(),
	)

	eval := evaluator.New(llmClient, cfg.OllamaLLMModel)

	svc := service.New(cfg, merger, rerank, llmClient, answerCache, vectorStore, version, pipeline,
		service.WithEvaluator(eval),
		service.WithLogger(slog.Default()),
	)

	// Create HTTP server
	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Service:        svc,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// newCache builds the configured answer cache backend and returns it with
// its close function.
func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	case "postgres":
		c, err := cache.NewPostgresCache(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Ensure interfaces are satisfied at compile time
var (
	_ vectorstore.VectorStore = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder       = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                 = (*llm.OllamaClient)(nil)
	_ reranker.Reranker       = (*reranker.LLMReranker)(nil)
	_ cache.Cache             = (*cache.PostgresCache)(nil)
	_ cache.Cache             = (*cache.RedisCache)(nil)
)
