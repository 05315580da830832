package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/ragcore-dev/docrag/internal/answer"
	"github.com/ragcore-dev/docrag/internal/chunker"
	"github.com/ragcore-dev/docrag/internal/config"
	"github.com/ragcore-dev/docrag/internal/convmemory"
	"github.com/ragcore-dev/docrag/internal/docstore"
	"github.com/ragcore-dev/docrag/internal/embedder"
	"github.com/ragcore-dev/docrag/internal/ingestion"
	"github.com/ragcore-dev/docrag/internal/llm"
	"github.com/ragcore-dev/docrag/internal/pgpool"
	"github.com/ragcore-dev/docrag/internal/registry"
	"github.com/ragcore-dev/docrag/internal/reranker"
	"github.com/ragcore-dev/docrag/internal/retrieval"
	"github.com/ragcore-dev/docrag/internal/server"
	"github.com/ragcore-dev/docrag/internal/urlvalidator"
	"github.com/ragcore-dev/docrag/internal/vectorstore"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("starting docrag service", "http_port", cfg.HTTPPort, "environment", cfg.Environment)

	db, err := pgpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.Dimension); err != nil {
		return fmt.Errorf("failed to ensure Qdrant collection: %w", err)
	}
	slog.Info("connected to Qdrant", "collection", cfg.Collection)

	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.OllamaEmbeddingModel,
	})
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)

	reg, err := registry.New(cfg.RegistryHost, cfg.RegistryEntries)
	if err != nil {
		return fmt.Errorf("failed to build repo registry: %w", err)
	}
	validator := urlvalidator.New(reg, urlvalidator.Config{
		ReachableTimeout: cfg.URLReachableTimeout,
		CacheTTL:         cfg.URLCacheTTL,
		TrustedDomains:   cfg.TrustedDomains,
	})

	llmReranker := reranker.NewLLMReranker(llmClient)
	retrievalSvc := retrieval.New(embed, vectorStore, llmReranker, retrieval.Config{
		TopK:               cfg.TopK,
		TopKRaw:            cfg.TopKRaw,
		RelevanceThreshold: cfg.RelevanceThreshold,
		Blocklist:          cfg.Blocklist,
		RerankerEnabled:    cfg.RerankerEnabled,
	})

	convStore := convmemory.NewPostgresStore(db.Pool)
	memory := convmemory.New(convStore, llmClient, convmemory.Config{
		MaxMessages:             cfg.MaxMessages,
		MaxHistoryTokens:        cfg.MaxHistoryTokens,
		MaxSummarizationRetries: cfg.MaxSummarizationRetries,
		SummarizationDisabled:   cfg.SummarizationDisabled,
	})

	answerOrch := answer.New(memory, retrievalSvc, llmClient, validator, answer.Config{
		Model: cfg.OllamaLLMModel,
	})

	docs := docstore.NewPostgresStore(db.Pool)
	ch := chunker.New(chunker.Config{
		ChunkSize:    cfg.ChunkSize,
		Overlap:      cfg.ChunkOverlap,
		MinChunkSize: cfg.MinChunkSize,
		PreSplitSize: cfg.PreSplitSize,
	})
	ingestionOrch := ingestion.New(docs, vectorStore, embed, ch, ingestion.SystemMemoryProbe{}, ingestion.Config{
		MaxFileBytes:       cfg.MaxFileBytes,
		MaxContentChars:    cfg.MaxContentChars,
		EmbedBatchSize:     cfg.EmbedBatchSize,
		MemWarnThreshold:   cfg.MemWarnThreshold,
		MemCriticalThresh:  cfg.MemCriticalThresh,
		MemWarnWaitSeconds: cfg.MemWarnWaitSeconds,
		MemDropWaitSeconds: cfg.MemDropWaitSeconds,
		FetchRetryBase:     cfg.FetchRetryBase,
		FetchRetryCap:      cfg.FetchRetryCap,
		FetchRetryMaxTries: cfg.FetchRetryMaxTries,
	})
	jobs := ingestion.NewPostgresJobStore(db.Pool)

	var ghClient *github.Client
	if cfg.GitHubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		ghClient = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		ghClient = github.NewClient(nil)
	}

	srv := server.New(server.Config{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"},
	}, server.Deps{
		IngestionOrchestrator: ingestionOrch,
		Jobs:                  jobs,
		AnswerOrchestrator:    answerOrch,
		GitHubClient:          ghClient,
		Store:                 vectorStoreChecker{store: vectorStore, dimension: cfg.Dimension},
		Embedder:              embedderChecker{embed},
		LLM:                   llmChecker{llmClient},
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// vectorStoreChecker, embedderChecker, and llmChecker adapt each dependency
// to server.Checker for the /health endpoint.
type vectorStoreChecker struct {
	store     *vectorstore.QdrantStore
	dimension int
}

func (c vectorStoreChecker) Check(ctx context.Context) error {
	_, err := c.store.Search(ctx, make([]float32, c.dimension), 1, nil)
	return err
}

type embedderChecker struct{ emb embedder.Embedder }

func (c embedderChecker) Check(ctx context.Context) error {
	_, err := c.emb.Embed(ctx, "ping")
	return err
}

type llmChecker struct{ llm llm.LLM }

func (c llmChecker) Check(ctx context.Context) error {
	_, err := c.llm.Generate(ctx, "ping", llm.GenerateOptions{MaxTokens: 1})
	return err
}
