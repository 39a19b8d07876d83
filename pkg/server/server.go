// Package server provides the public entry point for initializing the
// Orkio RAG core server.
//
// This package exists in pkg/ (not internal/) so embedding products can
// import it and compose the full server with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/internal/api"
	"github.com/orkio/orkio/internal/api/handlers"
	"github.com/orkio/orkio/internal/chat"
	"github.com/orkio/orkio/internal/chunker"
	"github.com/orkio/orkio/internal/config"
	"github.com/orkio/orkio/internal/embeddings"
	"github.com/orkio/orkio/internal/llm"
	"github.com/orkio/orkio/internal/rag"
	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/internal/telemetry"
	"github.com/orkio/orkio/internal/vectorstore"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

// Server holds the initialized Orkio core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the entity store.
	Store store.Store

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry and release the vector store.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the core with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	telemetryShutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore := store.NewMemoryStore()
	log.Info().Msg("✅ In-memory store initialized")

	seedDefaultTenant(ctx, dataStore)

	// Embedding driver per config, behind the shared registry.
	embedRegistry := embeddings.NewRegistry()
	openaiEmbed := embeddings.NewOpenAIDriver(cfg.Embedding.OpenAIAPIKey, "text-embedding-3-small")
	ollamaEmbed := embeddings.NewOllamaDriver(cfg.Embedding.OllamaEndpoint, "nomic-embed-text")
	embedRegistry.Register("openai", openaiEmbed)
	embedRegistry.Register("ollama", ollamaEmbed)

	embedder, err := embedRegistry.Get(cfg.Embedding.Provider)
	if err != nil {
		return nil, fmt.Errorf("select embedding driver: %w", err)
	}
	if cfg.Embedding.Model != "" {
		switch cfg.Embedding.Provider {
		case "openai":
			embedder = embeddings.NewOpenAIDriver(cfg.Embedding.OpenAIAPIKey, cfg.Embedding.Model)
		case "ollama":
			embedder = embeddings.NewOllamaDriver(cfg.Embedding.OllamaEndpoint, cfg.Embedding.Model)
		}
		embedRegistry.Register(cfg.Embedding.Provider, embedder)
	}
	embedder = embeddings.WrapLRUCache(embedder, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)

	// Vector store: pgvector when a database is configured, embedded
	// in-memory otherwise.
	var (
		vectors       contracts.VectorStore
		vectorsCloser func()
	)
	if cfg.Database.URL != "" {
		pg, err := vectorstore.NewPgvectorStore(ctx, cfg.Database.URL, embedder.Dimensions())
		if err != nil {
			return nil, fmt.Errorf("init pgvector store: %w", err)
		}
		vectors = pg
		vectorsCloser = pg.Close
		log.Info().Int("dims", embedder.Dimensions()).Msg("✅ pgvector store initialized")
	} else {
		vectors = vectorstore.NewEmbeddedStore(embedder.Dimensions())
		log.Info().Int("dims", embedder.Dimensions()).Msg("✅ Embedded vector store initialized")
	}

	ch, err := chunker.NewChunker(chunker.Config{
		ChunkSize: cfg.Chunking.ChunkSize,
		Overlap:   cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	ingester := rag.NewIngester(dataStore, ch, embedder, vectors)
	retriever := rag.NewRetriever(embedder, vectors, dataStore, rag.RetrieverConfig{
		TopK:         cfg.Retrieval.TopK,
		Threshold:    &cfg.Retrieval.SimilarityThreshold,
		EmbedTimeout: cfg.Retrieval.EmbedTimeout,
	})
	builder := rag.NewContextBuilder(cfg.Retrieval.MaxCharsPerChunk)
	recorder := rag.NewRecorder(dataStore)

	chatDrivers := llm.NewRegistry()
	chatDrivers.Register("openai", llm.NewOpenAIDriver(cfg.Chat.OpenAIAPIKey))
	chatDrivers.Register("anthropic", llm.NewAnthropicDriver(cfg.Chat.AnthropicAPIKey))
	chatDrivers.Register("ollama", llm.NewOllamaDriver(llm.WithOllamaBaseURL(cfg.Chat.OllamaEndpoint)))

	chatSvc := chat.NewService(dataStore, retriever, builder, recorder, chatDrivers, chat.Config{
		FallbackAllowed: cfg.Retrieval.FallbackAllowed,
		LLMTimeout:      cfg.Chat.LLMTimeout,
	})

	log.Info().Msg("✅ RAG pipeline initialized")

	h := handlers.New(dataStore, ingester, retriever, chatSvc, embedRegistry, chatDrivers, vectors)
	router := api.NewRouter(cfg, h)

	shutdown := func(ctx context.Context) error {
		if vectorsCloser != nil {
			vectorsCloser()
		}
		return telemetryShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func seedDefaultTenant(ctx context.Context, s store.Store) {
	if _, err := s.GetTenant(ctx, "default"); err == nil {
		return
	}
	t := &models.Tenant{
		ID:        "default",
		Name:      "Default Tenant",
		Slug:      "default",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateTenant(ctx, t); err != nil {
		log.Warn().Err(err).Msg("Failed to seed default tenant")
	} else {
		log.Info().Msg("✅ Default tenant seeded")
	}
}
