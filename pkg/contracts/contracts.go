// Package contracts defines the capability interfaces the Orkio core
// depends on: embedding providers, vector stores and chat drivers.
//
// Handlers and services depend on these interfaces, so swapping the
// embedded in-memory vector store for pgvector — or OpenAI embeddings
// for Ollama — is a single line change in the wiring code (pkg/server).
package contracts

import (
	"context"

	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/models"
)

// Store is a type alias for the internal entity store interface,
// exposed in pkg/ so external wiring code can reference it without
// importing internal/ directly.
type Store = store.Store

// ErrNotFound is a type alias for the internal not-found error.
type ErrNotFound = store.ErrNotFound

// ── Embedding capability ────────────────────────────────────

// EmbeddingDriver converts text into fixed-dimension dense vectors.
//
// Embed must either return one vector per input text or an error —
// never a zero vector standing in for a failed call: a zero vector
// would silently rank as "dissimilar to everything" downstream.
type EmbeddingDriver interface {
	// Kind returns the provider identifier (e.g. "openai", "ollama").
	Kind() string

	// Dimensions returns the fixed vector dimension D this driver
	// produces. Constant for a given model choice.
	Dimensions() int

	// MaxBatchSize returns the maximum number of texts per Embed call.
	MaxBatchSize() int

	// Embed generates one embedding per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// ── Vector store capability ─────────────────────────────────

// VectorStore persists chunks with embeddings and serves scoped
// nearest-neighbor search ranked by cosine similarity.
//
// Scoping (tenant + document set) is enforced inside the store's own
// query, not filtered after the fact: a search scoped to tenant A must
// be structurally incapable of returning tenant B's chunks.
type VectorStore interface {
	// Kind returns the backend identifier (e.g. "pgvector", "embedded").
	Kind() string

	// Dimensions returns the embedding dimension the store was
	// provisioned for.
	Dimensions() int

	// UpsertChunks writes a batch of chunks. Idempotent per
	// (document_id, chunk_index): re-ingesting replaces prior rows.
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error

	// Search returns at most TopK chunks above Threshold, ordered by
	// score descending with ties broken by ascending chunk_index.
	// Returns *DimensionMismatchError when the query vector dimension
	// disagrees with stored embeddings.
	Search(ctx context.Context, q models.VectorQuery) ([]models.ChunkMatch, error)

	// DeleteDocument removes every chunk of the given document.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error
}

// ── Chat capability ─────────────────────────────────────────

// ChatRequest is one chat-completion call. The core treats the model
// as opaque: no internal retries, no streaming.
type ChatRequest struct {
	Model       string
	Temperature float64
	Messages    []models.ChatMessage
}

// ChatResponse carries the completion text and token accounting.
type ChatResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// ChatDriver sends chat completions to one model provider backend.
type ChatDriver interface {
	// Kind returns the provider identifier (e.g. "openai", "anthropic").
	Kind() string

	// Complete sends the message history and returns the model's reply.
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}
