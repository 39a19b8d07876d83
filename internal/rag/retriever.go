// Package rag implements the retrieval-augmented generation pipeline:
// scoped similarity retrieval, context assembly and injection, the
// zero-hit circuit breaker and the append-only retrieval audit log.
package rag

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

var tracer = otel.Tracer("orkio-rag")

// Retrieval defaults, overridable per deployment and per agent.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.6
)

// RetrieverConfig carries the deployment defaults for retrieval.
// A nil Threshold means DefaultThreshold; an explicit 0 is valid.
type RetrieverConfig struct {
	TopK         int
	Threshold    *float64
	EmbedTimeout time.Duration // explicit cap on the query embedding call
}

// Retriever orchestrates one scoped retrieval: embed the query, search
// the vector store within the agent's document set, keep hits above
// the similarity threshold, return at most top-k.
type Retriever struct {
	embedder contracts.EmbeddingDriver
	vectors  contracts.VectorStore
	store    store.Store
	cfg      RetrieverConfig
}

// NewRetriever creates a retriever with the given deployment defaults.
func NewRetriever(embedder contracts.EmbeddingDriver, vectors contracts.VectorStore, s store.Store, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Threshold == nil {
		d := DefaultThreshold
		cfg.Threshold = &d
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	return &Retriever{embedder: embedder, vectors: vectors, store: s, cfg: cfg}
}

// Query is one retrieval request. A positive TopK and a non-nil
// Threshold override the deployment defaults (agents carry such
// overrides). Scores span [-1,1], so a zero threshold is meaningful
// and distinct from "no override".
type Query struct {
	TenantID  string
	AgentID   string
	Text      string
	TopK      int
	Threshold *float64
}

// Retrieve returns the ranked matches for a query, scoped to the
// documents the agent can read. Zero hits is a normal outcome, not an
// error. Provider failures surface as *RetrievalError; a cross-tenant
// result surfaces as *TenantScopeError and yields no results at all.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]models.ChunkMatch, error) {
	ctx, span := tracer.Start(ctx, "rag.retrieve")
	defer span.End()
	start := time.Now()

	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	threshold := *r.cfg.Threshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	// No linked documents → empty result without spending an embedding
	// call on the provider.
	docIDs, err := r.store.ListAgentDocumentIDs(ctx, q.TenantID, q.AgentID)
	if err != nil {
		return nil, &RetrievalError{Stage: "search", Err: err}
	}
	if len(docIDs) == 0 {
		span.SetAttributes(attribute.Int("rag.hits", 0), attribute.Bool("rag.short_circuit", true))
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()
	vectors, err := r.embedder.Embed(embedCtx, []string{q.Text})
	if err != nil {
		return nil, &RetrievalError{Stage: "embed", Err: err}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &RetrievalError{Stage: "embed", Err: embeddingsMissingErr}
	}

	matches, err := r.vectors.Search(ctx, models.VectorQuery{
		TenantID:    q.TenantID,
		DocumentIDs: docIDs,
		Embedding:   vectors[0],
		TopK:        topK,
		Threshold:   threshold,
	})
	if err != nil {
		return nil, &RetrievalError{Stage: "search", Err: err}
	}

	// Last-line tenant assertion over the store's structural scoping.
	for _, m := range matches {
		if m.Chunk.TenantID != q.TenantID {
			log.Error().
				Str("tenant", q.TenantID).
				Str("chunk_tenant", m.Chunk.TenantID).
				Str("chunk", m.Chunk.ID).
				Msg("tenant scope violation in search results")
			return nil, &TenantScopeError{TenantID: q.TenantID, ChunkTenantID: m.Chunk.TenantID, ChunkID: m.Chunk.ID}
		}
	}

	// Enrich hits with document metadata for citations.
	for i := range matches {
		doc, err := r.store.GetDocument(ctx, q.TenantID, matches[i].Chunk.DocumentID)
		if err != nil {
			continue
		}
		matches[i].Document = models.DocMeta{ID: doc.ID, Filename: doc.Filename}
	}

	span.SetAttributes(
		attribute.Int("rag.hits", len(matches)),
		attribute.Int("rag.top_k", topK),
		attribute.Float64("rag.threshold", threshold),
	)
	log.Debug().
		Str("tenant", q.TenantID).
		Str("agent", q.AgentID).
		Int("documents", len(docIDs)).
		Int("hits", len(matches)).
		Dur("elapsed", time.Since(start)).
		Msg("retrieval complete")

	return matches, nil
}

// embeddingsMissingErr covers a provider replying 200 with no vectors.
var embeddingsMissingErr = errNoEmbedding{}

type errNoEmbedding struct{}

func (errNoEmbedding) Error() string { return "no embedding returned for query" }
