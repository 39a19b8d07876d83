// Package models defines the data model shared across the Orkio RAG core:
// tenants, agents, documents, knowledge chunks, conversations and the
// append-only retrieval audit log.
package models

import "time"

// ── Tenancy ─────────────────────────────────────────────────

// Tenant is the top-level isolation boundary. Every document, agent,
// chunk and retrieval event belongs to exactly one tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Agents ──────────────────────────────────────────────────

// Agent is a configured chat persona owned by a single tenant.
// When UseRAG is set, chat turns retrieve context from the documents
// linked to the agent before calling the model.
type Agent struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Provider     string  `json:"provider"` // chat driver name: openai, anthropic, ollama
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	UseRAG       bool    `json:"use_rag"`

	// FallbackAllowed overrides the deployment-wide circuit breaker
	// fallback setting for this agent. Nil means "use the deployment
	// default".
	FallbackAllowed *bool `json:"fallback_allowed,omitempty"`

	// Retrieval overrides. Zero TopK and nil SimilarityThreshold mean
	// "use the deployment default"; an explicit threshold of 0 (or
	// negative, scores span [-1,1]) is a valid override.
	TopK                int      `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ── Documents & Chunks ──────────────────────────────────────

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentReady      DocumentStatus = "READY"
	DocumentError      DocumentStatus = "ERROR"
)

// Document is an uploaded knowledge source. The core receives its
// already-extracted plain text; parsing PDFs etc. happens upstream.
// Documents are mutated only by the ingestion pipeline.
type Document struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	AgentID     string         `json:"agent_id,omitempty"` // optional direct owner
	Filename    string         `json:"filename"`
	StoragePath string         `json:"storage_path,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	Tags        []string       `json:"tags,omitempty"`
	Status      DocumentStatus `json:"status"`
	ErrorReason string         `json:"error_reason,omitempty"`
	ChunksCount int            `json:"chunks_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Chunk is one token-bounded segment of a document's text together
// with its embedding. Chunks are immutable once their document reaches
// READY and are deleted in cascade with the document.
type Chunk struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"` // 0-based, contiguous per document
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkMatch is one similarity-search hit: a chunk, its cosine score
// and the metadata of the owning document.
type ChunkMatch struct {
	Chunk    Chunk   `json:"chunk"`
	Score    float64 `json:"score"` // cosine similarity in [-1, 1]
	Document DocMeta `json:"document"`
}

// DocMeta is the slice of Document surfaced alongside search hits.
type DocMeta struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// VectorQuery describes one scoped nearest-neighbor search.
// TenantID and DocumentIDs are mandatory scoping: the store must be
// structurally incapable of returning chunks outside them.
type VectorQuery struct {
	TenantID    string
	DocumentIDs []string
	Embedding   []float32
	TopK        int
	// Threshold discards hits whose cosine similarity is below it.
	Threshold float64
}

// ── Conversations ───────────────────────────────────────────

// Conversation groups the ordered messages of one chat thread.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single turn entry. Role is "user" or "assistant".
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ── Retrieval audit log ─────────────────────────────────────

// Citation links an answer back to the document/chunk that supported it.
type Citation struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkID       string  `json:"chunk_id"`
	ChunkIndex    int     `json:"chunk_index"`
	Relevance     float64 `json:"relevance"` // rounded to 2 decimals
}

// RetrievalEvent is the append-only audit record written for every
// retrieval — successful, empty or blocked. Never mutated.
type RetrievalEvent struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	AgentID         string     `json:"agent_id"`
	ConversationID  string     `json:"conversation_id,omitempty"`
	MessageID       string     `json:"message_id,omitempty"`
	Query           string     `json:"query"`
	ChunksRetrieved int        `json:"chunks_retrieved"` // hits above threshold
	ChunksUsed      int        `json:"chunks_used"`      // chunks actually injected
	DurationMS      int64      `json:"duration_ms"`
	Blocked         bool       `json:"blocked"` // circuit breaker fired
	Reason          string     `json:"reason,omitempty"`
	Citations       []Citation `json:"citations,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Event reasons recorded when a retrieval produced no usable context.
const (
	ReasonNoDocumentsLinked = "no_documents_linked"
	ReasonEmbeddingFailed   = "embedding_failed"
	ReasonCircuitBreaker    = "circuit_breaker"
)

// ── Chat turn API ───────────────────────────────────────────

// ChatMessage is one entry of the history sent to a chat driver.
type ChatMessage struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// TurnRequest is one user chat turn against an agent.
type TurnRequest struct {
	TenantID       string        `json:"-"`
	AgentID        string        `json:"agent_id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Message        string        `json:"message"`
	History        []ChatMessage `json:"history,omitempty"`
}

// TurnResult is the outcome of a chat turn.
type TurnResult struct {
	Reply          string     `json:"reply"`
	ConversationID string     `json:"conversation_id"`
	CircuitBreaker bool       `json:"circuit_breaker"`
	Degraded       bool       `json:"degraded,omitempty"` // retrieval failed, answered without context
	Sources        []Citation `json:"sources,omitempty"`
}
