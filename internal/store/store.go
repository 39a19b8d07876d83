// Package store provides the entity storage interface and implementations
// for the Orkio RAG core: tenants, agents, documents, agent-document links,
// conversations, messages and the retrieval audit log.
package store

import (
	"context"

	"github.com/orkio/orkio/pkg/models"
)

// Store is the primary entity storage interface. All service and handler
// code depends on this interface, making it easy to swap the in-memory
// implementation (tests, local dev) for a SQL-backed one.
type Store interface {
	TenantStore
	AgentStore
	DocumentStore
	ConversationStore
	RetrievalEventStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Tenant Store ────────────────────────────────────────────

type TenantStore interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
}

// ── Agent Store ─────────────────────────────────────────────

type AgentStore interface {
	ListAgents(ctx context.Context, tenantID string) ([]models.Agent, error)
	GetAgent(ctx context.Context, tenantID, id string) (*models.Agent, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, tenantID, id string) error
}

// ── Document Store ──────────────────────────────────────────

type DocumentStore interface {
	ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error)
	GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error

	// UpdateDocument persists lifecycle transitions (status, error_reason,
	// chunks_count). Only the ingestion pipeline calls it.
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, tenantID, id string) error

	// Agent ↔ document N:N links. A document is retrievable by an agent
	// when it is linked to it or directly owned via Document.AgentID.
	LinkDocument(ctx context.Context, tenantID, agentID, documentID string) error
	UnlinkDocument(ctx context.Context, tenantID, agentID, documentID string) error

	// ListAgentDocumentIDs returns the IDs of READY documents an agent
	// can retrieve from: owned documents plus linked ones.
	ListAgentDocumentIDs(ctx context.Context, tenantID, agentID string) ([]string, error)
}

// ── Conversation Store ──────────────────────────────────────

type ConversationStore interface {
	GetConversation(ctx context.Context, tenantID, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, tenantID, agentID string, limit int) ([]models.Conversation, error)

	// AppendMessage adds a message to a conversation. Messages are
	// strictly ordered per conversation by insertion.
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// LastMessage returns the newest message of a conversation, or
	// ErrNotFound when the conversation is empty. Used by the stale-turn
	// guard before applying an assistant reply.
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)
}

// ── Retrieval Event Store ───────────────────────────────────

// EventFilter narrows retrieval-event listings for the audit surface.
type EventFilter struct {
	AgentID        string
	ConversationID string
	Blocked        *bool
	Limit          int // default 100
}

type RetrievalEventStore interface {
	// AppendRetrievalEvent persists one audit record. Events are
	// append-only and never mutated.
	AppendRetrievalEvent(ctx context.Context, event *models.RetrievalEvent) error

	// ListRetrievalEvents returns events for a tenant, newest first.
	ListRetrievalEvents(ctx context.Context, tenantID string, filter EventFilter) ([]models.RetrievalEvent, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
