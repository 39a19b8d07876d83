// Package store — in-memory Store implementation.
// Used for tests and zero-configuration local deployments.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orkio/orkio/pkg/models"
)

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	tenants       map[string]*models.Tenant       // key: id
	agents        map[string]*models.Agent        // key: tenant:id
	documents     map[string]*models.Document     // key: tenant:id
	links         map[string]map[string]bool      // key: tenant:agent → set of document IDs
	conversations map[string]*models.Conversation // key: tenant:id
	messages      map[string][]*models.Message    // key: conversation_id, insertion order
	events        []*models.RetrievalEvent        // append-only log
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[string]*models.Tenant),
		agents:        make(map[string]*models.Agent),
		documents:     make(map[string]*models.Document),
		links:         make(map[string]map[string]bool),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		events:        make([]*models.RetrievalEvent, 0),
	}
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }
func (m *MemoryStore) Close() error                 { return nil }

func key(tenantID, id string) string { return tenantID + ":" + id }

// ─── Tenants ─────────────────────────────────────────────────

func (m *MemoryStore) ListTenants(_ context.Context) ([]models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "tenant", Key: id}
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now()
	}
	cp := *tenant
	m.tenants[tenant.ID] = &cp
	return nil
}

// ─── Agents ──────────────────────────────────────────────────

func (m *MemoryStore) ListAgents(_ context.Context, tenantID string) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Agent
	for _, a := range m.agents {
		if a.TenantID == tenantID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetAgent(_ context.Context, tenantID, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[key(tenantID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	cp := *agent
	m.agents[key(agent.TenantID, agent.ID)] = &cp
	return nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(agent.TenantID, agent.ID)
	if _, ok := m.agents[k]; !ok {
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	agent.UpdatedAt = time.Now()
	cp := *agent
	m.agents[k] = &cp
	return nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, id)
	if _, ok := m.agents[k]; !ok {
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	delete(m.agents, k)
	delete(m.links, k)
	return nil
}

// ─── Documents ───────────────────────────────────────────────

func (m *MemoryStore) ListDocuments(_ context.Context, tenantID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.documents {
		if d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetDocument(_ context.Context, tenantID, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[key(tenantID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "document", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.DocumentPending
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	cp := *doc
	m.documents[key(doc.TenantID, doc.ID)] = &cp
	return nil
}

func (m *MemoryStore) UpdateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(doc.TenantID, doc.ID)
	if _, ok := m.documents[k]; !ok {
		return &ErrNotFound{Entity: "document", Key: doc.ID}
	}
	doc.UpdatedAt = time.Now()
	cp := *doc
	m.documents[k] = &cp
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, id)
	if _, ok := m.documents[k]; !ok {
		return &ErrNotFound{Entity: "document", Key: id}
	}
	delete(m.documents, k)
	for _, set := range m.links {
		delete(set, id)
	}
	return nil
}

func (m *MemoryStore) LinkDocument(_ context.Context, tenantID, agentID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[key(tenantID, agentID)]; !ok {
		return &ErrNotFound{Entity: "agent", Key: agentID}
	}
	if _, ok := m.documents[key(tenantID, documentID)]; !ok {
		return &ErrNotFound{Entity: "document", Key: documentID}
	}
	k := key(tenantID, agentID)
	if m.links[k] == nil {
		m.links[k] = make(map[string]bool)
	}
	m.links[k][documentID] = true
	return nil
}

func (m *MemoryStore) UnlinkDocument(_ context.Context, tenantID, agentID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.links[key(tenantID, agentID)]; ok {
		delete(set, documentID)
	}
	return nil
}

func (m *MemoryStore) ListAgentDocumentIDs(_ context.Context, tenantID, agentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	add := func(docID string) {
		d, ok := m.documents[key(tenantID, docID)]
		if !ok || d.Status != models.DocumentReady {
			return
		}
		if !seen[docID] {
			seen[docID] = true
			out = append(out, docID)
		}
	}

	for docID := range m.links[key(tenantID, agentID)] {
		add(docID)
	}
	for _, d := range m.documents {
		if d.TenantID == tenantID && d.AgentID == agentID {
			add(d.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ─── Conversations ───────────────────────────────────────────

func (m *MemoryStore) GetConversation(_ context.Context, tenantID, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[key(tenantID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	cp := *conv
	m.conversations[key(conv.TenantID, conv.ID)] = &cp
	return nil
}

func (m *MemoryStore) ListConversations(_ context.Context, tenantID, agentID string, limit int) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Conversation
	for _, c := range m.conversations {
		if c.TenantID != tenantID {
			continue
		}
		if agentID != "" && c.AgentID != agentID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	out := make([]models.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = *msg
	}
	return out, nil
}

func (m *MemoryStore) LastMessage(_ context.Context, conversationID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	if len(msgs) == 0 {
		return nil, &ErrNotFound{Entity: "message", Key: conversationID}
	}
	cp := *msgs[len(msgs)-1]
	return &cp, nil
}

// ─── Retrieval Events ────────────────────────────────────────

func (m *MemoryStore) AppendRetrievalEvent(_ context.Context, event *models.RetrievalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryStore) ListRetrievalEvents(_ context.Context, tenantID string, filter EventFilter) ([]models.RetrievalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []models.RetrievalEvent
	// Newest first: walk the append-only log backwards.
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if e.TenantID != tenantID {
			continue
		}
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.ConversationID != "" && e.ConversationID != filter.ConversationID {
			continue
		}
		if filter.Blocked != nil && e.Blocked != *filter.Blocked {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}
