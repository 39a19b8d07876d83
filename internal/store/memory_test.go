package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/models"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// ─── Agent CRUD ──────────────────────────────────────────────

func TestCreateAndGetAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{
		TenantID: "t1",
		Name:     "support-bot",
		Provider: "openai",
		Model:    "gpt-4o",
		UseRAG:   true,
	}

	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent() error = %v", err)
	}
	if agent.ID == "" {
		t.Fatal("CreateAgent() should assign an ID")
	}

	got, err := s.GetAgent(ctx, "t1", agent.ID)
	if err != nil {
		t.Fatalf("GetAgent() error = %v", err)
	}
	if got.Name != "support-bot" {
		t.Errorf("GetAgent().Name = %q, want %q", got.Name, "support-bot")
	}
	if !got.UseRAG {
		t.Error("GetAgent().UseRAG = false, want true")
	}
}

func TestGetAgentWrongTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{TenantID: "t1", Name: "scoped"}
	s.CreateAgent(ctx, agent)

	_, err := s.GetAgent(ctx, "t2", agent.ID)
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("GetAgent() from another tenant error = %v, want *ErrNotFound", err)
	}
}

func TestListAgents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a1", "a2", "a3"} {
		s.CreateAgent(ctx, &models.Agent{TenantID: "t1", Name: name})
	}
	s.CreateAgent(ctx, &models.Agent{TenantID: "t2", Name: "other"})

	agents, err := s.ListAgents(ctx, "t1")
	if err != nil {
		t.Fatalf("ListAgents() error = %v", err)
	}
	if len(agents) != 3 {
		t.Errorf("ListAgents() returned %d agents, want 3", len(agents))
	}
}

func TestUpdateAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{TenantID: "t1", Name: "upd", Model: "gpt-4o-mini"}
	s.CreateAgent(ctx, agent)

	agent.Model = "gpt-4o"
	if err := s.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("UpdateAgent() error = %v", err)
	}

	got, _ := s.GetAgent(ctx, "t1", agent.ID)
	if got.Model != "gpt-4o" {
		t.Errorf("After update, Model = %q, want %q", got.Model, "gpt-4o")
	}
}

func TestDeleteAgentRemovesLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{TenantID: "t1", Name: "del"}
	s.CreateAgent(ctx, agent)
	doc := &models.Document{TenantID: "t1", Filename: "kb.md", Status: models.DocumentReady}
	s.CreateDocument(ctx, doc)
	s.LinkDocument(ctx, "t1", agent.ID, doc.ID)

	if err := s.DeleteAgent(ctx, "t1", agent.ID); err != nil {
		t.Fatalf("DeleteAgent() error = %v", err)
	}

	if _, err := s.GetAgent(ctx, "t1", agent.ID); err == nil {
		t.Error("GetAgent() after delete should return error, got nil")
	}
	ids, _ := s.ListAgentDocumentIDs(ctx, "t1", agent.ID)
	if len(ids) != 0 {
		t.Errorf("ListAgentDocumentIDs() after agent delete returned %d, want 0", len(ids))
	}
}

// ─── Documents & Links ───────────────────────────────────────

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &models.Document{TenantID: "t1", Filename: "faq.md"}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if doc.Status != models.DocumentPending {
		t.Errorf("New document status = %q, want %q", doc.Status, models.DocumentPending)
	}

	doc.Status = models.DocumentReady
	doc.ChunksCount = 7
	if err := s.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}

	got, _ := s.GetDocument(ctx, "t1", doc.ID)
	if got.Status != models.DocumentReady || got.ChunksCount != 7 {
		t.Errorf("After update, status=%q chunks=%d, want %q/7", got.Status, got.ChunksCount, models.DocumentReady)
	}
}

func TestListAgentDocumentIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{TenantID: "t1", Name: "kb-agent"}
	s.CreateAgent(ctx, agent)

	// Owned and READY: retrievable.
	owned := &models.Document{TenantID: "t1", AgentID: agent.ID, Filename: "owned.md", Status: models.DocumentReady}
	s.CreateDocument(ctx, owned)
	// Linked and READY: retrievable.
	linked := &models.Document{TenantID: "t1", Filename: "linked.md", Status: models.DocumentReady}
	s.CreateDocument(ctx, linked)
	s.LinkDocument(ctx, "t1", agent.ID, linked.ID)
	// Linked but still PENDING: excluded.
	pending := &models.Document{TenantID: "t1", Filename: "pending.md"}
	s.CreateDocument(ctx, pending)
	s.LinkDocument(ctx, "t1", agent.ID, pending.ID)
	// Owned AND linked: deduplicated.
	s.LinkDocument(ctx, "t1", agent.ID, owned.ID)

	ids, err := s.ListAgentDocumentIDs(ctx, "t1", agent.ID)
	if err != nil {
		t.Fatalf("ListAgentDocumentIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ListAgentDocumentIDs() returned %v, want 2 IDs", ids)
	}
}

func TestLinkDocumentUnknownDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{TenantID: "t1", Name: "a"}
	s.CreateAgent(ctx, agent)

	err := s.LinkDocument(ctx, "t1", agent.ID, "nope")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("LinkDocument() with unknown document error = %v, want *ErrNotFound", err)
	}
}

func TestDeleteDocumentRemovesLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := &models.Agent{TenantID: "t1", Name: "a"}
	s.CreateAgent(ctx, agent)
	doc := &models.Document{TenantID: "t1", Filename: "gone.md", Status: models.DocumentReady}
	s.CreateDocument(ctx, doc)
	s.LinkDocument(ctx, "t1", agent.ID, doc.ID)

	if err := s.DeleteDocument(ctx, "t1", doc.ID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	ids, _ := s.ListAgentDocumentIDs(ctx, "t1", agent.ID)
	if len(ids) != 0 {
		t.Errorf("ListAgentDocumentIDs() after document delete returned %d, want 0", len(ids))
	}
}

// ─── Conversations & Messages ────────────────────────────────

func TestMessageOrderingAndLastMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &models.Conversation{TenantID: "t1", AgentID: "a1", Title: "Hello"}
	s.CreateConversation(ctx, conv)

	for i := 0; i < 3; i++ {
		s.AppendMessage(ctx, &models.Message{
			ConversationID: conv.ID,
			Role:           "user",
			Content:        fmt.Sprintf("msg-%d", i),
		})
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("ListMessages() returned %d, want 3", len(msgs))
	}
	for i, msg := range msgs {
		if want := fmt.Sprintf("msg-%d", i); msg.Content != want {
			t.Errorf("messages[%d].Content = %q, want %q", i, msg.Content, want)
		}
	}

	last, err := s.LastMessage(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LastMessage() error = %v", err)
	}
	if last.Content != "msg-2" {
		t.Errorf("LastMessage().Content = %q, want %q", last.Content, "msg-2")
	}
}

func TestLastMessageEmptyConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LastMessage(context.Background(), "empty")
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("LastMessage() on empty conversation error = %v, want *ErrNotFound", err)
	}
}

func TestListConversationsFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		s.CreateConversation(ctx, &models.Conversation{TenantID: "t1", AgentID: "a1"})
	}
	s.CreateConversation(ctx, &models.Conversation{TenantID: "t1", AgentID: "a2"})

	convs, err := s.ListConversations(ctx, "t1", "a1", 2)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("ListConversations() returned %d, want 2 (limit)", len(convs))
	}
	for _, c := range convs {
		if c.AgentID != "a1" {
			t.Errorf("ListConversations() returned agent %q, want a1", c.AgentID)
		}
	}
}

// ─── Retrieval Events ────────────────────────────────────────

func TestRetrievalEventsNewestFirstAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.AppendRetrievalEvent(ctx, &models.RetrievalEvent{
			TenantID: "t1",
			AgentID:  "a1",
			Query:    fmt.Sprintf("q-%d", i),
			Blocked:  i == 2,
		})
	}
	s.AppendRetrievalEvent(ctx, &models.RetrievalEvent{TenantID: "t2", AgentID: "a1", Query: "other-tenant"})

	events, err := s.ListRetrievalEvents(ctx, "t1", store.EventFilter{})
	if err != nil {
		t.Fatalf("ListRetrievalEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("ListRetrievalEvents() returned %d, want 3", len(events))
	}
	if events[0].Query != "q-2" {
		t.Errorf("events[0].Query = %q, want newest first (q-2)", events[0].Query)
	}

	blocked := true
	events, _ = s.ListRetrievalEvents(ctx, "t1", store.EventFilter{Blocked: &blocked})
	if len(events) != 1 || !events[0].Blocked {
		t.Errorf("Blocked filter returned %d events, want exactly the 1 blocked one", len(events))
	}

	events, _ = s.ListRetrievalEvents(ctx, "t1", store.EventFilter{Limit: 2})
	if len(events) != 2 {
		t.Errorf("Limit=2 returned %d events, want 2", len(events))
	}
}
