package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/orkio/orkio/internal/llm"
	"github.com/orkio/orkio/internal/rag"
	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/internal/vectorstore"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

// fakeChatDriver replies with a canned answer and records the last
// request it saw.
type fakeChatDriver struct {
	reply   string
	err     error
	lastReq contracts.ChatRequest
	calls   int
}

func (f *fakeChatDriver) Kind() string { return "fake" }

func (f *fakeChatDriver) Complete(_ context.Context, req contracts.ChatRequest) (*contracts.ChatResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &contracts.ChatResponse{Content: f.reply, Model: req.Model}, nil
}

func (f *fakeChatDriver) HealthCheck(_ context.Context) error { return nil }

// fakeEmbedder maps known texts to preset vectors.
type fakeEmbedder struct {
	dims    int
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Kind() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) MaxBatchSize() int { return 16 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, f.dims)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) HealthCheck(_ context.Context) error { return nil }

type fixture struct {
	svc    *Service
	store  *store.MemoryStore
	driver *fakeChatDriver
	agent  *models.Agent
}

func newFixture(t *testing.T, emb *fakeEmbedder, agent *models.Agent, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()

	s := store.NewMemoryStore()
	if err := s.CreateTenant(ctx, &models.Tenant{ID: "t1", Name: "Acme", Active: true}); err != nil {
		t.Fatal(err)
	}
	agent.TenantID = "t1"
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatal(err)
	}

	vs := vectorstore.NewEmbeddedStore(emb.dims)
	retriever := rag.NewRetriever(emb, vs, s, rag.RetrieverConfig{})
	builder := rag.NewContextBuilder(0)
	recorder := rag.NewRecorder(s)

	driver := &fakeChatDriver{reply: "resposta do modelo"}
	registry := llm.NewRegistry()
	registry.Register(agent.Provider, driver)

	return &fixture{
		svc:    NewService(s, retriever, builder, recorder, registry, cfg),
		store:  s,
		driver: driver,
		agent:  agent,
	}
}

func (fx *fixture) linkReadyDocument(t *testing.T, vs *vectorstore.EmbeddedStore) {
	t.Helper()
	ctx := context.Background()
	if err := fx.store.CreateDocument(ctx, &models.Document{
		ID: "d1", TenantID: "t1", Filename: "faq.pdf", Status: models.DocumentReady,
	}); err != nil {
		t.Fatal(err)
	}
	if err := fx.store.LinkDocument(ctx, "t1", fx.agent.ID, "d1"); err != nil {
		t.Fatal(err)
	}
	if err := vs.UpsertChunks(ctx, []models.Chunk{
		{ID: "c1", TenantID: "t1", DocumentID: "d1", ChunkIndex: 0, Content: "horário: 9h às 18h", Embedding: []float32{1, 0, 0}},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestTurnWithoutRAG(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Name: "Plain", Provider: "fake", Model: "gpt-4o-mini", SystemPrompt: "Você é direto."},
		Config{})

	res, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "oi, tudo bem?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "resposta do modelo" {
		t.Fatalf("reply = %q", res.Reply)
	}
	if res.CircuitBreaker || res.Degraded {
		t.Fatal("plain turn must not flag breaker or degradation")
	}
	if res.ConversationID == "" {
		t.Fatal("conversation not auto-created")
	}

	msgs, _ := fx.store.ListMessages(ctx, res.ConversationID)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("unexpected message log: %+v", msgs)
	}

	// RAG disabled: no retrieval event.
	events, _ := fx.store.ListRetrievalEvents(ctx, "t1", store.EventFilter{})
	if len(events) != 0 {
		t.Fatalf("expected no retrieval events, got %d", len(events))
	}

	if fx.driver.lastReq.Messages[0].Role != "system" {
		t.Fatal("system prompt missing from model request")
	}
	if strings.Contains(fx.driver.lastReq.Messages[0].Content, "Base de Conhecimento") {
		t.Fatal("context block injected without retrieval")
	}
}

func TestTurnConversationTitle(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Provider: "fake", Model: "m"}, Config{})

	long := strings.Repeat("pergunta ", 20)
	res, err := fx.svc.Turn(ctx, models.TurnRequest{TenantID: "t1", AgentID: "a1", Message: long})
	if err != nil {
		t.Fatal(err)
	}

	conv, err := fx.store.GetConversation(ctx, "t1", res.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(conv.Title, "...") {
		t.Fatalf("long title not truncated: %q", conv.Title)
	}
	if n := len([]rune(conv.Title)); n != titleLimit+3 {
		t.Fatalf("title length = %d", n)
	}
}

func TestTurnWithRAGContext(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{dims: 3, vectors: map[string][]float32{
		"qual o horário?": {1, 0, 0},
	}}
	fx := newFixture(t, emb,
		&models.Agent{ID: "a1", Provider: "fake", Model: "m", SystemPrompt: "Você ajuda.", UseRAG: true},
		Config{})

	vs := vectorstore.NewEmbeddedStore(3)
	retriever := rag.NewRetriever(emb, vs, fx.store, rag.RetrieverConfig{})
	fx.svc.retriever = retriever
	fx.linkReadyDocument(t, vs)

	res, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "qual o horário?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.CircuitBreaker {
		t.Fatal("breaker must not fire with hits")
	}
	if len(res.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(res.Sources))
	}

	system := fx.driver.lastReq.Messages[0]
	if system.Role != "system" || !strings.Contains(system.Content, "Base de Conhecimento Relevante") {
		t.Fatal("context block not injected into system prompt")
	}
	if !strings.Contains(system.Content, "horário: 9h às 18h") {
		t.Fatal("retrieved chunk text missing from prompt")
	}

	events, _ := fx.store.ListRetrievalEvents(ctx, "t1", store.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected exactly one retrieval event, got %d", len(events))
	}
	ev := events[0]
	if ev.ChunksRetrieved != 1 || ev.ChunksUsed != 1 || ev.Blocked {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Citations) != 1 {
		t.Fatalf("event citations = %d", len(ev.Citations))
	}
}

func TestTurnCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Provider: "fake", Model: "m", UseRAG: true},
		Config{FallbackAllowed: false})

	res, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "pergunta sem base",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.CircuitBreaker {
		t.Fatal("breaker must fire: RAG-only agent, zero hits")
	}
	if res.Reply != rag.BlockedReply {
		t.Fatalf("reply = %q", res.Reply)
	}
	if fx.driver.calls != 0 {
		t.Fatal("blocked turn must not call the model")
	}

	events, _ := fx.store.ListRetrievalEvents(ctx, "t1", store.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if !events[0].Blocked {
		t.Fatal("event must carry the blocked flag")
	}
	if events[0].Reason != models.ReasonNoDocumentsLinked {
		t.Fatalf("reason = %q, want %q", events[0].Reason, models.ReasonNoDocumentsLinked)
	}

	// The blocked reply is still part of the conversation.
	msgs, _ := fx.store.ListMessages(ctx, res.ConversationID)
	if len(msgs) != 2 || msgs[1].Content != rag.BlockedReply {
		t.Fatalf("blocked reply not persisted: %+v", msgs)
	}
}

func TestTurnFallbackAllowedOverride(t *testing.T) {
	ctx := context.Background()
	allowed := true
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Provider: "fake", Model: "m", UseRAG: true, FallbackAllowed: &allowed},
		Config{FallbackAllowed: false})

	res, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "pergunta sem base",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.CircuitBreaker {
		t.Fatal("per-agent fallback override must disarm the breaker")
	}
	if fx.driver.calls != 1 {
		t.Fatal("model should answer from general knowledge")
	}
}

func TestTurnEmbedFailureBlocksWithoutFallback(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{dims: 3, err: errors.New("provider down")}
	fx := newFixture(t, emb,
		&models.Agent{ID: "a1", Provider: "fake", Model: "m", UseRAG: true},
		Config{FallbackAllowed: false})

	vs := vectorstore.NewEmbeddedStore(3)
	fx.svc.retriever = rag.NewRetriever(emb, vs, fx.store, rag.RetrieverConfig{})
	fx.linkReadyDocument(t, vs)

	res, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "qual o horário?",
	})
	if err != nil {
		t.Fatal(err)
	}
	// A failed embedding is a zero-hit retrieval: without fallback the
	// breaker fires instead of letting the model answer ungrounded.
	if !res.CircuitBreaker {
		t.Fatal("embed failure without fallback must trip the breaker")
	}
	if res.Reply != rag.BlockedReply {
		t.Fatalf("reply = %q", res.Reply)
	}
	if fx.driver.calls != 0 {
		t.Fatalf("blocked turn must not call the model, got %d calls", fx.driver.calls)
	}

	events, _ := fx.store.ListRetrievalEvents(ctx, "t1", store.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if !events[0].Blocked {
		t.Fatal("event must carry the blocked flag")
	}
	if events[0].Reason != models.ReasonEmbeddingFailed {
		t.Fatalf("reason = %q, want %q", events[0].Reason, models.ReasonEmbeddingFailed)
	}
}

func TestTurnDegradedOnEmbedFailureWithFallback(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{dims: 3, err: errors.New("provider down")}
	fx := newFixture(t, emb,
		&models.Agent{ID: "a1", Provider: "fake", Model: "m", UseRAG: true},
		Config{FallbackAllowed: true})

	vs := vectorstore.NewEmbeddedStore(3)
	fx.svc.retriever = rag.NewRetriever(emb, vs, fx.store, rag.RetrieverConfig{})
	fx.linkReadyDocument(t, vs)

	res, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "qual o horário?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Fatal("embed failure with fallback must degrade, not abort")
	}
	if res.CircuitBreaker {
		t.Fatal("fallback-allowed agent must not be blocked")
	}
	if fx.driver.calls != 1 {
		t.Fatal("degraded turn still calls the model")
	}

	events, _ := fx.store.ListRetrievalEvents(ctx, "t1", store.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Blocked {
		t.Fatal("degraded turn must not record a blocked event")
	}
	if events[0].Reason != models.ReasonEmbeddingFailed {
		t.Fatalf("reason = %q, want %q", events[0].Reason, models.ReasonEmbeddingFailed)
	}
}

func TestTurnUnknownAgent(t *testing.T) {
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Provider: "fake", Model: "m"}, Config{})

	_, err := fx.svc.Turn(context.Background(), models.TurnRequest{
		TenantID: "t1", AgentID: "missing", Message: "oi",
	})
	var nf *store.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTurnModelFailure(t *testing.T) {
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Provider: "fake", Model: "m"}, Config{})
	fx.driver.err = errors.New("upstream 500")

	_, err := fx.svc.Turn(context.Background(), models.TurnRequest{
		TenantID: "t1", AgentID: "a1", Message: "oi",
	})
	if err == nil {
		t.Fatal("expected model failure to surface")
	}
}

func TestTurnContinuesConversation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, &fakeEmbedder{dims: 3},
		&models.Agent{ID: "a1", Provider: "fake", Model: "m"}, Config{})

	first, err := fx.svc.Turn(ctx, models.TurnRequest{TenantID: "t1", AgentID: "a1", Message: "primeira"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.svc.Turn(ctx, models.TurnRequest{
		TenantID: "t1", AgentID: "a1", ConversationID: first.ConversationID, Message: "segunda",
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatal("turn did not stay in the conversation")
	}

	msgs, _ := fx.store.ListMessages(ctx, first.ConversationID)
	if len(msgs) != 4 {
		t.Fatalf("message log = %d entries, want 4", len(msgs))
	}

	// Prior turns must reach the model as history.
	var sawFirst bool
	for _, m := range fx.driver.lastReq.Messages {
		if m.Content == "primeira" {
			sawFirst = true
		}
	}
	if !sawFirst {
		t.Fatal("history missing from model request")
	}
}
