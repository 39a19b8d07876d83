// Package chat orchestrates one conversation turn: load the agent,
// persist the user message, run retrieval, evaluate the circuit
// breaker, call the model and persist the reply. Every RAG turn writes
// exactly one retrieval audit event, whatever its outcome.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/orkio/orkio/internal/llm"
	"github.com/orkio/orkio/internal/rag"
	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

var tracer = otel.Tracer("orkio-chat")

// maxHistoryMessages caps how much stored history enters the prompt.
const maxHistoryMessages = 20

// titleLimit bounds auto-generated conversation titles.
const titleLimit = 50

// Config carries the deployment-wide chat defaults.
type Config struct {
	// FallbackAllowed is the circuit breaker default when the agent
	// carries no per-agent override.
	FallbackAllowed bool

	// LLMTimeout caps one model call. Defaults to 60s.
	LLMTimeout time.Duration
}

// Service runs chat turns.
type Service struct {
	store     store.Store
	retriever *rag.Retriever
	builder   *rag.ContextBuilder
	recorder  *rag.Recorder
	drivers   *llm.Registry
	cfg       Config
}

// NewService creates the chat turn service.
func NewService(s store.Store, retriever *rag.Retriever, builder *rag.ContextBuilder, recorder *rag.Recorder, drivers *llm.Registry, cfg Config) *Service {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	return &Service{
		store:     s,
		retriever: retriever,
		builder:   builder,
		recorder:  recorder,
		drivers:   drivers,
		cfg:       cfg,
	}
}

// Turn executes one user message against an agent.
//
// When the agent uses RAG, a retrieval failure counts as zero hits for
// the circuit breaker: a no-fallback agent gets the blocked reply, and
// only a fallback-allowed agent answers degraded (without context).
// A tenant scope violation aborts the turn.
func (s *Service) Turn(ctx context.Context, req models.TurnRequest) (*models.TurnResult, error) {
	ctx, span := tracer.Start(ctx, "chat.turn")
	defer span.End()

	agent, err := s.store.GetAgent(ctx, req.TenantID, req.AgentID)
	if err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Message,
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	var (
		matches   []models.ChunkMatch
		degraded  bool
		reason    string
		retrStart = time.Now()
	)

	if agent.UseRAG {
		matches, err = s.retriever.Retrieve(ctx, rag.Query{
			TenantID:  req.TenantID,
			AgentID:   agent.ID,
			Text:      req.Message,
			TopK:      agent.TopK,
			Threshold: agent.SimilarityThreshold,
		})
		if err != nil {
			var scopeErr *rag.TenantScopeError
			if errors.As(err, &scopeErr) {
				return nil, err
			}
			var retrErr *rag.RetrievalError
			if errors.As(err, &retrErr) && retrErr.Stage == "embed" {
				reason = models.ReasonEmbeddingFailed
			} else {
				reason = "vector_search_failed"
			}
			log.Warn().Err(err).
				Str("tenant", req.TenantID).
				Str("agent", agent.ID).
				Msg("retrieval failed, treating as zero hits")
			degraded = true
			matches = nil
		}
	}

	contextBlock, citations := s.builder.Build(matches)

	fallbackAllowed := s.cfg.FallbackAllowed
	if agent.FallbackAllowed != nil {
		fallbackAllowed = *agent.FallbackAllowed
	}

	// A failed retrieval enters the breaker as a zero-hit outcome, so a
	// no-fallback agent is blocked rather than answered ungrounded.
	decision := rag.Decide(agent.UseRAG, len(matches), fallbackAllowed)

	if agent.UseRAG {
		// The reason names why no context was available; the Blocked flag
		// separately records the breaker verdict.
		if !degraded && len(matches) == 0 {
			docIDs, derr := s.store.ListAgentDocumentIDs(ctx, req.TenantID, agent.ID)
			if derr == nil && len(docIDs) == 0 {
				reason = models.ReasonNoDocumentsLinked
			}
		}
		if reason == "" && decision == rag.Block {
			reason = models.ReasonCircuitBreaker
		}

		s.recorder.Record(ctx, &models.RetrievalEvent{
			TenantID:        req.TenantID,
			AgentID:         agent.ID,
			ConversationID:  conv.ID,
			MessageID:       userMsg.ID,
			Query:           req.Message,
			ChunksRetrieved: len(matches),
			ChunksUsed:      len(citations),
			DurationMS:      time.Since(retrStart).Milliseconds(),
			Blocked:         decision == rag.Block,
			Reason:          reason,
			Citations:       citations,
		})
	}

	span.SetAttributes(
		attribute.Bool("chat.use_rag", agent.UseRAG),
		attribute.Int("chat.hits", len(matches)),
		attribute.Bool("chat.blocked", decision == rag.Block),
		attribute.Bool("chat.degraded", degraded),
	)

	if decision == rag.Block {
		if err := s.applyReply(ctx, conv.ID, userMsg.ID, rag.BlockedReply); err != nil {
			return nil, err
		}
		return &models.TurnResult{
			Reply:          rag.BlockedReply,
			ConversationID: conv.ID,
			CircuitBreaker: true,
		}, nil
	}

	reply, err := s.complete(ctx, agent, conv.ID, req, contextBlock)
	if err != nil {
		return nil, err
	}

	if err := s.applyReply(ctx, conv.ID, userMsg.ID, reply); err != nil {
		return nil, err
	}

	return &models.TurnResult{
		Reply:          reply,
		ConversationID: conv.ID,
		Degraded:       degraded,
		Sources:        citations,
	}, nil
}

// resolveConversation loads the requested conversation or creates one
// titled from the first user message.
func (s *Service) resolveConversation(ctx context.Context, req models.TurnRequest) (*models.Conversation, error) {
	if req.ConversationID != "" {
		return s.store.GetConversation(ctx, req.TenantID, req.ConversationID)
	}

	conv := &models.Conversation{
		TenantID: req.TenantID,
		AgentID:  req.AgentID,
		Title:    makeTitle(req.Message),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// complete builds the prompt and calls the agent's chat driver.
func (s *Service) complete(ctx context.Context, agent *models.Agent, conversationID string, req models.TurnRequest, contextBlock string) (string, error) {
	driver, err := s.drivers.Get(agent.Provider)
	if err != nil {
		return "", err
	}

	systemPrompt := rag.Inject(agent.SystemPrompt, contextBlock)

	history := req.History
	if len(history) == 0 {
		stored, err := s.store.ListMessages(ctx, conversationID)
		if err != nil {
			return "", err
		}
		if len(stored) > maxHistoryMessages {
			stored = stored[len(stored)-maxHistoryMessages:]
		}
		history = make([]models.ChatMessage, 0, len(stored))
		for _, m := range stored {
			history = append(history, models.ChatMessage{Role: m.Role, Content: m.Content})
		}
	} else {
		// Client-supplied history does not include the current message.
		history = append(history[:len(history):len(history)], models.ChatMessage{Role: "user", Content: req.Message})
	}

	messages := make([]models.ChatMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, models.ChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, history...)

	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	resp, err := driver.Complete(llmCtx, contracts.ChatRequest{
		Model:       agent.Model,
		Temperature: agent.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return resp.Content, nil
}

// applyReply persists the assistant message behind the stale-turn
// guard: if the conversation moved on while the model was thinking
// (or the turn was canceled) the reply is dropped, not appended out
// of order.
func (s *Service) applyReply(ctx context.Context, conversationID, userMessageID, reply string) error {
	if ctx.Err() != nil {
		log.Warn().Str("conversation", conversationID).Msg("turn canceled, dropping reply")
		return ctx.Err()
	}

	last, err := s.store.LastMessage(ctx, conversationID)
	if err != nil {
		return err
	}
	if last.ID != userMessageID {
		log.Warn().
			Str("conversation", conversationID).
			Str("expected_message", userMessageID).
			Str("last_message", last.ID).
			Msg("conversation moved on, dropping stale reply")
		return nil
	}

	return s.store.AppendMessage(ctx, &models.Message{
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        reply,
	})
}

// makeTitle derives a conversation title from the first message.
func makeTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
