package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/internal/api/middleware"
	"github.com/orkio/orkio/internal/rag"
	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Chat Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ChatTurn handles POST /api/v1/chat. One user message in, one reply
// out, with circuit-breaker and degradation flags.
func (h *Handlers) ChatTurn(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" || req.Message == "" {
		respondError(w, http.StatusBadRequest, "agent_id and message are required")
		return
	}
	req.TenantID = tenant

	result, err := h.Chat.Turn(r.Context(), req)
	if err != nil {
		var scopeErr *rag.TenantScopeError
		if errors.As(err, &scopeErr) {
			log.Error().Err(err).Str("tenant", tenant).Msg("Chat turn aborted on tenant scope violation")
			respondError(w, http.StatusInternalServerError, "retrieval scope violation")
			return
		}
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════
// ── Conversation Handlers ────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())
	agentID := r.URL.Query().Get("agent_id")
	limit := queryInt(r, "limit", 50)

	convs, err := h.Store.ListConversations(r.Context(), tenant, agentID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	respondJSON(w, http.StatusOK, convs)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	tenant := middleware.GetTenantID(r.Context())

	conv, err := h.Store.GetConversation(r.Context(), tenant, conversationID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	messages, err := h.Store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": conv,
		"messages":     messages,
	})
}

// ══════════════════════════════════════════════════════════════
// ── Retrieval Audit Handlers ─────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListRetrievalEvents handles GET /api/v1/retrieval-events with
// optional agent_id, conversation_id, blocked and limit filters.
func (h *Handlers) ListRetrievalEvents(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())

	filter := store.EventFilter{
		AgentID:        r.URL.Query().Get("agent_id"),
		ConversationID: r.URL.Query().Get("conversation_id"),
		Limit:          queryInt(r, "limit", 100),
	}
	if v := r.URL.Query().Get("blocked"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Blocked = &b
		}
	}

	events, err := h.Store.ListRetrievalEvents(r.Context(), tenant, filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []models.RetrievalEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}
