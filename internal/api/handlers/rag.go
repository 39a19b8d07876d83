package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/internal/api/middleware"
	"github.com/orkio/orkio/internal/rag"
	"github.com/orkio/orkio/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── RAG Search (debug / inspection) ──────────────────────────
// ══════════════════════════════════════════════════════════════

// RAGSearch handles POST /api/v1/rag/search. It runs the retrieval
// pipeline standalone, without a chat turn, so operators can inspect
// what an agent would retrieve for a given question. The retrieval
// audit log covers chat turns only; inspection searches write no
// RetrievalEvent.
func (h *Handlers) RAGSearch(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())

	var req struct {
		AgentID   string   `json:"agent_id"`
		Query     string   `json:"query"`
		TopK      int      `json:"top_k,omitempty"`
		Threshold *float64 `json:"threshold,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AgentID == "" || req.Query == "" {
		respondError(w, http.StatusBadRequest, "agent_id and query are required")
		return
	}

	matches, err := h.Retriever.Retrieve(r.Context(), rag.Query{
		TenantID:  tenant,
		AgentID:   req.AgentID,
		Text:      req.Query,
		TopK:      req.TopK,
		Threshold: req.Threshold,
	})
	if err != nil {
		var retrErr *rag.RetrievalError
		if errors.As(err, &retrErr) {
			log.Error().Err(err).Str("tenant", tenant).Str("stage", retrErr.Stage).Msg("RAG search failed")
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if matches == nil {
		matches = []models.ChunkMatch{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"hits":    len(matches),
		"matches": matches,
	})
}

// ══════════════════════════════════════════════════════════════
// ── Driver health ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// ListEmbeddingDrivers handles GET /api/v1/embeddings.
func (h *Handlers) ListEmbeddingDrivers(w http.ResponseWriter, r *http.Request) {
	if h.Embeddings == nil {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	respondJSON(w, http.StatusOK, h.Embeddings.List())
}

// ListChatDrivers handles GET /api/v1/chat-drivers.
func (h *Handlers) ListChatDrivers(w http.ResponseWriter, r *http.Request) {
	if h.ChatDrivers == nil {
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	respondJSON(w, http.StatusOK, h.ChatDrivers.List())
}

// DriversHealth handles GET /api/v1/health/drivers: pings every
// registered embedding and chat driver plus the vector store.
func (h *Handlers) DriversHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{}

	if h.Embeddings != nil {
		emb := map[string]string{}
		for name, err := range h.Embeddings.HealthCheckAll(r.Context()) {
			emb[name] = healthString(err)
		}
		out["embeddings"] = emb
	}
	if h.ChatDrivers != nil {
		drivers := map[string]string{}
		for name, err := range h.ChatDrivers.HealthCheckAll(r.Context()) {
			drivers[name] = healthString(err)
		}
		out["chat_drivers"] = drivers
	}
	if h.VectorStore != nil {
		out["vector_store"] = map[string]string{
			h.VectorStore.Kind(): healthString(h.VectorStore.HealthCheck(r.Context())),
		}
	}

	respondJSON(w, http.StatusOK, out)
}

func healthString(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
