// Package handlers implements the HTTP handlers for the Orkio RAG core:
// tenants, agents, documents and their links, chat turns, conversations
// and the retrieval audit surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/internal/api/middleware"
	"github.com/orkio/orkio/internal/chat"
	"github.com/orkio/orkio/internal/embeddings"
	"github.com/orkio/orkio/internal/llm"
	"github.com/orkio/orkio/internal/rag"
	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store       store.Store
	Ingester    *rag.Ingester
	Retriever   *rag.Retriever
	Chat        *chat.Service
	Embeddings  *embeddings.Registry
	ChatDrivers *llm.Registry
	VectorStore contracts.VectorStore
}

// New creates a new Handlers instance with all dependencies.
func New(s store.Store, ing *rag.Ingester, ret *rag.Retriever, chatSvc *chat.Service, emb *embeddings.Registry, drivers *llm.Registry, vs contracts.VectorStore) *Handlers {
	return &Handlers{
		Store:       s,
		Ingester:    ing,
		Retriever:   ret,
		Chat:        chatSvc,
		Embeddings:  emb,
		ChatDrivers: drivers,
		VectorStore: vs,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Tenant Handlers ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}
	respondJSON(w, http.StatusOK, tenants)
}

func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req models.Tenant
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Tenant name is required")
		return
	}

	req.ID = uuid.New().String()
	req.Active = true
	req.CreatedAt = time.Now().UTC()

	if err := h.Store.CreateTenant(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("tenant", req.Name).Str("id", req.ID).Msg("Tenant created")
	respondJSON(w, http.StatusCreated, req)
}

// ══════════════════════════════════════════════════════════════
// ── Agent Handlers ───────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())
	agents, err := h.Store.ListAgents(r.Context(), tenant)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req models.Agent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Agent name is required")
		return
	}

	tenant := middleware.GetTenantID(r.Context())
	req.ID = uuid.New().String()
	req.TenantID = tenant
	if req.Provider == "" {
		req.Provider = "openai"
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = time.Now().UTC()

	if err := h.Store.CreateAgent(r.Context(), &req); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("agent", req.Name).Str("id", req.ID).Str("tenant", tenant).Msg("Agent created")
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	tenant := middleware.GetTenantID(r.Context())

	agent, err := h.Store.GetAgent(r.Context(), tenant, agentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	tenant := middleware.GetTenantID(r.Context())

	agent, err := h.Store.GetAgent(r.Context(), tenant, agentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req models.Agent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		agent.Name = req.Name
	}
	if req.SystemPrompt != "" {
		agent.SystemPrompt = req.SystemPrompt
	}
	if req.Provider != "" {
		agent.Provider = req.Provider
	}
	if req.Model != "" {
		agent.Model = req.Model
	}
	if req.Temperature > 0 {
		agent.Temperature = req.Temperature
	}
	agent.UseRAG = req.UseRAG
	if req.FallbackAllowed != nil {
		agent.FallbackAllowed = req.FallbackAllowed
	}
	if req.TopK > 0 {
		agent.TopK = req.TopK
	}
	if req.SimilarityThreshold != nil {
		agent.SimilarityThreshold = req.SimilarityThreshold
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	tenant := middleware.GetTenantID(r.Context())

	if err := h.Store.DeleteAgent(r.Context(), tenant, agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("agent", agentID).Str("tenant", tenant).Msg("Agent deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "agent": agentID})
}

// ══════════════════════════════════════════════════════════════
// ── Response helpers ─────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps store errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
