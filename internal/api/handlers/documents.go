package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/internal/api/middleware"
	"github.com/orkio/orkio/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Document Handlers ────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())
	docs, err := h.Store.ListDocuments(r.Context(), tenant)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

// UploadDocument handles POST /api/v1/documents. The body carries the
// already-extracted plain text; parsing PDFs etc. happens upstream.
// The document is created PENDING and ingested asynchronously — poll
// GET /documents/{documentID} for the READY/ERROR outcome.
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenantID(r.Context())

	var req struct {
		Filename string   `json:"filename"`
		Text     string   `json:"text"`
		AgentID  string   `json:"agent_id,omitempty"`
		Tags     []string `json:"tags,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Filename == "" {
		respondError(w, http.StatusBadRequest, "filename is required")
		return
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		TenantID:  tenant,
		AgentID:   req.AgentID,
		Filename:  req.Filename,
		SizeBytes: int64(len(req.Text)),
		Tags:      req.Tags,
		Status:    models.DocumentPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateDocument(r.Context(), doc); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Ingest detached from the request: the upload returns immediately
	// and the document moves PENDING → PROCESSING → READY|ERROR.
	go func(text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.Ingester.Process(ctx, tenant, doc.ID, text); err != nil {
			log.Warn().Err(err).
				Str("tenant", tenant).
				Str("document", doc.ID).
				Msg("Document ingestion failed")
		}
	}(req.Text)

	log.Info().Str("document", doc.ID).Str("filename", doc.Filename).Str("tenant", tenant).Msg("Document accepted")
	respondJSON(w, http.StatusAccepted, doc)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	tenant := middleware.GetTenantID(r.Context())

	doc, err := h.Store.GetDocument(r.Context(), tenant, documentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// ReprocessDocument handles POST /api/v1/documents/{documentID}/reprocess.
// Re-runs the ingestion pipeline with fresh text, replacing all chunks.
func (h *Handlers) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	tenant := middleware.GetTenantID(r.Context())

	doc, err := h.Store.GetDocument(r.Context(), tenant, documentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	go func(text string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.Ingester.Process(ctx, tenant, doc.ID, text); err != nil {
			log.Warn().Err(err).
				Str("tenant", tenant).
				Str("document", doc.ID).
				Msg("Document reprocessing failed")
		}
	}(req.Text)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"document": doc.ID,
		"status":   string(models.DocumentProcessing),
	})
}

// DeleteDocument removes the document, its chunks and its agent links.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	tenant := middleware.GetTenantID(r.Context())

	if _, err := h.Store.GetDocument(r.Context(), tenant, documentID); err != nil {
		respondStoreError(w, err)
		return
	}

	// Chunks first: a document row without chunks is harmless, chunks
	// without a document would be orphaned forever.
	if err := h.VectorStore.DeleteDocument(r.Context(), tenant, documentID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.Store.DeleteDocument(r.Context(), tenant, documentID); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("document", documentID).Str("tenant", tenant).Msg("Document deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document": documentID})
}

// ══════════════════════════════════════════════════════════════
// ── Agent ↔ Document Links ───────────────────────────────────
// ══════════════════════════════════════════════════════════════

func (h *Handlers) LinkDocument(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	documentID := chi.URLParam(r, "documentID")
	tenant := middleware.GetTenantID(r.Context())

	if err := h.Store.LinkDocument(r.Context(), tenant, agentID, documentID); err != nil {
		respondStoreError(w, err)
		return
	}

	log.Info().Str("agent", agentID).Str("document", documentID).Str("tenant", tenant).Msg("Document linked")
	respondJSON(w, http.StatusOK, map[string]string{
		"agent":    agentID,
		"document": documentID,
		"status":   "linked",
	})
}

func (h *Handlers) UnlinkDocument(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	documentID := chi.URLParam(r, "documentID")
	tenant := middleware.GetTenantID(r.Context())

	if err := h.Store.UnlinkDocument(r.Context(), tenant, agentID, documentID); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"agent":    agentID,
		"document": documentID,
		"status":   "unlinked",
	})
}

// ListAgentDocuments returns the READY documents an agent retrieves from.
func (h *Handlers) ListAgentDocuments(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	tenant := middleware.GetTenantID(r.Context())

	if _, err := h.Store.GetAgent(r.Context(), tenant, agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	ids, err := h.Store.ListAgentDocumentIDs(r.Context(), tenant, agentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	docs := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := h.Store.GetDocument(r.Context(), tenant, id)
		if err != nil {
			continue
		}
		docs = append(docs, *doc)
	}
	respondJSON(w, http.StatusOK, docs)
}
