package api

import (
	"encoding/json"
	"net/http"

	"github.com/orkio/orkio/internal/api/handlers"
	"github.com/orkio/orkio/internal/api/middleware"
	"github.com/orkio/orkio/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	// TenantExtractor before Logger so request logs carry the tenant.
	r.Use(middleware.TenantExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Tenants
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.ListTenants)
			r.Post("/", h.CreateTenant)
		})

		// Agents
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Route("/{agentID}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Put("/", h.UpdateAgent)
				r.Delete("/", h.DeleteAgent)

				// Knowledge base links
				r.Route("/documents", func(r chi.Router) {
					r.Get("/", h.ListAgentDocuments)
					r.Post("/{documentID}", h.LinkDocument)
					r.Delete("/{documentID}", h.UnlinkDocument)
				})
			})
		})

		// Documents (knowledge base)
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.ListDocuments)
			r.Post("/", h.UploadDocument)
			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", h.GetDocument)
				r.Delete("/", h.DeleteDocument)
				r.Post("/reprocess", h.ReprocessDocument)
			})
		})

		// Chat
		r.Post("/chat", h.ChatTurn)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.ListConversations)
			r.Get("/{conversationID}", h.GetConversation)
		})

		// Retrieval audit log
		r.Get("/retrieval-events", h.ListRetrievalEvents)

		// RAG inspection & driver surface
		r.Post("/rag/search", h.RAGSearch)
		r.Get("/embeddings", h.ListEmbeddingDrivers)
		r.Get("/chat-drivers", h.ListChatDrivers)
		r.Get("/health/drivers", h.DriversHealth)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "orkio-core",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "orkio-core",
		})
	}
}
