package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/models"
)

// Recorder writes retrieval audit events. Every retrieval — successful,
// empty or blocked — produces exactly one event, so an administrator
// can reconstruct what was retrieved and what was actually used for
// any conversation turn.
type Recorder struct {
	store store.RetrievalEventStore
}

// NewRecorder creates an event recorder backed by the given store.
func NewRecorder(s store.RetrievalEventStore) *Recorder {
	return &Recorder{store: s}
}

// Record persists one event. It never returns an error: a failing
// audit write must not break the chat turn, so failures go to the
// operational log only. The write survives a canceled turn context.
func (r *Recorder) Record(ctx context.Context, event *models.RetrievalEvent) {
	if err := r.store.AppendRetrievalEvent(context.WithoutCancel(ctx), event); err != nil {
		log.Error().
			Err(err).
			Str("tenant", event.TenantID).
			Str("agent", event.AgentID).
			Msg("failed to record retrieval event")
	}
}
