package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/orkio/orkio/internal/chunker"
	"github.com/orkio/orkio/internal/store"
	"github.com/orkio/orkio/pkg/contracts"
	"github.com/orkio/orkio/pkg/models"
)

// ErrorReasonEmptyContent is recorded on documents with no extractable text.
const ErrorReasonEmptyContent = "empty_content"

// maxEmbedConcurrency bounds parallel embedding batches per document.
const maxEmbedConcurrency = 4

// Ingester runs the document pipeline: chunk → embed → upsert vectors,
// driving the document through PENDING → PROCESSING → READY|ERROR.
//
// Processing is idempotent: re-running re-chunks and re-embeds from
// scratch, replacing any prior chunks of the document. Chunk writes
// for a given document are serialized so a half-written batch can
// never surface as READY.
type Ingester struct {
	store    store.Store
	chunker  *chunker.Chunker
	embedder contracts.EmbeddingDriver
	vectors  contracts.VectorStore

	mu    sync.Mutex
	locks map[string]*docLock // per-document write serialization
}

// docLock is refcounted so entries can be dropped from the map once no
// ingestion holds or awaits them.
type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewIngester creates a document ingester.
func NewIngester(s store.Store, ch *chunker.Chunker, embedder contracts.EmbeddingDriver, vectors contracts.VectorStore) *Ingester {
	return &Ingester{
		store:    s,
		chunker:  ch,
		embedder: embedder,
		vectors:  vectors,
		locks:    make(map[string]*docLock),
	}
}

func (ing *Ingester) lockDocument(documentID string) *docLock {
	ing.mu.Lock()
	l, ok := ing.locks[documentID]
	if !ok {
		l = &docLock{}
		ing.locks[documentID] = l
	}
	l.refs++
	ing.mu.Unlock()

	l.mu.Lock()
	return l
}

func (ing *Ingester) unlockDocument(documentID string, l *docLock) {
	l.mu.Unlock()

	ing.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(ing.locks, documentID)
	}
	ing.mu.Unlock()
}

// Process ingests the extracted plain text of a document. Failures are
// recorded on the document (status=ERROR, error_reason) and returned.
func (ing *Ingester) Process(ctx context.Context, tenantID, documentID, text string) error {
	l := ing.lockDocument(documentID)
	defer ing.unlockDocument(documentID, l)

	start := time.Now()

	doc, err := ing.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return err
	}

	doc.Status = models.DocumentProcessing
	doc.ErrorReason = ""
	if err := ing.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	segments, err := ing.chunker.Split(text)
	if err != nil {
		if errors.Is(err, chunker.ErrEmptyContent) {
			ing.fail(ctx, doc, ErrorReasonEmptyContent)
			return fmt.Errorf("document %s: %w", documentID, err)
		}
		ing.fail(ctx, doc, err.Error())
		return err
	}

	vectors, err := ing.embedSegments(ctx, segments)
	if err != nil {
		ing.fail(ctx, doc, "embedding_failed")
		return fmt.Errorf("embed document %s: %w", documentID, err)
	}

	chunks := make([]models.Chunk, len(segments))
	now := time.Now()
	for i, seg := range segments {
		chunks[i] = models.Chunk{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			DocumentID: documentID,
			ChunkIndex: seg.Index,
			Content:    seg.Text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	// Drop prior chunks first so a re-process that yields fewer chunks
	// leaves no stale tail behind, then write the fresh batch.
	if err := ing.vectors.DeleteDocument(ctx, tenantID, documentID); err != nil {
		ing.fail(ctx, doc, "vector_store_failed")
		return fmt.Errorf("clear chunks of document %s: %w", documentID, err)
	}
	if err := ing.vectors.UpsertChunks(ctx, chunks); err != nil {
		ing.fail(ctx, doc, "vector_store_failed")
		return fmt.Errorf("upsert chunks of document %s: %w", documentID, err)
	}

	doc.Status = models.DocumentReady
	doc.ChunksCount = len(chunks)
	if err := ing.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	log.Info().
		Str("tenant", tenantID).
		Str("document", documentID).
		Int("chunks", len(chunks)).
		Dur("elapsed", time.Since(start)).
		Msg("document ingested")
	return nil
}

// embedSegments embeds all segments in provider-sized batches, running
// up to maxEmbedConcurrency batches in parallel. Each batch retries
// transient provider failures with exponential backoff.
func (ing *Ingester) embedSegments(ctx context.Context, segments []chunker.Segment) ([][]float32, error) {
	batchSize := ing.embedder.MaxBatchSize()
	if batchSize <= 0 || batchSize > 128 {
		batchSize = 128
	}

	vectors := make([][]float32, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedConcurrency)

	for startIdx := 0; startIdx < len(segments); startIdx += batchSize {
		endIdx := startIdx + batchSize
		if endIdx > len(segments) {
			endIdx = len(segments)
		}
		startIdx, endIdx := startIdx, endIdx

		g.Go(func() error {
			texts := make([]string, endIdx-startIdx)
			for i := startIdx; i < endIdx; i++ {
				texts[i-startIdx] = segments[i].Text
			}

			var batch [][]float32
			operation := func() error {
				var err error
				batch, err = ing.embedder.Embed(gctx, texts)
				return err
			}
			bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), gctx)
			if err := backoff.Retry(operation, bo); err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", startIdx, endIdx, err)
			}
			if len(batch) != endIdx-startIdx {
				return fmt.Errorf("embed batch %d-%d: expected %d vectors, got %d", startIdx, endIdx, endIdx-startIdx, len(batch))
			}
			copy(vectors[startIdx:endIdx], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// fail records an ingestion failure on the document. The update uses a
// detached context so the state lands even when the job was canceled.
func (ing *Ingester) fail(ctx context.Context, doc *models.Document, reason string) {
	doc.Status = models.DocumentError
	doc.ErrorReason = reason
	doc.ChunksCount = 0
	if err := ing.store.UpdateDocument(context.WithoutCancel(ctx), doc); err != nil {
		log.Error().Err(err).Str("document", doc.ID).Msg("failed to record document error state")
	}
}
