// Package vectorstore persists knowledge chunks with their embeddings
// and serves scoped nearest-neighbor search ranked by cosine similarity.
// Ships two drivers with identical semantics: pgvector (production) and
// embedded (in-memory brute force for tests and small deployments).
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/pkg/models"
)

// DefaultMaxChunks is the default cap for the embedded store.
const DefaultMaxChunks = 50_000

// EmbeddedStore is a lightweight in-memory vector store using
// brute-force cosine similarity. Semantics match the pgvector driver
// exactly: same scoping, same threshold, same tie-breaking.
type EmbeddedStore struct {
	mu         sync.RWMutex
	chunks     map[string]*models.Chunk // key: document_id:chunk_index
	dimensions int
	maxChunks  int
}

// EmbeddedOption configures the embedded store.
type EmbeddedOption func(*EmbeddedStore)

// WithMaxChunks sets the maximum number of stored chunks.
func WithMaxChunks(max int) EmbeddedOption {
	return func(s *EmbeddedStore) { s.maxChunks = max }
}

// NewEmbeddedStore creates an in-memory vector store for the given
// embedding dimension.
func NewEmbeddedStore(dimensions int, opts ...EmbeddedOption) *EmbeddedStore {
	s := &EmbeddedStore{
		chunks:     make(map[string]*models.Chunk),
		dimensions: dimensions,
		maxChunks:  DefaultMaxChunks,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("dims", dimensions).Int("max_chunks", s.maxChunks).Msg("embedded vector store initialized")
	return s
}

func (s *EmbeddedStore) Kind() string    { return "embedded" }
func (s *EmbeddedStore) Dimensions() int { return s.dimensions }

func chunkKey(documentID string, index int) string {
	return documentID + ":" + strconv.Itoa(index)
}

func (s *EmbeddedStore) UpsertChunks(_ context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return &DimensionMismatchError{Want: s.dimensions, Got: len(c.Embedding)}
		}
	}

	newCount := 0
	for _, c := range chunks {
		if _, exists := s.chunks[chunkKey(c.DocumentID, c.ChunkIndex)]; !exists {
			newCount++
		}
	}
	if len(s.chunks)+newCount > s.maxChunks {
		return fmt.Errorf("embedded vector store capacity exceeded: %d > %d (consider pgvector)", len(s.chunks)+newCount, s.maxChunks)
	}

	now := time.Now()
	for _, c := range chunks {
		cp := c
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.chunks[chunkKey(cp.DocumentID, cp.ChunkIndex)] = &cp
	}
	return nil
}

func (s *EmbeddedStore) Search(_ context.Context, q models.VectorQuery) ([]models.ChunkMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(q.Embedding) != s.dimensions {
		return nil, &DimensionMismatchError{Want: s.dimensions, Got: len(q.Embedding)}
	}
	if len(q.DocumentIDs) == 0 {
		return nil, nil
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}

	scope := make(map[string]bool, len(q.DocumentIDs))
	for _, id := range q.DocumentIDs {
		scope[id] = true
	}

	var candidates []models.ChunkMatch
	for _, c := range s.chunks {
		if c.TenantID != q.TenantID || !scope[c.DocumentID] {
			continue
		}
		// A stored chunk with a different dimension means the corpus was
		// embedded with a different model: fail loud, never skip.
		if len(c.Embedding) != len(q.Embedding) {
			return nil, &DimensionMismatchError{Want: len(q.Embedding), Got: len(c.Embedding)}
		}
		score := cosineSimilarity(q.Embedding, c.Embedding)
		if score < q.Threshold {
			continue
		}
		candidates = append(candidates, models.ChunkMatch{
			Chunk:    *c,
			Score:    score,
			Document: models.DocMeta{ID: c.DocumentID},
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Chunk.ChunkIndex < candidates[j].Chunk.ChunkIndex
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (s *EmbeddedStore) DeleteDocument(_ context.Context, tenantID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.chunks {
		if c.TenantID == tenantID && c.DocumentID == documentID {
			delete(s.chunks, k)
		}
	}
	return nil
}

func (s *EmbeddedStore) HealthCheck(_ context.Context) error {
	return nil // always healthy — it's in-memory
}

// Count returns the number of stored chunks for a tenant.
func (s *EmbeddedStore) Count(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		if c.TenantID == tenantID {
			n++
		}
	}
	return n
}

// ── Helpers ─────────────────────────────────────────────────

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
