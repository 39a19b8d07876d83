package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog/log"

	"github.com/orkio/orkio/pkg/models"
)

// PgvectorStore implements VectorStore on PostgreSQL with the pgvector
// extension. Tenant and document scoping live in the SQL WHERE clause,
// so a query scoped to one tenant cannot surface another tenant's rows
// no matter what the similarity ranking says.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore connects, registers the pgvector codec and creates
// the chunk table and indexes if they don't exist.
func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS knowledge_chunks (
			id          TEXT NOT NULL,
			tenant_id   TEXT NOT NULL,
			document_id TEXT NOT NULL,
			chunk_index INT  NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (document_id, chunk_index)
		);

		CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_tenant ON knowledge_chunks (tenant_id);
		CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_tenant_doc ON knowledge_chunks (tenant_id, document_id);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string    { return "pgvector" }
func (s *PgvectorStore) Dimensions() int { return s.dimensions }

// UpsertChunks writes a batch of chunks, replacing rows on
// (document_id, chunk_index) conflict so re-ingestion is idempotent.
func (s *PgvectorStore) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Embedding) != s.dimensions {
			return &DimensionMismatchError{Want: s.dimensions, Got: len(c.Embedding)}
		}
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO knowledge_chunks (id, tenant_id, document_id, chunk_index, content, embedding, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(chunks)*7)
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*7 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+4, base+5, base+6))
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		args = append(args, c.ID, c.TenantID, c.DocumentID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding), created)
	}

	sb.WriteString(` ON CONFLICT (document_id, chunk_index) DO UPDATE SET
		id = EXCLUDED.id,
		tenant_id = EXCLUDED.tenant_id,
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		created_at = EXCLUDED.created_at`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

// Search returns the top-K chunks above the similarity threshold for
// the scoped tenant/document set, ranked by cosine similarity with
// ties broken by ascending chunk_index.
func (s *PgvectorStore) Search(ctx context.Context, q models.VectorQuery) ([]models.ChunkMatch, error) {
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

	query := `SELECT id, tenant_id, document_id, chunk_index, content, created_at,
			1 - (embedding <=> $1) AS score
		FROM knowledge_chunks
		WHERE tenant_id = $2
		  AND document_id = ANY($3)
		  AND 1 - (embedding <=> $1) >= $4
		ORDER BY embedding <=> $1, chunk_index ASC
		LIMIT $5`

	vec := pgvector.NewVector(q.Embedding)
	rows, err := s.pool.Query(ctx, query, vec, q.TenantID, q.DocumentIDs, q.Threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var matches []models.ChunkMatch
	for rows.Next() {
		var c models.Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		matches = append(matches, models.ChunkMatch{
			Chunk:    c,
			Score:    score,
			Document: models.DocMeta{ID: c.DocumentID},
		})
	}
	return matches, rows.Err()
}

// DeleteDocument removes every chunk of the given document.
func (s *PgvectorStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM knowledge_chunks WHERE tenant_id = $1 AND document_id = $2",
		tenantID, documentID)
	return err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}
